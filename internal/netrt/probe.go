package netrt

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/net/proxy"
)

// ProbeReport is the structured diagnostic returned by Probe.
type ProbeReport struct {
	URL        string
	Scheme     string
	Host       string
	Port       string
	TorEnabled bool
	ProxyURL   string
	DNSOk      bool
	DNSResults []string
	TCPOk      bool
	WSOk       bool
	Error      string
}

// Probe performs a DNS lookup (5s), a TCP connect (5s) and a WebSocket
// handshake (10s) against rawURL through the current runtime
// configuration, stopping at the first stage that fails.
func (r *Runtime) Probe(ctx context.Context, rawURL string) *ProbeReport {
	enabled, proxyURL := r.snapshot()
	report := &ProbeReport{URL: rawURL, TorEnabled: enabled, ProxyURL: proxyURL}

	host, port, scheme, err := splitRelayURL(rawURL)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Scheme, report.Host, report.Port = scheme, host, port

	dnsCtx, cancelDNS := context.WithTimeout(ctx, probeDNSTimeout)
	defer cancelDNS()
	addrs, err := net.DefaultResolver.LookupHost(dnsCtx, host)
	if err != nil {
		report.DNSOk = false
		report.Error = err.Error()
		return report
	}
	report.DNSOk = true
	report.DNSResults = addrs

	tcpCtx, cancelTCP := context.WithTimeout(ctx, probeTCPTimeout)
	defer cancelTCP()
	tcpConn, err := dialTCPStage(tcpCtx, enabled, proxyURL, host, port)
	if err != nil {
		report.TCPOk = false
		report.Error = err.Error()
		return report
	}
	report.TCPOk = true
	_ = tcpConn.Close()

	wsCtx, cancelWS := context.WithTimeout(ctx, probeWSTimeout)
	defer cancelWS()
	conn, resp, err := r.ConnectWebSocket(wsCtx, rawURL, nil)
	if err != nil {
		report.WSOk = false
		var dialErr *DialError
		if errors.As(err, &dialErr) {
			report.Error = dialErr.Error()
		} else {
			report.Error = err.Error()
		}
		if resp != nil {
			report.Error = fmt.Sprintf("%s (status %d)", report.Error, resp.StatusCode)
		}
		return report
	}
	report.WSOk = true
	_ = conn.Close()
	return report
}

func dialTCPStage(ctx context.Context, torEnabled bool, proxyURL, host, port string) (net.Conn, error) {
	target := net.JoinHostPort(host, port)
	if !torEnabled {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", target)
		if err != nil {
			return nil, &DialError{Kind: KindMissingHostPort, Err: err}
		}
		return conn, nil
	}

	proxyAddr, err := parseProxyAddr(proxyURL)
	if err != nil {
		return nil, err
	}
	dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
	if err != nil {
		return nil, &DialError{Kind: KindSOCKSConnect, Err: err}
	}
	ctxDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, &DialError{Kind: KindSOCKSConnect, Err: fmt.Errorf("socks5 dialer does not support contexts")}
	}
	conn, err := ctxDialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, &DialError{Kind: KindSOCKSConnect, Err: err}
	}
	return conn, nil
}

func splitRelayURL(rawURL string) (host, port, scheme string, err error) {
	u, perr := parseRelayURL(rawURL)
	if perr != nil {
		return "", "", "", perr
	}
	host = u.Hostname()
	if host == "" {
		return "", "", "", &DialError{Kind: KindMissingHostPort, Err: fmt.Errorf("relay url missing host")}
	}
	port = u.Port()
	if port == "" {
		if u.Scheme == "wss" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return host, port, u.Scheme, nil
}
