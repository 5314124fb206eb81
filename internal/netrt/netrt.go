// Package netrt is the single switch for proxy-aware networking: it hands
// out HTTP clients and WebSocket connections that are either direct or
// tunneled through a local SOCKS5 proxy. Every other component that talks
// to the network goes through here so that toggling Tor on or off changes
// behavior for the whole process atomically.
package netrt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
)

const defaultProxyPort = "9050"

// Kind classifies the stage at which a dial failed.
type Kind string

const (
	KindInvalidProxyURL Kind = "invalid_proxy_url"
	KindMissingHostPort Kind = "missing_host_port"
	KindSOCKSConnect    Kind = "socks_connect"
	KindTLS             Kind = "tls"
	KindWebSocketHTTP   Kind = "websocket_http"
)

// DialError carries enough detail for internal/bridge to classify a
// NetworkRuntime failure without re-parsing error strings.
type DialError struct {
	Kind       Kind
	Err        error
	StatusCode int
	Header     http.Header
}

func (e *DialError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("netrt: %s: %v (status %d)", e.Kind, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("netrt: %s: %v", e.Kind, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// Runtime holds the process-wide Tor switch and proxy URL. All access goes
// through a short-held mutex; readers take a snapshot before starting a
// connection attempt so that a concurrent Set cannot split it across the
// old and new configuration.
type Runtime struct {
	mu         sync.Mutex
	torEnabled bool
	proxyURL   string
}

// New returns a Runtime with Tor disabled and the default local proxy URL.
func New() *Runtime {
	return &Runtime{proxyURL: "socks5://127.0.0.1:9050"}
}

// Set replaces both fields atomically from a reader's perspective.
func (r *Runtime) Set(enabled bool, proxyURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.torEnabled = enabled
	r.proxyURL = proxyURL
}

func (r *Runtime) snapshot() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.torEnabled, r.proxyURL
}

// Enabled reports whether Tor is currently enabled.
func (r *Runtime) Enabled() bool {
	enabled, _ := r.snapshot()
	return enabled
}

// BuildHTTPClient returns an http.Client with redirects disabled (NIP-98
// signs the literal request URL; a followed redirect would invalidate or
// drop the Authorization header) and, when Tor is enabled, routed through
// the configured SOCKS5 proxy.
func (r *Runtime) BuildHTTPClient() (*http.Client, error) {
	enabled, proxyURL := r.snapshot()

	transport := &http.Transport{}
	if enabled {
		proxyAddr, err := parseProxyAddr(proxyURL)
		if err != nil {
			return nil, err
		}
		dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
		if err != nil {
			return nil, &DialError{Kind: KindSOCKSConnect, Err: err}
		}
		if ctxDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = ctxDialer.DialContext
		} else {
			transport.Dial = dialer.Dial
		}
	}

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

// ConnectWebSocket performs the WebSocket handshake against rawURL, direct
// or SOCKS5+TLS-tunneled depending on the current Tor setting and the
// URL's scheme.
func (r *Runtime) ConnectWebSocket(ctx context.Context, rawURL string, header http.Header) (*websocket.Conn, *http.Response, error) {
	enabled, proxyURL := r.snapshot()

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, &DialError{Kind: KindInvalidProxyURL, Err: fmt.Errorf("parse relay url: %w", err)}
	}

	dialer := *websocket.DefaultDialer

	if enabled && u.Scheme == "wss" {
		proxyAddr, err := parseProxyAddr(proxyURL)
		if err != nil {
			return nil, nil, err
		}
		host := u.Hostname()
		if host == "" {
			return nil, nil, &DialError{Kind: KindMissingHostPort, Err: fmt.Errorf("relay url missing host")}
		}
		target := u.Host
		if u.Port() == "" {
			target = net.JoinHostPort(host, "443")
		}
		dialer.NetDialTLSContext = func(ctx context.Context, network, _ string) (net.Conn, error) {
			return dialSOCKS5TLS(ctx, network, proxyAddr, target, host)
		}
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, resp, &DialError{Kind: KindWebSocketHTTP, Err: err, StatusCode: resp.StatusCode, Header: resp.Header}
		}
		return nil, resp, &DialError{Kind: KindWebSocketHTTP, Err: err}
	}
	return conn, resp, nil
}

// dialSOCKS5TLS opens a TCP stream to target through the SOCKS5 proxy at
// proxyAddr, then performs a TLS handshake against tlsHost using the OS
// trust anchors.
func dialSOCKS5TLS(ctx context.Context, network, proxyAddr, target, tlsHost string) (net.Conn, error) {
	dialer, err := proxy.SOCKS5(network, proxyAddr, nil, proxy.Direct)
	if err != nil {
		return nil, &DialError{Kind: KindSOCKSConnect, Err: err}
	}
	ctxDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, &DialError{Kind: KindSOCKSConnect, Err: fmt.Errorf("socks5 dialer does not support contexts")}
	}
	conn, err := ctxDialer.DialContext(ctx, network, target)
	if err != nil {
		return nil, &DialError{Kind: KindSOCKSConnect, Err: err}
	}

	pool, _ := x509.SystemCertPool()
	if pool == nil {
		pool = x509.NewCertPool()
	}
	tlsConn := tls.Client(conn, &tls.Config{
		ServerName: tlsHost,
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, &DialError{Kind: KindTLS, Err: err}
	}
	return tlsConn, nil
}

func parseRelayURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &DialError{Kind: KindInvalidProxyURL, Err: fmt.Errorf("parse relay url: %w", err)}
	}
	return u, nil
}

// parseProxyAddr extracts host:port from a socks5/socks5h proxy URL,
// defaulting the port to 9050 when absent.
func parseProxyAddr(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", &DialError{Kind: KindInvalidProxyURL, Err: fmt.Errorf("parse proxy url: %w", err)}
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "socks5" && scheme != "socks5h" {
		return "", &DialError{Kind: KindInvalidProxyURL, Err: fmt.Errorf("unsupported proxy scheme %q", u.Scheme)}
	}
	host := u.Hostname()
	if host == "" {
		return "", &DialError{Kind: KindMissingHostPort, Err: fmt.Errorf("proxy url missing host")}
	}
	port := u.Port()
	if port == "" {
		port = defaultProxyPort
	}
	return net.JoinHostPort(host, port), nil
}

// Probe's per-stage timeout budget.
const (
	probeDNSTimeout = 5 * time.Second
	probeTCPTimeout = 5 * time.Second
	probeWSTimeout  = 10 * time.Second
)
