// Package relaypool manages concurrent WebSocket connections to a set of
// Nostr relays, with persistent per-relay subscription state, automatic
// resubscription on reconnect, and exponential backoff between retries.
package relaypool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/obscurnet/nativebridge/internal/netrt"
)

// StatusEvent reports a relay connection's lifecycle transitions.
type StatusEvent struct {
	RelayURL string
	Status   string // starting | connected | disconnected | error
	Error    string
}

// RelayEvent carries an opaque JSON payload received from a single relay.
type RelayEvent struct {
	RelayURL string
	Payload  json.RawMessage
}

type connHandle struct {
	send   chan []byte
	cancel context.CancelFunc
	conn   wsConn
}

type perRelayState struct {
	mu   sync.Mutex
	subs map[string]json.RawMessage
}

// Pool is the concurrent relay manager. Connections and persistent
// subscription state live in xsync maps for lock-free reads from the
// hot publish/subscribe path; the desired set and backoff bookkeeping,
// and the connect/disconnect state transitions that touch both, are
// guarded by the plain mutex below. Critical sections are always short
// and never held across network I/O.
type Pool struct {
	rt   *netrt.Runtime
	dial func(ctx context.Context, url string) (wsConn, error)

	conns  *xsync.MapOf[string, *connHandle]
	states *xsync.MapOf[string, *perRelayState]

	mu      sync.Mutex
	desired map[string]struct{}
	backoff map[string]*backoffEntry

	statusCh chan StatusEvent
	eventCh  chan RelayEvent
}

// New returns an empty Pool bound to rt for all outbound dialing.
func New(rt *netrt.Runtime) *Pool {
	p := &Pool{
		rt:       rt,
		conns:    xsync.NewMapOf[string, *connHandle](),
		states:   xsync.NewMapOf[string, *perRelayState](),
		desired:  make(map[string]struct{}),
		backoff:  make(map[string]*backoffEntry),
		statusCh: make(chan StatusEvent, 256),
		eventCh:  make(chan RelayEvent, 256),
	}
	p.dial = p.defaultDial
	return p
}

// StatusEvents streams relay connection status transitions.
func (p *Pool) StatusEvents() <-chan StatusEvent { return p.statusCh }

// RelayEvents streams opaque per-relay JSON payloads.
func (p *Pool) RelayEvents() <-chan RelayEvent { return p.eventCh }

func (p *Pool) emitStatus(url, status, errMsg string) {
	select {
	case p.statusCh <- StatusEvent{RelayURL: url, Status: status, Error: errMsg}:
	default:
	}
}

func (p *Pool) stateFor(url string) *perRelayState {
	state, _ := p.states.LoadOrStore(url, &perRelayState{subs: make(map[string]json.RawMessage)})
	return state
}

// Connect adds url to the desired set and, unless already connected, opens
// a WebSocket connection, spawns its reader/writer tasks, and replays any
// persisted subscriptions for url.
func (p *Pool) Connect(ctx context.Context, url string) error {
	p.mu.Lock()
	p.desired[url] = struct{}{}
	p.mu.Unlock()

	return p.dialAndRun(ctx, url)
}

// dialAndRun dials url and, on success, commits the resulting connection.
// The dial itself can run for tens of seconds under Tor retry, so it
// happens outside p.mu; only the placeholder reservation and the final
// commit — which re-checks that url is still desired and that no other
// goroutine has already claimed or released the slot — are serialized
// through it. Without that re-check, a Disconnect that completes while a
// dial is still in flight would otherwise be silently undone the moment
// the stale dial finishes.
func (p *Pool) dialAndRun(ctx context.Context, url string) error {
	placeholder := &connHandle{}

	p.mu.Lock()
	if _, loaded := p.conns.LoadOrStore(url, placeholder); loaded {
		p.mu.Unlock()
		return ErrAlreadyConnected
	}
	p.mu.Unlock()

	p.emitStatus(url, "starting", "")

	conn, err := p.dialWithTorRetry(ctx, url)
	if err != nil {
		p.mu.Lock()
		if cur, ok := p.conns.Load(url); ok && cur == placeholder {
			p.conns.Delete(url)
		}
		p.mu.Unlock()
		p.emitStatus(url, "error", err.Error())
		p.scheduleReconnect(url)
		return err
	}

	send := make(chan []byte, 32)
	taskCtx, cancel := context.WithCancel(context.Background())
	handle := &connHandle{send: send, cancel: cancel, conn: conn}

	p.mu.Lock()
	_, stillDesired := p.desired[url]
	cur, stillReserved := p.conns.Load(url)
	if !stillDesired || !stillReserved || cur != placeholder {
		p.mu.Unlock()
		conn.CloseNormally()
		return ErrNotConnected
	}
	p.conns.Store(url, handle)
	p.mu.Unlock()

	go p.writerTask(taskCtx, conn, send)
	go p.readerTask(taskCtx, url, conn, handle)

	p.replaySubscriptions(url, send)
	p.resetBackoff(url)
	p.emitStatus(url, "connected", "")
	return nil
}

// Disconnect removes url from the desired set, cancels its tasks, and
// closes the socket. Persistent subscriptions are left untouched so a
// later reconnect resumes them exactly.
func (p *Pool) Disconnect(url string) error {
	p.mu.Lock()
	delete(p.desired, url)
	delete(p.backoff, url)
	handle, ok := p.conns.LoadAndDelete(url)
	p.mu.Unlock()

	if !ok || handle.conn == nil {
		return ErrNotConnected
	}
	handle.cancel()
	handle.conn.CloseNormally()
	p.emitStatus(url, "disconnected", "")
	return nil
}

// Publish enqueues an EVENT frame if url is connected.
func (p *Pool) Publish(url string, eventJSON json.RawMessage) error {
	handle, ok := p.conns.Load(url)
	if !ok || handle.send == nil {
		return ErrNotConnected
	}
	frame, err := json.Marshal([]any{"EVENT", eventJSON})
	if err != nil {
		return fmt.Errorf("relaypool: marshal EVENT frame: %w", err)
	}
	handle.send <- frame
	return nil
}

// Subscribe upserts (subID, filter) into url's persistent state and, if
// connected, also enqueues a REQ frame.
func (p *Pool) Subscribe(url, subID string, filter json.RawMessage) error {
	state := p.stateFor(url)
	state.mu.Lock()
	state.subs[subID] = filter
	state.mu.Unlock()

	handle, ok := p.conns.Load(url)
	if !ok || handle.send == nil {
		return nil
	}
	frame, err := json.Marshal([]any{"REQ", subID, filter})
	if err != nil {
		return fmt.Errorf("relaypool: marshal REQ frame: %w", err)
	}
	handle.send <- frame
	return nil
}

// Unsubscribe removes subID from url's persistent state and, if connected,
// also enqueues a CLOSE frame.
func (p *Pool) Unsubscribe(url, subID string) error {
	state := p.stateFor(url)
	state.mu.Lock()
	delete(state.subs, subID)
	state.mu.Unlock()

	handle, ok := p.conns.Load(url)
	if !ok || handle.send == nil {
		return nil
	}
	frame, err := json.Marshal([]any{"CLOSE", subID})
	if err != nil {
		return fmt.Errorf("relaypool: marshal CLOSE frame: %w", err)
	}
	handle.send <- frame
	return nil
}

// SendRaw enqueues an arbitrary text frame if url is connected.
func (p *Pool) SendRaw(url, text string) error {
	handle, ok := p.conns.Load(url)
	if !ok || handle.send == nil {
		return ErrNotConnected
	}
	handle.send <- []byte(text)
	return nil
}

// Subscriptions returns a snapshot copy of url's persistent subscription
// state, for diagnostics and tests.
func (p *Pool) Subscriptions(url string) map[string]json.RawMessage {
	state := p.stateFor(url)
	state.mu.Lock()
	defer state.mu.Unlock()
	out := make(map[string]json.RawMessage, len(state.subs))
	for k, v := range state.subs {
		out[k] = v
	}
	return out
}

// Probe performs the out-of-band DNS/TCP/WebSocket diagnostic through the
// same NetworkRuntime every live connection uses.
func (p *Pool) Probe(ctx context.Context, url string) *netrt.ProbeReport {
	return p.rt.Probe(ctx, url)
}

func (p *Pool) replaySubscriptions(url string, send chan []byte) {
	state := p.stateFor(url)
	state.mu.Lock()
	frames := make([][]byte, 0, len(state.subs))
	for subID, filter := range state.subs {
		frame, err := json.Marshal([]any{"REQ", subID, filter})
		if err != nil {
			continue
		}
		frames = append(frames, frame)
	}
	state.mu.Unlock()

	for _, frame := range frames {
		send <- frame
	}
}
