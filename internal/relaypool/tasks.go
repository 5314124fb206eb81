package relaypool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn is the narrow surface relaypool needs from a WebSocket
// connection, letting tests substitute a fake without dialing a real
// socket.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	CloseNormally()
}

// realConn adapts *websocket.Conn to wsConn.
type realConn struct {
	*websocket.Conn
}

func (c realConn) CloseNormally() {
	_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = c.Conn.Close()
}

// defaultDial performs the real WebSocket handshake through the pool's
// netrt.Runtime. Pool.dial defaults to this; tests may overwrite the
// field with a fake to exercise dialAndRun without a real socket.
func (p *Pool) defaultDial(ctx context.Context, url string) (wsConn, error) {
	conn, _, err := p.rt.ConnectWebSocket(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return realConn{conn}, nil
}

func (p *Pool) dialWithTorRetry(ctx context.Context, url string) (wsConn, error) {
	attempts := 1
	if p.rt.Enabled() {
		attempts = 30
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, err := p.dial(ctx, url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
	return nil, lastErr
}

func (p *Pool) writerTask(ctx context.Context, conn wsConn, send chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-send:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}
}

func (p *Pool) readerTask(ctx context.Context, url string, conn wsConn, handle *connHandle) {
	defer func() {
		if cur, ok := p.conns.Load(url); ok && cur == handle {
			p.conns.Delete(url)
			p.emitStatus(url, "disconnected", "")
			p.scheduleReconnect(url)
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage || !json.Valid(data) {
			continue
		}
		payload := make([]byte, len(data))
		copy(payload, data)
		select {
		case p.eventCh <- RelayEvent{RelayURL: url, Payload: payload}:
		case <-ctx.Done():
			return
		}
	}
}
