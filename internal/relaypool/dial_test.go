package relaypool

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obscurnet/nativebridge/internal/netrt"
)

// fakeWSConn implements wsConn without touching the network, so Pool.dial
// can be swapped out in tests to drive dialAndRun, readerTask and
// writerTask end to end.
type fakeWSConn struct {
	written chan []byte
	readErr chan error
}

func newFakeWSConn() *fakeWSConn {
	return &fakeWSConn{
		written: make(chan []byte, 32),
		readErr: make(chan error, 1),
	}
}

func (c *fakeWSConn) ReadMessage() (int, []byte, error) {
	err := <-c.readErr
	return 0, nil, err
}

func (c *fakeWSConn) WriteMessage(_ int, data []byte) error {
	frame := make([]byte, len(data))
	copy(frame, data)
	c.written <- frame
	return nil
}

func (c *fakeWSConn) CloseNormally() {}

func TestConnectReplaysPersistedSubscriptions(t *testing.T) {
	p := New(netrt.New())
	url := "wss://relay.example/"
	conn := newFakeWSConn()
	p.dial = func(context.Context, string) (wsConn, error) { return conn, nil }
	t.Cleanup(func() { conn.readErr <- errors.New("test teardown") })

	require.NoError(t, p.Subscribe(url, "s1", json.RawMessage(`{"kinds":[1]}`)))
	require.NoError(t, p.Connect(context.Background(), url))

	select {
	case frame := <-conn.written:
		var decoded []json.RawMessage
		require.NoError(t, json.Unmarshal(frame, &decoded))
		require.Len(t, decoded, 3)
		assert.Equal(t, `"REQ"`, string(decoded[0]))
		assert.Equal(t, `"s1"`, string(decoded[1]))
	case <-time.After(2 * time.Second):
		t.Fatal("persisted subscription was never replayed onto the writer")
	}
}

func TestReaderTaskDisconnectTriggersReconnectWithBackoff(t *testing.T) {
	p := New(netrt.New())
	url := "wss://relay.example/"

	var mu sync.Mutex
	dialCount := 0
	dialed := make(chan *fakeWSConn, 4)
	p.dial = func(context.Context, string) (wsConn, error) {
		mu.Lock()
		dialCount++
		mu.Unlock()
		c := newFakeWSConn()
		dialed <- c
		return c, nil
	}

	require.NoError(t, p.Connect(context.Background(), url))

	var first *fakeWSConn
	select {
	case first = <-dialed:
	case <-time.After(2 * time.Second):
		t.Fatal("initial dial never happened")
	}

	statusCh := p.StatusEvents()
	first.readErr <- errors.New("connection reset by peer")

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-statusCh:
			if ev.RelayURL == url && ev.Status == "disconnected" {
				goto disconnected
			}
		case <-deadline:
			t.Fatal("readerTask never emitted a disconnected status after the read error")
		}
	}
disconnected:

	var second *fakeWSConn
	select {
	case second = <-dialed:
	case <-time.After(3 * time.Second):
		t.Fatal("reconnect scheduler never redialed after backoff")
	}
	assert.NotSame(t, first, second)

	mu.Lock()
	assert.GreaterOrEqual(t, dialCount, 2)
	mu.Unlock()

	t.Cleanup(func() { second.readErr <- errors.New("test teardown") })
}

func TestDisconnectDuringInFlightDialDoesNotResurrectConnection(t *testing.T) {
	p := New(netrt.New())
	url := "wss://relay.example/"

	dialStarted := make(chan struct{})
	releaseDial := make(chan struct{})
	conn := newFakeWSConn()
	p.dial = func(context.Context, string) (wsConn, error) {
		close(dialStarted)
		<-releaseDial
		return conn, nil
	}

	done := make(chan error, 1)
	go func() { done <- p.Connect(context.Background(), url) }()

	<-dialStarted
	assert.ErrorIs(t, p.Disconnect(url), ErrNotConnected)
	close(releaseDial)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrNotConnected)
	case <-time.After(2 * time.Second):
		t.Fatal("dialAndRun never returned after the slow dial completed")
	}

	_, connected := p.conns.Load(url)
	assert.False(t, connected, "a dial that lost the race to Disconnect must not commit its connection")
}
