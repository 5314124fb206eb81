package relaypool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obscurnet/nativebridge/internal/netrt"
)

func TestComputeBackoffDelaySequence(t *testing.T) {
	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	for exp, w := range want {
		assert.Equal(t, w, computeBackoffDelay(exp), "exp=%d", exp)
	}
}

func fakeConnected(p *Pool, url string) chan []byte {
	send := make(chan []byte, 32)
	p.conns.Store(url, &connHandle{send: send})
	return send
}

func TestConnectAlreadyConnected(t *testing.T) {
	p := New(netrt.New())
	fakeConnected(p, "wss://relay.example/")

	err := p.Connect(context.Background(), "wss://relay.example/")
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestPublishRequiresConnection(t *testing.T) {
	p := New(netrt.New())
	err := p.Publish("wss://relay.example/", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPublishEnqueuesEventFrame(t *testing.T) {
	p := New(netrt.New())
	send := fakeConnected(p, "wss://relay.example/")

	require.NoError(t, p.Publish("wss://relay.example/", json.RawMessage(`{"id":"e1"}`)))

	frame := <-send
	var decoded []json.RawMessage
	require.NoError(t, json.Unmarshal(frame, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, `"EVENT"`, string(decoded[0]))
	assert.JSONEq(t, `{"id":"e1"}`, string(decoded[1]))
}

func TestSubscribeUnsubscribeRoundTrip(t *testing.T) {
	p := New(netrt.New())
	url := "wss://relay.example/"

	require.NoError(t, p.Subscribe(url, "s1", json.RawMessage(`{"kinds":[1]}`)))
	subs := p.Subscriptions(url)
	require.Contains(t, subs, "s1")

	require.NoError(t, p.Unsubscribe(url, "s1"))
	subs = p.Subscriptions(url)
	assert.NotContains(t, subs, "s1")
}

func TestSubscribeIsIndependentOfConnectionState(t *testing.T) {
	p := New(netrt.New())
	url := "wss://relay.example/"

	require.NoError(t, p.Subscribe(url, "s1", json.RawMessage(`{"kinds":[1]}`)))
	subs := p.Subscriptions(url)
	assert.Len(t, subs, 1)
}

func TestSubscribeEnqueuesREQWhenConnected(t *testing.T) {
	p := New(netrt.New())
	url := "wss://relay.example/"
	send := fakeConnected(p, url)

	require.NoError(t, p.Subscribe(url, "s1", json.RawMessage(`{"kinds":[1]}`)))

	frame := <-send
	var decoded []json.RawMessage
	require.NoError(t, json.Unmarshal(frame, &decoded))
	require.Len(t, decoded, 3)
	assert.Equal(t, `"REQ"`, string(decoded[0]))
	assert.Equal(t, `"s1"`, string(decoded[1]))
}

func TestDisconnectWithoutConnectionIsNotConnectedError(t *testing.T) {
	p := New(netrt.New())
	err := p.Disconnect("wss://relay.example/")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendRawRequiresConnection(t *testing.T) {
	p := New(netrt.New())
	err := p.SendRaw("wss://relay.example/", "ping")
	assert.ErrorIs(t, err, ErrNotConnected)
}
