package signer

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obscurnet/nativebridge/internal/session"
)

func newActiveSigner(t *testing.T) (*Signer, string) {
	t.Helper()
	sess := session.New()
	pub, err := sess.Generate()
	require.NoError(t, err)
	return New(sess), pub
}

func TestSignEventProducesValidSignature(t *testing.T) {
	s, pub := newActiveSigner(t)

	ev := &nostr.Event{Kind: 1, Content: "hello"}
	require.NoError(t, s.SignEvent(ev))

	assert.Equal(t, pub, ev.PubKey)
	assert.NotEmpty(t, ev.ID)
	assert.NotEmpty(t, ev.Sig)

	ok, err := ev.CheckSignature()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignEventRequiresActiveSession(t *testing.T) {
	s := New(session.New())
	ev := &nostr.Event{Kind: 1, Content: "hello"}
	err := s.SignEvent(ev)
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestEncryptDecryptDMRoundTrip(t *testing.T) {
	alice, alicePub := newActiveSigner(t)
	bob, bobPub := newActiveSigner(t)

	ciphertext, err := alice.EncryptDM(bobPub, "secret message")
	require.NoError(t, err)
	assert.NotEqual(t, "secret message", ciphertext)

	plaintext, err := bob.DecryptDM(alicePub, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "secret message", plaintext)
}

func TestNpubRoundTrip(t *testing.T) {
	s, pub := newActiveSigner(t)
	npub, err := s.EncodeNpub()
	require.NoError(t, err)

	decoded, err := DecodeNpub(npub)
	require.NoError(t, err)
	assert.Equal(t, pub, decoded)
}

func TestDecodeNpubRejectsWrongPrefix(t *testing.T) {
	_, err := DecodeNpub("nsec1abcdef")
	assert.Error(t, err)
}
