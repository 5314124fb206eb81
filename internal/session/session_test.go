package session

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionGenerateAndClear(t *testing.T) {
	s := New()
	assert.False(t, s.Active())

	pub, err := s.Generate()
	require.NoError(t, err)
	assert.True(t, s.Active())

	got, err := s.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, pub, got)

	s.Clear()
	assert.False(t, s.Active())
	_, err = s.PublicKey()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionSetKeysFromNsec(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	wantPub, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	nsec, err := nip19.EncodePrivateKey(sk)
	require.NoError(t, err)

	s := New()
	pub, err := s.SetKeys(nsec)
	require.NoError(t, err)
	assert.Equal(t, wantPub, pub)

	secret, err := s.SecretKey()
	require.NoError(t, err)
	assert.Equal(t, sk, secret)
}

func TestSessionSetKeysFromHex(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	s := New()
	pub, err := s.SetKeys(sk)
	require.NoError(t, err)
	assert.Len(t, pub, 64)
}

func TestSessionSetKeysRejectsGarbage(t *testing.T) {
	s := New()
	_, err := s.SetKeys("not-a-key")
	assert.Error(t, err)
	assert.False(t, s.Active())
}

func TestSessionReplaceZeroesPrevious(t *testing.T) {
	s := New()
	_, err := s.Generate()
	require.NoError(t, err)
	first := s.kp

	_, err = s.Generate()
	require.NoError(t, err)

	assert.Nil(t, first.secretKey.b)
}
