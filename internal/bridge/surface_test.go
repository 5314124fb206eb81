package bridge

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/obscurnet/nativebridge/internal/secretstore"
	"github.com/obscurnet/nativebridge/internal/signer"
)

func TestMain(m *testing.M) {
	keyring.MockInit()
	os.Exit(m.Run())
}

func newSurface(t *testing.T, service string) *Surface {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return New(log, secretstore.New(service), "true", nil)
}

func TestImportEmptySecretIsInvalidInput(t *testing.T) {
	s := newSurface(t, "test.bridge.import")

	pub, err := s.ImportNativeNsec("")
	assert.Empty(t, pub)
	require.NotNil(t, err)
	assert.Equal(t, KindInvalidInput, err.Kind)
}

func TestGenerateThenGetNpub(t *testing.T) {
	s := newSurface(t, "test.bridge.generate")

	npub, err := s.GenerateNativeNsec()
	require.Nil(t, err)
	assert.Contains(t, npub, "npub1")

	got, gerr := s.GetNativeNpub()
	require.Nil(t, gerr)
	assert.Equal(t, npub, got)
}

func TestLogoutThenGetNpubReportsNoSession(t *testing.T) {
	s := newSurface(t, "test.bridge.logout")

	_, err := s.GenerateNativeNsec()
	require.Nil(t, err)

	logoutErr := s.LogoutNative()
	assert.Nil(t, logoutErr)

	_, err = s.GetNativeNpub()
	require.NotNil(t, err)
	assert.Equal(t, KindNoSession, err.Kind)
}

func TestEncryptDecryptNip04RoundTrip(t *testing.T) {
	alice := newSurface(t, "test.bridge.alice")
	bob := newSurface(t, "test.bridge.bob")

	alicePub, err := alice.GenerateNativeNsec()
	require.Nil(t, err)
	bobPub, err := bob.GenerateNativeNsec()
	require.Nil(t, err)

	alicePubHex, decErr := signer.DecodeNpub(alicePub)
	require.NoError(t, decErr)
	bobPubHex, decErr := signer.DecodeNpub(bobPub)
	require.NoError(t, decErr)

	ciphertext, encErr := alice.EncryptNip04(bobPubHex, "hello bob")
	require.Nil(t, encErr)

	plaintext, decErr2 := bob.DecryptNip04(alicePubHex, ciphertext)
	require.Nil(t, decErr2)
	assert.Equal(t, "hello bob", plaintext)
}

func TestPublishEventWithoutConnectionIsNotConnected(t *testing.T) {
	s := newSurface(t, "test.bridge.publish")
	err := s.PublishEvent("wss://relay.example/", json.RawMessage(`{}`))
	require.NotNil(t, err)
	assert.Equal(t, KindNotConnected, err.Kind)
}

func TestSubscribeRelayWithoutConnectionIsNotAnError(t *testing.T) {
	s := newSurface(t, "test.bridge.subscribe")
	err := s.SubscribeRelay("wss://relay.example/", "s1", json.RawMessage(`{"kinds":[1]}`))
	assert.Nil(t, err)
}
