package bridge

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/obscurnet/nativebridge/internal/netrt"
	"github.com/obscurnet/nativebridge/internal/proxysup"
	"github.com/obscurnet/nativebridge/internal/relaypool"
	"github.com/obscurnet/nativebridge/internal/secretstore"
	"github.com/obscurnet/nativebridge/internal/session"
	"github.com/obscurnet/nativebridge/internal/signer"
	"github.com/obscurnet/nativebridge/internal/uploader"
)

// Event is the single outward envelope for every asynchronous signal the
// backend raises: relay-event, relay-status, tor-log, tor-error,
// tor-status. deep-link is owned by the UI chrome and never raised here.
type Event struct {
	Kind     string          `json:"kind"`
	RelayURL string          `json:"relayUrl,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Status   string          `json:"status,omitempty"`
	Error    string          `json:"error,omitempty"`
	Line     string          `json:"line,omitempty"`
}

// Surface is the stateless command-surface façade. It holds no state of
// its own beyond references to the components it wires together.
type Surface struct {
	log *slog.Logger

	rt    *netrt.Runtime
	sess  *session.Session
	store *secretstore.Store
	sig   *signer.Signer
	pool  *relaypool.Pool
	up    *uploader.Uploader
	sup   *proxysup.Supervisor

	events chan Event
}

// New wires a fresh Surface. proxyBinaryPath/proxyArgs configure the
// child process proxysup.Supervisor spawns for start_tor.
func New(log *slog.Logger, store *secretstore.Store, proxyBinaryPath string, proxyArgs []string) *Surface {
	rt := netrt.New()
	sess := session.New()
	sig := signer.New(sess)
	pool := relaypool.New(rt)
	up := uploader.New(rt, sig)
	sup := proxysup.New(rt, proxyBinaryPath, proxyArgs)

	s := &Surface{
		log:    log,
		rt:     rt,
		sess:   sess,
		store:  store,
		sig:    sig,
		pool:   pool,
		up:     up,
		sup:    sup,
		events: make(chan Event, 512),
	}
	go s.fanIn()
	return s
}

// Events streams every asynchronous event raised by the wired
// components, to be mirrored onto the IPC transport.
func (s *Surface) Events() <-chan Event { return s.events }

func (s *Surface) fanIn() {
	for {
		select {
		case ev, ok := <-s.pool.RelayEvents():
			if !ok {
				return
			}
			s.events <- Event{Kind: "relay-event", RelayURL: ev.RelayURL, Payload: ev.Payload}
		case ev, ok := <-s.pool.StatusEvents():
			if !ok {
				return
			}
			s.events <- Event{Kind: "relay-status", RelayURL: ev.RelayURL, Status: ev.Status, Error: ev.Error}
		case ev, ok := <-s.sup.LogEvents():
			if !ok {
				return
			}
			s.events <- Event{Kind: "tor-log", Line: ev.Line}
		case ev, ok := <-s.sup.ErrorEvents():
			if !ok {
				return
			}
			s.events <- Event{Kind: "tor-error", Line: ev.Line}
		case ev, ok := <-s.sup.StatusEvents():
			if !ok {
				return
			}
			s.events <- Event{Kind: "tor-status", Status: ev.Status}
		}
	}
}

// ConnectRelay opens a connection to url (connect_relay).
func (s *Surface) ConnectRelay(ctx context.Context, url string) *Error {
	return classify(s.pool.Connect(ctx, url))
}

// DisconnectRelay closes the connection to url (disconnect_relay).
func (s *Surface) DisconnectRelay(url string) *Error {
	return classify(s.pool.Disconnect(url))
}

// ProbeRelay runs the out-of-band diagnostic (probe_relay).
func (s *Surface) ProbeRelay(ctx context.Context, url string) (*netrt.ProbeReport, *Error) {
	return s.pool.Probe(ctx, url), nil
}

// PublishEvent enqueues an EVENT frame (publish_event).
func (s *Surface) PublishEvent(url string, eventJSON json.RawMessage) *Error {
	return classify(s.pool.Publish(url, eventJSON))
}

// SubscribeRelay upserts a subscription (subscribe_relay).
func (s *Surface) SubscribeRelay(url, subID string, filter json.RawMessage) *Error {
	return classify(s.pool.Subscribe(url, subID, filter))
}

// UnsubscribeRelay removes a subscription (unsubscribe_relay).
func (s *Surface) UnsubscribeRelay(url, subID string) *Error {
	return classify(s.pool.Unsubscribe(url, subID))
}

// SendRelayMessage enqueues a raw text frame (send_relay_message).
func (s *Surface) SendRelayMessage(url, text string) *Error {
	return classify(s.pool.SendRaw(url, text))
}

// StartTor starts the proxy child process (start_tor).
func (s *Surface) StartTor() *Error {
	return classify(s.sup.Start())
}

// StopTor stops the proxy child process (stop_tor).
func (s *Surface) StopTor() *Error {
	return classify(s.sup.Stop())
}

// GetTorStatus reports whether the proxy child is running (get_tor_status).
func (s *Surface) GetTorStatus() string {
	return s.sup.Status()
}

// SaveTorSettings persists settings and propagates them to the
// NetworkRuntime (save_tor_settings).
func (s *Surface) SaveTorSettings(settingsPath string, enabled bool, proxyURL string) *Error {
	return classify(s.sup.SaveSettings(settingsPath, enabled, proxyURL))
}

// InitNativeSession hydrates the Session from SecretStore if it is
// currently empty, returning the active public key (init_native_session).
func (s *Surface) InitNativeSession() (string, *Error) {
	return s.hydrateAndGetPubkey()
}

func (s *Surface) hydrateAndGetPubkey() (string, *Error) {
	if s.sess.Active() {
		pub, err := s.sess.PublicKey()
		if err != nil {
			return "", classify(err)
		}
		return pub, nil
	}

	nsec, err := s.store.Get()
	if err != nil {
		return "", classify(err)
	}
	pub, err := s.sess.SetKeys(nsec)
	if err != nil {
		return "", classify(err)
	}
	s.log.Info("hydrated session from secret store")
	return pub, nil
}

// ClearNativeSession drops the in-memory identity only, leaving
// SecretStore untouched (clear_native_session).
func (s *Surface) ClearNativeSession() {
	s.sess.Clear()
}

// GetNativeNpub returns the active identity's bech32 public key,
// hydrating from SecretStore first if necessary (get_native_npub).
func (s *Surface) GetNativeNpub() (string, *Error) {
	if _, err := s.hydrateAndGetPubkey(); err != nil {
		return "", err
	}
	npub, err := s.sig.EncodeNpub()
	if err != nil {
		return "", classify(err)
	}
	return npub, nil
}

// ImportNativeNsec writes a user-supplied nsec/hex secret key into both
// Session and SecretStore (import_native_nsec).
func (s *Surface) ImportNativeNsec(input string) (string, *Error) {
	pub, err := s.sess.SetKeys(input)
	if err != nil {
		return "", classify(err)
	}
	sk, err := s.sess.SecretKey()
	if err != nil {
		return "", classify(err)
	}
	nsec, err := nip19.EncodePrivateKey(sk)
	if err != nil {
		return "", classify(err)
	}
	if err := s.store.Set(nsec); err != nil {
		return "", classify(err)
	}
	return pub, nil
}

// GenerateNativeNsec creates a fresh identity, writes it to Session and
// SecretStore, and returns the new public key in bech32 form
// (generate_native_nsec).
func (s *Surface) GenerateNativeNsec() (string, *Error) {
	pub, err := s.sess.Generate()
	if err != nil {
		return "", classify(err)
	}
	sk, err := s.sess.SecretKey()
	if err != nil {
		return "", classify(err)
	}
	nsec, err := nip19.EncodePrivateKey(sk)
	if err != nil {
		return "", classify(err)
	}
	if err := s.store.Set(nsec); err != nil {
		return "", classify(err)
	}
	npub, err := nip19.EncodePublicKey(pub)
	if err != nil {
		return "", classify(err)
	}
	return npub, nil
}

// SignEventNative constructs and signs an event using the active identity
// (sign_event_native).
func (s *Surface) SignEventNative(kind int, content string, tags nostr.Tags, createdAt int64) (*nostr.Event, *Error) {
	ev := &nostr.Event{
		Kind:      kind,
		Content:   content,
		Tags:      tags,
		CreatedAt: nostr.Timestamp(createdAt),
	}
	if err := s.sig.SignEvent(ev); err != nil {
		return nil, classify(err)
	}
	return ev, nil
}

// LogoutNative clears both Session and SecretStore (logout_native).
func (s *Surface) LogoutNative() *Error {
	s.sess.Clear()
	return classify(s.store.Clear())
}

// EncryptNip04 encrypts plaintext for peerPubkeyHex (encrypt_nip04).
func (s *Surface) EncryptNip04(peerPubkeyHex, plaintext string) (string, *Error) {
	ciphertext, err := s.sig.EncryptDM(peerPubkeyHex, plaintext)
	if err != nil {
		return "", classify(err)
	}
	return ciphertext, nil
}

// DecryptNip04 reverses EncryptNip04 (decrypt_nip04).
func (s *Surface) DecryptNip04(peerPubkeyHex, ciphertext string) (string, *Error) {
	plaintext, err := s.sig.DecryptDM(peerPubkeyHex, ciphertext)
	if err != nil {
		return "", classify(err)
	}
	return plaintext, nil
}

// Nip96Upload performs an authenticated multipart upload (nip96_upload).
func (s *Surface) Nip96Upload(apiURL string, fileBytes []byte, fileName, contentType string) (*uploader.Result, *Error) {
	res, err := s.up.Upload(apiURL, fileBytes, fileName, contentType)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}
