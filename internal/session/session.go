// Package session holds the single active signing identity for the
// bridge process: a secret key derived either from a freshly generated
// keypair or from an nsec/hex string supplied by the caller. Only one
// identity is ever held at a time.
package session

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// ErrNoSession is returned when an operation requires an active identity
// and none has been set.
var ErrNoSession = errors.New("session: no active session")

type keypair struct {
	secretKey zeroable
	publicKey string
}

// Session is a mutex-guarded holder for the active keypair. All access
// goes through short, non-blocking critical sections — nothing here ever
// waits on I/O while holding the lock.
type Session struct {
	mu sync.Mutex
	kp *keypair
}

func New() *Session {
	return &Session{}
}

// SetKeys parses a bech32 nsec or 64-character hex secret key, derives the
// public key, and replaces any previously active identity. The old secret
// is zeroed before being dropped.
func (s *Session) SetKeys(input string) (pubkeyHex string, err error) {
	sk, err := parseSecretKey(input)
	if err != nil {
		return "", err
	}
	pub, err := nostr.GetPublicKey(sk)
	if err != nil {
		return "", fmt.Errorf("session: derive public key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kp != nil {
		s.kp.secretKey.Zero()
	}
	s.kp = &keypair{secretKey: newZeroable(sk), publicKey: pub}
	return pub, nil
}

// Generate creates a brand new random keypair and activates it, returning
// the new public key.
func (s *Session) Generate() (pubkeyHex string, err error) {
	sk := nostr.GeneratePrivateKey()
	return s.SetKeys(sk)
}

// Clear zeroes and drops the active identity, if any.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kp != nil {
		s.kp.secretKey.Zero()
		s.kp = nil
	}
}

// Active reports whether an identity is currently set.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kp != nil
}

// SecretKey returns the active secret key as hex, or ErrNoSession.
func (s *Session) SecretKey() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kp == nil {
		return "", ErrNoSession
	}
	return s.kp.secretKey.String(), nil
}

// PublicKey returns the active public key as hex, or ErrNoSession.
func (s *Session) PublicKey() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kp == nil {
		return "", ErrNoSession
	}
	return s.kp.publicKey, nil
}

// ErrInvalidKeyFormat is wrapped into every parseSecretKey failure so
// callers (internal/bridge) can classify it as a bad-input error rather
// than a generic I/O failure.
var ErrInvalidKeyFormat = errors.New("session: invalid secret key format")

func parseSecretKey(input string) (string, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "nsec1") {
		prefix, value, err := nip19.Decode(input)
		if err != nil {
			return "", fmt.Errorf("%w: invalid nsec: %v", ErrInvalidKeyFormat, err)
		}
		if prefix != "nsec" {
			return "", fmt.Errorf("%w: expected nsec, got %s", ErrInvalidKeyFormat, prefix)
		}
		sk, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("%w: malformed nsec payload", ErrInvalidKeyFormat)
		}
		return sk, nil
	}
	if len(input) != 64 {
		return "", fmt.Errorf("%w: secret key must be nsec1... or 64 hex characters, got %d bytes", ErrInvalidKeyFormat, len(input))
	}
	if _, err := hex.DecodeString(input); err != nil {
		return "", fmt.Errorf("%w: invalid secret key hex: %v", ErrInvalidKeyFormat, err)
	}
	return input, nil
}
