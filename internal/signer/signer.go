// Package signer constructs and signs Nostr events, and performs legacy
// NIP-04 shared-secret encryption, against whichever identity is currently
// active in an internal/session.Session. It is grounded on
// asmogo-nws/protocol/signer.go's EventSigner, generalized from that
// package's single ephemeral-event kind to arbitrary kinds/tags/content.
package signer

import (
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/obscurnet/nativebridge/internal/session"
)

// Signer signs events and performs NIP-04 operations using whatever
// identity is currently active in sess. It holds no key material of its
// own.
type Signer struct {
	sess *session.Session
}

func New(sess *session.Session) *Signer {
	return &Signer{sess: sess}
}

// Active reports whether the underlying session currently holds an
// identity.
func (s *Signer) Active() bool {
	return s.sess.Active()
}

// SignEvent fills in PubKey, CreatedAt, ID and Sig for an event the caller
// has already populated with Kind, Content and Tags.
func (s *Signer) SignEvent(ev *nostr.Event) error {
	sk, err := s.sess.SecretKey()
	if err != nil {
		return err
	}
	pub, err := s.sess.PublicKey()
	if err != nil {
		return err
	}
	ev.PubKey = pub
	if ev.CreatedAt == 0 {
		ev.CreatedAt = nostr.Now()
	}
	if err := ev.Sign(sk); err != nil {
		return fmt.Errorf("signer: sign event: %w", err)
	}
	return nil
}

// EncryptDM encrypts plaintext for peerPubkeyHex using the legacy NIP-04
// shared-secret scheme.
func (s *Signer) EncryptDM(peerPubkeyHex, plaintext string) (string, error) {
	sk, err := s.sess.SecretKey()
	if err != nil {
		return "", err
	}
	shared, err := nip04.ComputeSharedSecret(peerPubkeyHex, sk)
	if err != nil {
		return "", fmt.Errorf("signer: compute shared secret: %w", err)
	}
	ciphertext, err := nip04.Encrypt(plaintext, shared)
	if err != nil {
		return "", fmt.Errorf("signer: encrypt: %w", err)
	}
	return ciphertext, nil
}

// DecryptDM reverses EncryptDM.
func (s *Signer) DecryptDM(peerPubkeyHex, ciphertext string) (string, error) {
	sk, err := s.sess.SecretKey()
	if err != nil {
		return "", err
	}
	shared, err := nip04.ComputeSharedSecret(peerPubkeyHex, sk)
	if err != nil {
		return "", fmt.Errorf("signer: compute shared secret: %w", err)
	}
	plaintext, err := nip04.Decrypt(ciphertext, shared)
	if err != nil {
		return "", fmt.Errorf("signer: decrypt: %w", err)
	}
	return plaintext, nil
}

// EncodeNpub returns the bech32 npub for the active identity's public key.
func (s *Signer) EncodeNpub() (string, error) {
	pub, err := s.sess.PublicKey()
	if err != nil {
		return "", err
	}
	npub, err := nip19.EncodePublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("signer: encode npub: %w", err)
	}
	return npub, nil
}

// DecodeNpub converts an npub string back to a hex public key, independent
// of any active session.
func DecodeNpub(npub string) (string, error) {
	prefix, value, err := nip19.Decode(npub)
	if err != nil {
		return "", fmt.Errorf("signer: invalid npub: %w", err)
	}
	if prefix != "npub" {
		return "", fmt.Errorf("signer: expected npub, got %s", prefix)
	}
	pub, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("signer: malformed npub payload")
	}
	return pub, nil
}
