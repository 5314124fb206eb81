// Package secretstore persists the user's nsec in the OS credential store
// (macOS Keychain, Windows Credential Manager, Secret Service on Linux),
// keeping it out of any on-disk config file.
package secretstore

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const entryName = "nsec"

// ErrNotFound is returned by Get when no secret has been stored yet. It is
// not itself an error condition for callers — the bridge layer maps it to
// "no saved session" rather than surfacing a failure.
var ErrNotFound = errors.New("secretstore: no entry")

// Store wraps the OS credential store under a single service name.
type Store struct {
	service string
}

func New(service string) *Store {
	return &Store{service: service}
}

// Get returns the stored nsec, or ErrNotFound if nothing has been saved.
func (s *Store) Get() (string, error) {
	v, err := keyring.Get(s.service, entryName)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("secretstore: get: %w", err)
	}
	return v, nil
}

// Set saves or overwrites the stored nsec.
func (s *Store) Set(nsec string) error {
	if err := keyring.Set(s.service, entryName, nsec); err != nil {
		return fmt.Errorf("secretstore: set: %w", err)
	}
	return nil
}

// Clear removes the stored nsec. Clearing an already-empty store is not an
// error.
func (s *Store) Clear() error {
	err := keyring.Delete(s.service, entryName)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("secretstore: clear: %w", err)
	}
	return nil
}
