// Package keyring caches store passphrases in the OS keyring. Entries
// are keyed by the store URI so each store keeps its own passphrase.
package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const serviceName = "cloudvault"

// ErrNotFound is returned when no passphrase is saved for a store
var ErrNotFound = keyring.ErrNotFound

// SavePassphrase stores a passphrase for store
func SavePassphrase(store string, passphrase []byte) error {
	if err := keyring.Set(serviceName, store, string(passphrase)); err != nil {
		return fmt.Errorf("failed to save passphrase to keyring: %w", err)
	}
	return nil
}

// GetPassphrase retrieves the passphrase saved for store
func GetPassphrase(store string) ([]byte, error) {
	secret, err := keyring.Get(serviceName, store)
	if err != nil {
		return nil, err
	}
	return []byte(secret), nil
}

// DeletePassphrase removes the passphrase saved for store.
// Deleting a missing entry is not an error.
func DeletePassphrase(store string) error {
	err := keyring.Delete(serviceName, store)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete passphrase from keyring: %w", err)
	}
	return nil
}

// HasPassphrase checks if a passphrase is saved for store
func HasPassphrase(store string) bool {
	_, err := keyring.Get(serviceName, store)
	return err == nil
}
