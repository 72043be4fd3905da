package cmd

import (
	"fmt"
	"io"

	"github.com/illarion/cloudvault/crypto"
	"github.com/illarion/cloudvault/internal/keyring"
	"github.com/illarion/cloudvault/internal/passphrase"
)

// KeyringSave asks for the store passphrase twice and saves it to the OS
// keyring under the store URI.
func KeyringSave(out io.Writer, uri string, read passphrase.Reader) error {
	secret, err := passphrase.ReadConfirm(read)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(secret)
	if len(secret) == 0 {
		return passphrase.ErrEmpty
	}

	if err := keyring.SavePassphrase(uri, secret); err != nil {
		return err
	}
	fmt.Fprintln(out, "Passphrase saved to keyring")
	return nil
}

// KeyringDelete removes the saved passphrase for the store URI
func KeyringDelete(out io.Writer, uri string) error {
	if !keyring.HasPassphrase(uri) {
		fmt.Fprintln(out, "No passphrase stored in keyring")
		return nil
	}
	if err := keyring.DeletePassphrase(uri); err != nil {
		return err
	}
	fmt.Fprintln(out, "Passphrase removed from keyring")
	return nil
}

// KeyringStatus reports whether a passphrase is saved for the store URI
func KeyringStatus(out io.Writer, uri string) {
	if keyring.HasPassphrase(uri) {
		fmt.Fprintln(out, "Passphrase: stored in keyring")
	} else {
		fmt.Fprintln(out, "Passphrase: not stored")
	}
}
