package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/illarion/cloudvault/crypto"
	"github.com/illarion/cloudvault/factory"
	"github.com/illarion/cloudvault/internal/passphrase"
	"github.com/illarion/cloudvault/middleware"
	"github.com/illarion/cloudvault/storage"
)

var ErrCompactUnsupported = errors.New("compact is only supported for bolt:// stores")

// Env is what every store command runs against
type Env struct {
	Store *storage.Blocking
	URI   string
	Out   io.Writer
	// Passphrase returns the store passphrase, asking twice when confirm
	// is set and it has to prompt.
	Passphrase func(confirm bool) ([]byte, error)
}

// withPassphrase resolves the passphrase, runs fn and wipes it afterwards
func (e *Env) withPassphrase(confirm bool, fn func(secret string) error) error {
	secret, err := e.Passphrase(confirm)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(secret)
	return fn(string(secret))
}

// PassphraseFor resolves passphrases for the store URI from the
// environment, the keyring or the terminal.
func PassphraseFor(uri string) func(confirm bool) ([]byte, error) {
	r := passphrase.NewResolver(uri)
	return func(confirm bool) ([]byte, error) {
		secret, _, err := r.Resolve(confirm)
		return secret, err
	}
}

// PrintError writes err with a hint for the errors users commonly hit
func PrintError(w io.Writer, err error) {
	var opErr *storage.OpError
	var backendErr *storage.BackendError

	switch {
	case errors.Is(err, storage.ErrNotFound):
		fmt.Fprintf(w, "Error: %s\n", err)
		fmt.Fprintf(w, "Use 'cloudvault ls' to see stored objects\n")
	case errors.Is(err, storage.ErrDecryption):
		fmt.Fprintf(w, "Error: wrong passphrase or corrupted object\n")
		if errors.As(err, &opErr) && opErr.ID != "" {
			fmt.Fprintf(w, "Object: %s\n", opErr.ID)
		}
	case errors.Is(err, storage.ErrInvalidID):
		fmt.Fprintf(w, "Error: %s\n", err)
	case errors.Is(err, passphrase.ErrMismatch), errors.Is(err, passphrase.ErrEmpty):
		fmt.Fprintf(w, "Error: %s\n", err)
	case errors.Is(err, factory.ErrUnsupportedScheme), errors.Is(err, factory.ErrInvalidURI):
		fmt.Fprintf(w, "Error: %s\n", err)
		fmt.Fprintf(w, "Supported stores: file, bolt, mem, s3, minio, dynamodb, gdrive, ipfs, vault\n")
	case errors.Is(err, crypto.ErrUnknownCipher), errors.Is(err, middleware.ErrUnknownCodec):
		fmt.Fprintf(w, "Error: %s\n", err)
	case errors.As(err, &backendErr):
		fmt.Fprintf(w, "Error: %s backend failed: %v\n", backendErr.Backend, backendErr.Err)
	default:
		fmt.Fprintf(w, "Error: %s\n", err)
	}
}

// HandleError prints err to stderr and exits with status 1
func HandleError(err error) {
	PrintError(os.Stderr, err)
	os.Exit(1)
}

func formatSize(size uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
