// Package passphrase obtains the store passphrase from the environment,
// the OS keyring or an interactive prompt, in that order.
package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/illarion/cloudvault/crypto"
	"github.com/illarion/cloudvault/internal/keyring"
)

// EnvVar holds a passphrase for non-interactive use
const EnvVar = "CLOUDVAULT_PASSPHRASE"

var (
	ErrMismatch = errors.New("passphrases do not match")
	ErrEmpty    = errors.New("passphrase must not be empty")
)

// Source is where a passphrase was found
type Source int

const (
	SourceEnv Source = iota
	SourceKeyring
	SourcePrompt
)

func (s Source) String() string {
	switch s {
	case SourceEnv:
		return "environment"
	case SourceKeyring:
		return "keyring"
	default:
		return "prompt"
	}
}

// Reader reads a passphrase without echo. The default reads from the
// controlling terminal.
type Reader func(prompt string) ([]byte, error)

// Resolver looks up the passphrase for one store
type Resolver struct {
	Store  string
	Getenv func(string) string
	Read   Reader
}

// NewResolver creates a Resolver for the store URI using the process
// environment and the terminal.
func NewResolver(store string) *Resolver {
	return &Resolver{Store: store, Getenv: os.Getenv, Read: ReadTerminal(os.Stderr)}
}

// Resolve returns the passphrase and where it came from. When prompting,
// confirm asks for the passphrase twice.
func (r *Resolver) Resolve(confirm bool) ([]byte, Source, error) {
	if v := r.Getenv(EnvVar); v != "" {
		return []byte(v), SourceEnv, nil
	}
	if secret, err := keyring.GetPassphrase(r.Store); err == nil && len(secret) > 0 {
		return secret, SourceKeyring, nil
	}

	var (
		secret []byte
		err    error
	)
	if confirm {
		secret, err = ReadConfirm(r.Read)
	} else {
		secret, err = r.Read("Enter passphrase: ")
	}
	if err != nil {
		return nil, SourcePrompt, err
	}
	if len(secret) == 0 {
		return nil, SourcePrompt, ErrEmpty
	}
	return secret, SourcePrompt, nil
}

// ReadTerminal returns a Reader printing prompts to w
func ReadTerminal(w io.Writer) Reader {
	return func(prompt string) ([]byte, error) {
		fmt.Fprint(w, prompt)

		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(w)

		if err != nil {
			return nil, fmt.Errorf("failed to read passphrase: %w", err)
		}
		return secret, nil
	}
}

// ReadConfirm reads a passphrase twice and ensures both entries match
func ReadConfirm(read Reader) ([]byte, error) {
	first, err := read("Enter passphrase: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(first)

	second, err := read("Confirm passphrase: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(second)

	if !crypto.ConstantTimeCompare(first, second) {
		return nil, ErrMismatch
	}

	result := make([]byte, len(first))
	copy(result, first)
	return result, nil
}
