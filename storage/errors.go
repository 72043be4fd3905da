package storage

import (
	"errors"
	"fmt"

	"github.com/illarion/cloudvault/crypto"
	"github.com/illarion/cloudvault/internal/executor"
)

var (
	ErrNotFound       = errors.New("object not found")
	ErrBackend        = errors.New("backend error")
	ErrInvalidID      = errors.New("invalid object id")
	ErrEncryption     = crypto.ErrEncryption
	ErrDecryption     = crypto.ErrDecryption
	ErrExecutionSetup = executor.ErrSetup
)

// Stages reported by OpError
const (
	StageGet     = "get"
	StageDecrypt = "decrypt"
	StageEncrypt = "encrypt"
	StageUpdate  = "update"
	StageExecute = "execute"
)

// OpError records which stage of a derived operation failed
type OpError struct {
	Op    string
	Stage string
	ID    string
	Err   error
}

func (e *OpError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s failed: %v", e.Op, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %q: %s failed: %v", e.Op, e.ID, e.Stage, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// BackendError wraps a transport or storage fault raised by an adapter.
// It matches ErrBackend with errors.Is and unwraps to the adapter error.
type BackendError struct {
	Backend string
	Op      string
	ID      string
	Err     error
}

// NewBackendError wraps err as a backend fault
func NewBackendError(backend, op, id string, err error) error {
	return &BackendError{Backend: backend, Op: op, ID: id, Err: err}
}

func (e *BackendError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %q: %v", e.Backend, e.Op, e.ID, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

// NotFound returns ErrNotFound annotated with the id
func NotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// InvalidID returns ErrInvalidID annotated with the id and reason
func InvalidID(id, reason string) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidID, id, reason)
}
