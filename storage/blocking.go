package storage

import (
	"context"
	"errors"

	"github.com/illarion/cloudvault/internal/executor"
)

// Blocking is the synchronous form of a Storage. Every call runs on a
// fresh single-use executor that is discarded when the call returns.
type Blocking struct {
	s   Storage
	env Sealer
}

// BlockingOption configures a Blocking wrapper
type BlockingOption func(*Blocking)

// WithSealer sets the envelope used by the encrypted operations
func WithSealer(env Sealer) BlockingOption {
	return func(b *Blocking) {
		b.env = env
	}
}

// NewBlocking wraps s
func NewBlocking(s Storage, opts ...BlockingOption) *Blocking {
	b := &Blocking{s: s}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Storage returns the wrapped storage
func (b *Blocking) Storage() Storage {
	return b.s
}

// List is the blocking form of Storage.List
func (b *Blocking) List() ([]ObjectMetadata, error) {
	return run("list", "", func(ctx context.Context) ([]ObjectMetadata, error) {
		return b.s.List(ctx)
	})
}

// Create is the blocking form of Storage.Create
func (b *Blocking) Create(name string) (string, error) {
	return run("create", name, func(ctx context.Context) (string, error) {
		return b.s.Create(ctx, name)
	})
}

// Get is the blocking form of Storage.Get
func (b *Blocking) Get(id string) ([]byte, error) {
	return run("get", id, func(ctx context.Context) ([]byte, error) {
		return b.s.Get(ctx, id)
	})
}

// Update is the blocking form of Storage.Update
func (b *Blocking) Update(id string, data []byte) error {
	_, err := run("update", id, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, b.s.Update(ctx, id, data)
	})
	return err
}

// Delete is the blocking form of Storage.Delete
func (b *Blocking) Delete(id string) error {
	_, err := run("delete", id, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, b.s.Delete(ctx, id)
	})
	return err
}

// GetAndDecrypt is the blocking form of GetAndDecrypt
func (b *Blocking) GetAndDecrypt(id, passphrase string) ([]byte, error) {
	return run("get_and_decrypt", id, func(ctx context.Context) ([]byte, error) {
		if b.env != nil {
			return GetAndDecryptWith(ctx, b.s, b.env, id, passphrase)
		}
		return GetAndDecrypt(ctx, b.s, id, passphrase)
	})
}

// EncryptAndUpdate is the blocking form of EncryptAndUpdate
func (b *Blocking) EncryptAndUpdate(id string, data []byte, passphrase string) error {
	_, err := run("encrypt_and_update", id, func(ctx context.Context) (struct{}, error) {
		if b.env != nil {
			return struct{}{}, EncryptAndUpdateWith(ctx, b.s, b.env, id, data, passphrase)
		}
		return struct{}{}, EncryptAndUpdate(ctx, b.s, id, data, passphrase)
	})
	return err
}

// run executes fn on its own executor. Errors from fn pass through
// untouched; only executor failures are tagged here.
func run[T any](op, id string, fn func(context.Context) (T, error)) (T, error) {
	var failed bool
	result, err := executor.Run(func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		failed = err != nil
		return v, err
	})
	if err != nil && !failed && errors.Is(err, executor.ErrSetup) {
		return result, &OpError{Op: op, Stage: StageExecute, ID: id, Err: err}
	}
	return result, err
}
