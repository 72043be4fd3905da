// Package executor runs one blocking call on a private, single-use
// errgroup. Nothing is shared between executors.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var (
	ErrSetup = errors.New("execution setup failed")
	ErrUsed  = errors.New("executor already used")
)

// Executor runs exactly one task and is then discarded
type Executor struct {
	group *errgroup.Group
	ctx   context.Context
	used  atomic.Bool
}

// New creates an executor with its own root context
func New() *Executor {
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(1)
	return &Executor{group: g, ctx: ctx}
}

// panicError carries a recovered panic back to the calling goroutine
type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// Do runs fn to completion and returns its result. A second call on the
// same executor fails with ErrSetup. A panic in fn is re-raised on the
// caller's goroutine.
func Do[T any](ex *Executor, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if !ex.used.CompareAndSwap(false, true) {
		return zero, fmt.Errorf("%w: %w", ErrSetup, ErrUsed)
	}

	var result T
	started := ex.group.TryGo(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicError{value: r}
			}
		}()
		result, err = fn(ex.ctx)
		return err
	})
	if !started {
		return zero, fmt.Errorf("%w: task slot unavailable", ErrSetup)
	}

	if err := ex.group.Wait(); err != nil {
		var p panicError
		if errors.As(err, &p) {
			panic(p.value)
		}
		return zero, err
	}
	return result, nil
}

// Run creates a fresh executor, runs fn on it and tears it down
func Run[T any](fn func(context.Context) (T, error)) (T, error) {
	return Do(New(), fn)
}
