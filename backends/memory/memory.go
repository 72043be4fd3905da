// Package memory is an in-process Storage. It is safe for concurrent use
// and mostly useful in tests and as a reference adapter.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/illarion/cloudvault/storage"
)

type object struct {
	name     string
	data     []byte
	modified time.Time
}

// Storage keeps objects in a map guarded by an RWMutex
type Storage struct {
	mu          sync.RWMutex
	objects     map[string]*object
	generateIDs bool
	now         func() time.Time
}

// Option configures a Storage
type Option func(*Storage)

// WithGeneratedIDs makes Create return a random UUID instead of the name,
// like backends that assign their own identifiers
func WithGeneratedIDs() Option {
	return func(s *Storage) {
		s.generateIDs = true
	}
}

// WithClock overrides the time source used for LastModified
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		s.now = now
	}
}

// New creates an empty in-memory store
func New(opts ...Option) *Storage {
	s := &Storage{
		objects: make(map[string]*object),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) List(_ context.Context) ([]storage.ObjectMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.ObjectMetadata, 0, len(s.objects))
	for id, obj := range s.objects {
		out = append(out, storage.NewObjectMetadata(
			id,
			obj.name,
			obj.modified.UTC().Format(time.RFC3339Nano),
			uint64(len(obj.data)),
		))
	}
	return out, nil
}

func (s *Storage) Create(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", storage.InvalidID(name, "empty name")
	}

	id := name
	if s.generateIDs {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id] = &object{name: name, data: []byte{}, modified: s.now()}
	return id, nil
}

func (s *Storage) Get(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[id]
	if !ok {
		return nil, storage.NotFound(id)
	}

	// Return a copy to prevent external mutation
	return append([]byte{}, obj.data...), nil
}

func (s *Storage) Update(_ context.Context, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[id]
	if !ok {
		return storage.NotFound(id)
	}
	obj.data = append([]byte{}, data...)
	obj.modified = s.now()
	return nil
}

func (s *Storage) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[id]; !ok {
		return storage.NotFound(id)
	}
	delete(s.objects, id)
	return nil
}
