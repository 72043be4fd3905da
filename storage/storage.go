package storage

import (
	"context"
	"io"
)

// ObjectMetadata describes one stored object
type ObjectMetadata struct {
	ID           string // backend-scoped identifier
	Name         string // display name, equal to ID for most backends
	LastModified string // backend-formatted timestamp, may be empty
	Size         uint64 // stored size in bytes
}

// NewObjectMetadata creates an ObjectMetadata value
func NewObjectMetadata(id, name, lastModified string, size uint64) ObjectMetadata {
	return ObjectMetadata{
		ID:           id,
		Name:         name,
		LastModified: lastModified,
		Size:         size,
	}
}

// Storage is implemented by every backend adapter
type Storage interface {
	// List enumerates the objects currently visible to the backend
	List(ctx context.Context) ([]ObjectMetadata, error)
	// Create makes a new empty object and returns its id
	Create(ctx context.Context, name string) (string, error)
	// Get returns the full content of an object
	Get(ctx context.Context, id string) ([]byte, error)
	// Update replaces the content of an existing object
	Update(ctx context.Context, id string, data []byte) error
	// Delete removes an object
	Delete(ctx context.Context, id string) error
}

// Close closes s if it holds resources
func Close(s Storage) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
