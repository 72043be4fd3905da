package localdisk

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/illarion/cloudvault/storage"
)

const (
	backendName = "localdisk"
	tempPrefix  = ".cloudvault-tmp-"
)

// Storage keeps one file per object in a flat directory. All file
// operations go through os.Root so ids cannot reach outside it.
type Storage struct {
	root     *os.Root
	rootPath string
	perm     os.FileMode
}

// Option configures a Storage
type Option func(*Storage)

// WithFileMode sets the permissions of object files (default 0600)
func WithFileMode(perm os.FileMode) Option {
	return func(s *Storage) {
		s.perm = perm
	}
}

// New opens the directory at rootPath, creating it if needed
func New(rootPath string, opts ...Option) (*Storage, error) {
	absPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage root: %w", err)
	}

	s := &Storage{
		root:     root,
		rootPath: absPath,
		perm:     0600,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the absolute directory of the store
func (s *Storage) Path() string {
	return s.rootPath
}

// Close releases the directory handle
func (s *Storage) Close() error {
	return s.root.Close()
}

func (s *Storage) List(_ context.Context) ([]storage.ObjectMetadata, error) {
	entries, err := fs.ReadDir(s.root.FS(), ".")
	if err != nil {
		return nil, storage.NewBackendError(backendName, "list", "", err)
	}

	out := make([]storage.ObjectMetadata, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, storage.NewBackendError(backendName, "list", entry.Name(), err)
		}
		out = append(out, storage.NewObjectMetadata(
			entry.Name(),
			entry.Name(),
			info.ModTime().UTC().Format(time.RFC3339Nano),
			uint64(info.Size()),
		))
	}
	return out, nil
}

// Create writes an empty file named name. An existing object with the
// same name is truncated.
func (s *Storage) Create(_ context.Context, name string) (string, error) {
	if err := validateID(name); err != nil {
		return "", err
	}
	if err := s.writeAtomic(name, nil); err != nil {
		return "", storage.NewBackendError(backendName, "create", name, err)
	}
	return name, nil
}

func (s *Storage) Get(_ context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := s.requireFile(id); err != nil {
		return nil, s.classify("get", id, err)
	}

	data, err := s.root.ReadFile(id)
	if err != nil {
		return nil, s.classify("get", id, err)
	}
	return data, nil
}

func (s *Storage) Update(_ context.Context, id string, data []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := s.requireFile(id); err != nil {
		return s.classify("update", id, err)
	}
	if err := s.writeAtomic(id, data); err != nil {
		return storage.NewBackendError(backendName, "update", id, err)
	}
	return nil
}

func (s *Storage) Delete(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := s.requireFile(id); err != nil {
		return s.classify("delete", id, err)
	}
	if err := s.root.Remove(id); err != nil {
		return s.classify("delete", id, err)
	}
	return nil
}

// requireFile fails with fs.ErrNotExist unless id is a regular file
func (s *Storage) requireFile(id string) error {
	info, err := s.root.Stat(id)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file: %w", id, fs.ErrNotExist)
	}
	return nil
}

func (s *Storage) classify(op, id string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return storage.NotFound(id)
	}
	return storage.NewBackendError(backendName, op, id, err)
}

// writeAtomic writes data to a temp file and renames it over id
func (s *Storage) writeAtomic(id string, data []byte) (err error) {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Errorf("failed to generate temp name: %w", err)
	}
	tmpName := tempPrefix + hex.EncodeToString(suffix)

	f, err := s.root.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, s.perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			s.root.Remove(tmpName)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = s.root.Rename(tmpName, id); err != nil {
		return fmt.Errorf("failed to commit %s: %w", id, err)
	}
	return nil
}
