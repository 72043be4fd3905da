// Package ipfs stores objects as files in the Mutable File System (MFS)
// of an IPFS node, under a single root directory.
//
// MFS does not record modification times, so LastModified is always
// empty. Every write produces a new content identifier for the file.
package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/illarion/cloudvault/storage"
)

const backendName = "ipfs"

// entry types reported by files/ls with long listing
const (
	mfsFile      uint8 = 0
	mfsDirectory uint8 = 1
)

// API is the subset of *shell.Shell used by Storage
type API interface {
	FilesLs(ctx context.Context, path string, options ...shell.FilesOpt) ([]*shell.MfsLsEntry, error)
	FilesRead(ctx context.Context, path string, options ...shell.FilesOpt) (io.ReadCloser, error)
	FilesWrite(ctx context.Context, path string, data io.Reader, options ...shell.FilesOpt) error
	FilesRm(ctx context.Context, path string, force bool) error
	FilesStat(ctx context.Context, path string, options ...shell.FilesOpt) (*shell.FilesStatObject, error)
}

// Storage implements storage.Storage on an MFS directory
type Storage struct {
	api  API
	root string
}

// New creates a Storage rooted at the MFS directory root
func New(api API, root string) *Storage {
	return &Storage{api: api, root: path.Clean("/" + root)}
}

// NewFromURL connects to the node RPC API at host:port
func NewFromURL(apiURL, root string) *Storage {
	return New(shell.NewShell(apiURL), root)
}

func (s *Storage) path(id string) string {
	return s.root + "/" + id
}

func validateID(id string) error {
	switch {
	case id == "":
		return storage.InvalidID(id, "empty name")
	case id == "." || id == "..":
		return storage.InvalidID(id, "reserved name")
	case strings.Contains(id, "/"):
		return storage.InvalidID(id, "nested paths are not supported")
	}
	return nil
}

func (s *Storage) List(ctx context.Context) ([]storage.ObjectMetadata, error) {
	entries, err := s.api.FilesLs(ctx, s.root, shell.FilesLs.Stat(true))
	if err != nil {
		// A root that was never written to is an empty store
		if isNotExist(err) {
			return []storage.ObjectMetadata{}, nil
		}
		return nil, storage.NewBackendError(backendName, "list", "", err)
	}

	out := make([]storage.ObjectMetadata, 0, len(entries))
	for _, e := range entries {
		if e == nil || e.Name == "" || e.Type != mfsFile {
			continue
		}
		out = append(out, storage.NewObjectMetadata(e.Name, e.Name, "", e.Size))
	}
	return out, nil
}

func (s *Storage) Create(ctx context.Context, name string) (string, error) {
	if err := validateID(name); err != nil {
		return "", err
	}
	err := s.api.FilesWrite(ctx, s.path(name), bytes.NewReader(nil),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true),
	)
	if err != nil {
		return "", storage.NewBackendError(backendName, "create", name, err)
	}
	return name, nil
}

func (s *Storage) Get(ctx context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	r, err := s.api.FilesRead(ctx, s.path(id))
	if err != nil {
		return nil, classify("get", id, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, classify("get", id, err)
	}
	return data, nil
}

func (s *Storage) Update(ctx context.Context, id string, data []byte) error {
	if err := s.requireFile(ctx, id); err != nil {
		return classify("update", id, err)
	}
	err := s.api.FilesWrite(ctx, s.path(id), bytes.NewReader(data),
		shell.FilesWrite.Truncate(true),
	)
	return classify("update", id, err)
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	if err := s.requireFile(ctx, id); err != nil {
		return classify("delete", id, err)
	}
	return classify("delete", id, s.api.FilesRm(ctx, s.path(id), true))
}

// requireFile fails with a not-exist error unless id is an MFS file
func (s *Storage) requireFile(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	st, err := s.api.FilesStat(ctx, s.path(id))
	if err != nil {
		return err
	}
	if st.Type != "" && st.Type != "file" {
		return fmt.Errorf("%s: file does not exist (is a %s)", id, st.Type)
	}
	return nil
}

func classify(op, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case isNotExist(err):
		return storage.NotFound(id)
	case errors.Is(err, storage.ErrInvalidID):
		return err
	default:
		return storage.NewBackendError(backendName, op, id, err)
	}
}

// The RPC API reports missing paths only through its message text
func isNotExist(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "no link named")
}
