package ipfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/cloudvault/storage"
	"github.com/illarion/cloudvault/storage/storagetest"
)

// fakeMFS keeps a flat MFS tree in memory. Errors mimic the messages of
// the node RPC API.
type fakeMFS struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

func newFakeMFS() *fakeMFS {
	return &fakeMFS{files: map[string][]byte{}, dirs: map[string]bool{}}
}

var errNotExist = errors.New("files/stat: file does not exist")

func (f *fakeMFS) FilesLs(_ context.Context, dir string, _ ...shell.FilesOpt) ([]*shell.MfsLsEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirs[dir] {
		return nil, errors.New("files/ls: file does not exist")
	}
	child := func(p string) (string, bool) {
		name, ok := strings.CutPrefix(p, dir+"/")
		return name, ok && name != "" && !strings.Contains(name, "/")
	}
	var out []*shell.MfsLsEntry
	for p, data := range f.files {
		if name, ok := child(p); ok {
			out = append(out, &shell.MfsLsEntry{Name: name, Type: mfsFile, Size: uint64(len(data))})
		}
	}
	for p := range f.dirs {
		if name, ok := child(p); ok {
			out = append(out, &shell.MfsLsEntry{Name: name, Type: mfsDirectory})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeMFS) FilesRead(_ context.Context, p string, _ ...shell.FilesOpt) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[p]
	if !ok {
		return nil, errors.New("files/read: file does not exist")
	}
	return io.NopCloser(bytes.NewReader(append([]byte{}, data...))), nil
}

func (f *fakeMFS) FilesWrite(_ context.Context, p string, data io.Reader, _ ...shell.FilesOpt) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[p] = b
	f.dirs[p[:strings.LastIndex(p, "/")]] = true
	return nil
}

func (f *fakeMFS) FilesRm(_ context.Context, p string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[p]; !ok {
		return errors.New("files/rm: file does not exist")
	}
	delete(f.files, p)
	return nil
}

func (f *fakeMFS) FilesStat(_ context.Context, p string, _ ...shell.FilesOpt) (*shell.FilesStatObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dirs[p] {
		return &shell.FilesStatObject{Type: "directory"}, nil
	}
	data, ok := f.files[p]
	if !ok {
		return nil, errNotExist
	}
	return &shell.FilesStatObject{Type: "file", Size: uint64(len(data))}, nil
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return New(newFakeMFS(), "cloudvault")
	})
}

func TestRootIsNormalised(t *testing.T) {
	assert.Equal(t, "/cloudvault", New(nil, "cloudvault").root)
	assert.Equal(t, "/a/b", New(nil, "/a/b/").root)
	assert.Equal(t, "/a/b/obj", New(nil, "a/b").path("obj"))
}

func TestListOnMissingRootIsEmpty(t *testing.T) {
	list, err := New(newFakeMFS(), "never-written").List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)
}

func TestRejectsNestedIDs(t *testing.T) {
	s := New(newFakeMFS(), "root")
	ctx := context.Background()

	for _, id := range []string{"", ".", "..", "a/b"} {
		_, err := s.Create(ctx, id)
		assert.ErrorIs(t, err, storage.ErrInvalidID, id)
		assert.ErrorIs(t, s.Update(ctx, id, nil), storage.ErrInvalidID, id)
		assert.ErrorIs(t, s.Delete(ctx, id), storage.ErrInvalidID, id)
	}
}

func TestDirectoryIsNotAnObject(t *testing.T) {
	fake := newFakeMFS()
	fake.dirs["/root/sub"] = true
	s := New(fake, "root")

	assert.ErrorIs(t, s.Update(context.Background(), "sub", []byte("x")), storage.ErrNotFound)
	assert.ErrorIs(t, s.Delete(context.Background(), "sub"), storage.ErrNotFound)
}

func TestListSkipsDirectories(t *testing.T) {
	fake := newFakeMFS()
	fake.dirs["/root/sub"] = true
	s := New(fake, "root")
	ctx := context.Background()

	_, err := s.Create(ctx, "app.env")
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "app.env", list[0].ID)
}

func TestTransportErrorIsBackendError(t *testing.T) {
	s := New(failingAPI{}, "root")

	_, err := s.List(context.Background())
	assert.ErrorIs(t, err, storage.ErrBackend)

	_, err = s.Get(context.Background(), "x")
	assert.ErrorIs(t, err, storage.ErrBackend)
}

type failingAPI struct{ API }

var errRefused = errors.New("dial tcp 127.0.0.1:5001: connect: connection refused")

func (failingAPI) FilesLs(context.Context, string, ...shell.FilesOpt) ([]*shell.MfsLsEntry, error) {
	return nil, errRefused
}

func (failingAPI) FilesRead(context.Context, string, ...shell.FilesOpt) (io.ReadCloser, error) {
	return nil, errRefused
}
