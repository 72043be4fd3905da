package localdisk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/illarion/cloudvault/storage"
	"github.com/illarion/cloudvault/storage/storagetest"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "storagecache"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return newTestStorage(t)
	})
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected a directory")
	}
	if s.Path() != dir {
		t.Errorf("Path() = %q, want %q", s.Path(), dir)
	}
}

func TestRejectsUnsafeIDs(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	unsafe := []string{
		"",
		"../escape",
		"/etc/passwd",
		"nested/file",
		"a/../b",
		tempPrefix + "abc",
	}
	for _, id := range unsafe {
		if _, err := s.Create(ctx, id); !errors.Is(err, storage.ErrInvalidID) {
			t.Errorf("Create(%q): got %v, want ErrInvalidID", id, err)
		}
		if _, err := s.Get(ctx, id); !errors.Is(err, storage.ErrInvalidID) {
			t.Errorf("Get(%q): got %v, want ErrInvalidID", id, err)
		}
		if err := s.Update(ctx, id, []byte("x")); !errors.Is(err, storage.ErrInvalidID) {
			t.Errorf("Update(%q): got %v, want ErrInvalidID", id, err)
		}
		if err := s.Delete(ctx, id); !errors.Is(err, storage.ErrInvalidID) {
			t.Errorf("Delete(%q): got %v, want ErrInvalidID", id, err)
		}
	}

	// Nothing may have been written next to the store
	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("unexpected entries beside the store: %v", entries)
	}
}

func TestListSkipsTempFilesAndDirectories(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, "visible"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.Path(), tempPrefix+"dead"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(s.Path(), "subdir"), 0700); err != nil {
		t.Fatal(err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != "visible" || list[0].Name != "visible" {
		t.Errorf("List = %+v, want only 'visible'", list)
	}
	if list[0].LastModified == "" {
		t.Error("LastModified should be set")
	}

	if _, err := s.Get(ctx, "subdir"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get(directory): got %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "subdir"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Delete(directory): got %v, want ErrNotFound", err)
	}
}

func TestUpdateLeavesNoTempFiles(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "obj")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := s.Update(ctx, id, []byte("content")); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	entries, err := os.ReadDir(s.Path())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 file, found %d", len(entries))
	}

	info, err := os.Stat(filepath.Join(s.Path(), "obj"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Create(ctx, "kept"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Update(ctx, "kept", []byte("still here")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	s.Close()

	s, err = New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	data, err := s.Get(ctx, "kept")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "still here" {
		t.Errorf("data = %q", data)
	}
}

func TestCreateTruncatesExisting(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, "obj"); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, "obj", []byte("old")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, "obj"); err != nil {
		t.Fatal(err)
	}

	data, err := s.Get(ctx, "obj")
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("data = %q, want empty", data)
	}
}
