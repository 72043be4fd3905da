package boltdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/illarion/cloudvault/storage"
	"github.com/illarion/cloudvault/storage/storagetest"
)

func openTestDB(t *testing.T, opts ...Option) *Storage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(dbPath, opts...)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return openTestDB(t)
	})
}

func TestOpenInitializesBuckets(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := openTestDB(t, WithClock(func() time.Time { return now }))

	created, err := s.Created()
	if err != nil {
		t.Fatalf("Created: %v", err)
	}
	if !created.Equal(now) {
		t.Errorf("created = %v, want %v", created, now)
	}

	err = s.db.View(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{ConfigBucket, IndexBucket, BlobsBucket} {
			if tx.Bucket(b) == nil {
				return fmt.Errorf("bucket %s missing", b)
			}
		}
		return nil
	})
	if err != nil {
		t.Error(err)
	}
}

func TestRejectsUnknownVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(ConfigBucket).Put(ConfigVersion, []byte("99"))
	})
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := Open(dbPath); err == nil {
		t.Error("expected error opening database with unknown version")
	}
}

func TestUpdateKeepsNameAndTracksSize(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	s := openTestDB(t, WithClock(func() time.Time { return now }))

	id, err := s.Create(ctx, "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(time.Minute)
	if err := s.Update(ctx, id, []byte("twelve bytes")); err != nil {
		t.Fatal(err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 object, got %d", len(list))
	}
	got := list[0]
	if got.Name != "notes.txt" || got.Size != 12 || got.LastModified != "2024-03-10T08:01:00Z" {
		t.Errorf("unexpected metadata: %+v", got)
	}
}

func TestCompact(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)

	payload := make([]byte, 64*1024)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("obj-%d", i)
		if _, err := s.Create(ctx, id); err != nil {
			t.Fatal(err)
		}
		if err := s.Update(ctx, id, payload); err != nil {
			t.Fatal(err)
		}
	}
	for i := 1; i < 20; i++ {
		if err := s.Delete(ctx, fmt.Sprintf("obj-%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	before, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	after, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if after.Size() > before.Size() {
		t.Errorf("compacted file grew: %d -> %d", before.Size(), after.Size())
	}

	data, err := s.Get(ctx, "obj-0")
	if err != nil {
		t.Fatalf("Get after compact: %v", err)
	}
	if len(data) != len(payload) {
		t.Errorf("data length = %d, want %d", len(data), len(payload))
	}
	if _, err := s.Get(ctx, "obj-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("deleted object after compact: got %v, want ErrNotFound", err)
	}
}

func TestFailedCompactKeepsStoreUsable(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)
	if _, err := s.Create(ctx, "kept"); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, "kept", []byte("value")); err != nil {
		t.Fatal(err)
	}

	// a non-empty directory in the way of the backup rename
	blocker := filepath.Join(s.Path()+".backup", "occupied")
	if err := os.MkdirAll(blocker, 0o700); err != nil {
		t.Fatal(err)
	}

	if err := s.Compact(); err == nil {
		t.Fatal("Compact succeeded with the backup path occupied")
	}
	if _, err := os.Stat(s.Path() + ".compact"); !os.IsNotExist(err) {
		t.Errorf("compact file left behind: %v", err)
	}

	data, err := s.Get(ctx, "kept")
	if err != nil {
		t.Fatalf("Get after failed compact: %v", err)
	}
	if string(data) != "value" {
		t.Errorf("Get = %q, want %q", data, "value")
	}
	if err := s.Update(ctx, "kept", []byte("changed")); err != nil {
		t.Fatalf("Update after failed compact: %v", err)
	}
}

func TestCompactFailsBeforeTouchingDatabase(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t)
	if _, err := s.Create(ctx, "kept"); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(s.Path()+".compact", 0o700); err != nil {
		t.Fatal(err)
	}

	if err := s.Compact(); err == nil {
		t.Fatal("Compact succeeded with the compact path occupied")
	}
	if _, err := s.Get(ctx, "kept"); err != nil {
		t.Fatalf("Get after failed compact: %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, "kept"); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, "kept", []byte("value")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	data, err := s.Get(ctx, "kept")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "value" {
		t.Errorf("data = %q, want %q", data, "value")
	}
}
