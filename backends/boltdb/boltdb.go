package boltdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/illarion/cloudvault/storage"
)

const backendName = "boltdb"

// Bucket names
var (
	ConfigBucket = []byte("config") // format version, creation time
	IndexBucket  = []byte("index")  // JSON object records for List
	BlobsBucket  = []byte("blobs")  // object contents
)

// Config keys
var (
	ConfigVersion = []byte("version")
	ConfigCreated = []byte("created")
)

const formatVersion = "1"

// Record is the index entry kept for each object
type Record struct {
	Name     string    `json:"name"`
	Size     uint64    `json:"size"`
	Modified time.Time `json:"modified"`
}

// Storage keeps objects in a single bbolt file
type Storage struct {
	mu   sync.RWMutex // held exclusively while Compact swaps the file
	db   *bolt.DB
	path string
	now  func() time.Time
}

// Option configures a Storage
type Option func(*Storage)

// WithClock overrides the time source used for record timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		s.now = now
	}
}

func dbOptions() *bolt.Options {
	return &bolt.Options{Timeout: time.Second}
}

// Open opens or creates a database and makes sure its buckets exist
func Open(path string, opts ...Option) (*Storage, error) {
	db, err := bolt.Open(path, 0600, dbOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Storage{db: db, path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the bucket structure on first open
func (s *Storage) initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, IndexBucket, BlobsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if v := config.Get(ConfigVersion); v != nil {
			if string(v) != formatVersion {
				return fmt.Errorf("unsupported database version %q", v)
			}
			return nil
		}
		if err := config.Put(ConfigVersion, []byte(formatVersion)); err != nil {
			return err
		}
		created, _ := s.now().UTC().MarshalBinary()
		return config.Put(ConfigCreated, created)
	})
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.path
}

// Close closes the database
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Created returns the time the database was initialized
func (s *Storage) Created() (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var created time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(ConfigBucket).Get(ConfigCreated)
		if data == nil {
			return fmt.Errorf("created time not found")
		}
		return created.UnmarshalBinary(data)
	})
	return created, err
}

func (s *Storage) List(_ context.Context) ([]storage.ObjectMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.ObjectMetadata
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(IndexBucket).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt index record %q: %w", k, err)
			}
			out = append(out, storage.NewObjectMetadata(
				string(k),
				rec.Name,
				rec.Modified.UTC().Format(time.RFC3339Nano),
				rec.Size,
			))
			return nil
		})
	})
	if err != nil {
		return nil, storage.NewBackendError(backendName, "list", "", err)
	}
	if out == nil {
		out = []storage.ObjectMetadata{}
	}
	return out, nil
}

// Create stores an empty object under name. An existing object with the
// same name is truncated.
func (s *Storage) Create(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", storage.InvalidID(name, "empty id")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		return s.put(tx, name, name, nil)
	})
	if err != nil {
		return "", storage.NewBackendError(backendName, "create", name, err)
	}
	return name, nil
}

func (s *Storage) Get(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(IndexBucket).Get([]byte(id)) == nil {
			return storage.NotFound(id)
		}
		// Make a copy since the slice is only valid during the transaction
		data = append([]byte{}, tx.Bucket(BlobsBucket).Get([]byte(id))...)
		return nil
	})
	if err != nil {
		return nil, classify("get", id, err)
	}
	return data, nil
}

func (s *Storage) Update(_ context.Context, id string, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		raw := tx.Bucket(IndexBucket).Get([]byte(id))
		if raw == nil {
			return storage.NotFound(id)
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("corrupt index record %q: %w", id, err)
		}
		return s.put(tx, id, rec.Name, data)
	})
	return classify("update", id, err)
}

func (s *Storage) Delete(_ context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(IndexBucket)
		if index.Get([]byte(id)) == nil {
			return storage.NotFound(id)
		}
		if err := index.Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(BlobsBucket).Delete([]byte(id))
	})
	return classify("delete", id, err)
}

// put writes blob and index record in the caller's transaction
func (s *Storage) put(tx *bolt.Tx, id, name string, data []byte) error {
	rec, err := json.Marshal(Record{
		Name:     name,
		Size:     uint64(len(data)),
		Modified: s.now().UTC(),
	})
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	if err := tx.Bucket(BlobsBucket).Put([]byte(id), data); err != nil {
		return err
	}
	return tx.Bucket(IndexBucket).Put([]byte(id), rec)
}

func classify(op, id string, err error) error {
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return storage.NewBackendError(backendName, op, id, err)
}

// compactTxSize bounds the size of each copy transaction during Compact
const compactTxSize = 64 << 20

// Compact rewrites the database into a fresh file to reclaim the space
// left by deleted objects. The store stays usable whether or not it
// succeeds.
func (s *Storage) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpPath := s.path + ".compact"
	dst, err := bolt.Open(tmpPath, 0600, dbOptions())
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}
	if err := bolt.Compact(dst, s.db, compactTxSize); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}
	swapErr := swapFiles(s.path, tmpPath)

	// Reopen whatever file now sits at s.path: the compacted copy, or the
	// original after a rollback.
	db, err := bolt.Open(s.path, 0600, dbOptions())
	if err != nil {
		return errors.Join(swapErr, fmt.Errorf("failed to reopen database: %w", err))
	}
	s.db = db
	return swapErr
}

// swapFiles moves newPath over path, keeping path intact on failure
func swapFiles(path, newPath string) error {
	backupPath := path + ".backup"
	if err := os.Rename(path, backupPath); err != nil {
		os.Remove(newPath)
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(newPath, path); err != nil {
		if rbErr := os.Rename(backupPath, path); rbErr != nil {
			return errors.Join(fmt.Errorf("failed to replace database: %w", err), rbErr)
		}
		os.Remove(newPath)
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)
	return nil
}
