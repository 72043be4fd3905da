// Package storagetest is a conformance suite for storage.Storage
// implementations. Adapter tests call Run with a constructor.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/cloudvault/storage"
)

// Factory returns a store under test. The store may already hold objects;
// the suite only reasons about counts and about ids it created itself.
type Factory func(t *testing.T) storage.Storage

// Run executes every conformance check as a subtest
func Run(t *testing.T, newStore Factory) {
	t.Run("CRUD", func(t *testing.T) { testCRUD(t, newStore(t)) })
	t.Run("EncryptedCRUD", func(t *testing.T) { testEncryptedCRUD(t, newStore(t)) })
	t.Run("MissingObject", func(t *testing.T) { testMissingObject(t, newStore(t)) })
	t.Run("EmptyObject", func(t *testing.T) { testEmptyObject(t, newStore(t)) })
	t.Run("WrongPassphrase", func(t *testing.T) { testWrongPassphrase(t, newStore(t)) })
	t.Run("BlockingEquivalence", func(t *testing.T) { testBlockingEquivalence(t, newStore(t)) })
	t.Run("ConcurrentDistinctObjects", func(t *testing.T) { testConcurrentDistinctObjects(t, newStore(t)) })
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("storagetest-%s-%s", prefix, uuid.NewString()[:8])
}

func findByID(t *testing.T, list []storage.ObjectMetadata, id string) (storage.ObjectMetadata, bool) {
	t.Helper()
	for _, m := range list {
		if m.ID == id {
			return m, true
		}
	}
	return storage.ObjectMetadata{}, false
}

func testCRUD(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	before, err := s.List(ctx)
	require.NoError(t, err)

	name := uniqueName("crud")
	id, err := s.Create(ctx, name)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	listed, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, len(before)+1)

	meta, ok := findByID(t, listed, id)
	require.True(t, ok, "created object %q missing from listing", id)
	assert.Equal(t, name, meta.Name)

	data := []byte("test file content")
	require.NoError(t, s.Update(ctx, id, data))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	listed, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, len(before)+1)

	require.NoError(t, s.Delete(ctx, id))

	after, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, after, len(before))

	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testEncryptedCRUD(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	secret := []byte("secret")

	id, err := s.Create(ctx, uniqueName("enc"))
	require.NoError(t, err)
	defer s.Delete(ctx, id)

	require.NoError(t, storage.EncryptAndUpdate(ctx, s, id, secret, "key"))

	raw, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, secret), "plaintext visible in stored bytes")
	assert.Len(t, raw, len(secret)+28)

	plain, err := storage.GetAndDecrypt(ctx, s, id, "key")
	require.NoError(t, err)
	assert.Equal(t, secret, plain)
}

func testMissingObject(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	id := uniqueName("missing")

	_, err := s.Get(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound, "get")

	err = s.Update(ctx, id, []byte("x"))
	assert.ErrorIs(t, err, storage.ErrNotFound, "update")

	err = s.Delete(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound, "delete")

	_, err = storage.GetAndDecrypt(ctx, s, id, "key")
	var opErr *storage.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, storage.StageGet, opErr.Stage)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = storage.EncryptAndUpdate(ctx, s, id, []byte("x"), "key")
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, storage.StageUpdate, opErr.Stage)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testEmptyObject(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	id, err := s.Create(ctx, uniqueName("empty"))
	require.NoError(t, err)
	defer s.Delete(ctx, id)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got)

	listed, err := s.List(ctx)
	require.NoError(t, err)
	meta, ok := findByID(t, listed, id)
	require.True(t, ok)
	assert.Zero(t, meta.Size)

	require.NoError(t, storage.EncryptAndUpdate(ctx, s, id, nil, "key"))
	plain, err := storage.GetAndDecrypt(ctx, s, id, "key")
	require.NoError(t, err)
	assert.Empty(t, plain)
}

func testWrongPassphrase(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	id, err := s.Create(ctx, uniqueName("wrongkey"))
	require.NoError(t, err)
	defer s.Delete(ctx, id)

	require.NoError(t, storage.EncryptAndUpdate(ctx, s, id, []byte("secret"), "k1"))

	_, err = storage.GetAndDecrypt(ctx, s, id, "k2")
	var opErr *storage.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, storage.StageDecrypt, opErr.Stage)
	assert.ErrorIs(t, err, storage.ErrDecryption)
}

func testBlockingEquivalence(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	b := storage.NewBlocking(s)

	id, err := b.Create(uniqueName("blocking"))
	require.NoError(t, err)
	defer b.Delete(id)

	require.NoError(t, b.Update(id, []byte("abc")))

	async, err := s.Get(ctx, id)
	require.NoError(t, err)
	blocking, err := b.Get(id)
	require.NoError(t, err)
	assert.Equal(t, async, blocking)

	asyncList, err := s.List(ctx)
	require.NoError(t, err)
	syncList, err := b.List()
	require.NoError(t, err)
	assert.Len(t, syncList, len(asyncList))

	require.NoError(t, b.EncryptAndUpdate(id, []byte("secret"), "key"))
	plainSync, err := b.GetAndDecrypt(id, "key")
	require.NoError(t, err)
	plainAsync, err := storage.GetAndDecrypt(ctx, s, id, "key")
	require.NoError(t, err)
	assert.Equal(t, plainAsync, plainSync)

	missing := uniqueName("blocking-missing")
	_, asyncErr := s.Get(ctx, missing)
	_, syncErr := b.Get(missing)
	assert.ErrorIs(t, asyncErr, storage.ErrNotFound)
	assert.ErrorIs(t, syncErr, storage.ErrNotFound)
}

func testConcurrentDistinctObjects(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	const n = 8

	ids := make([]string, n)
	for i := range ids {
		id, err := s.Create(ctx, uniqueName(fmt.Sprintf("conc%d", i)))
		require.NoError(t, err)
		ids[i] = id
	}
	defer func() {
		for _, id := range ids {
			s.Delete(ctx, id)
		}
	}()

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = storage.NewBlocking(s).Update(id, []byte(fmt.Sprintf("payload-%d", i)))
		}(i, id)
	}
	wg.Wait()
	require.NoError(t, errors.Join(errs...))

	for i, id := range ids {
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("payload-%d", i), string(got))
	}
}
