// Package minio stores objects in an S3-compatible bucket through the
// MinIO client.
package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/illarion/cloudvault/storage"
)

const backendName = "minio"

// Storage implements storage.Storage for one bucket
type Storage struct {
	client *minio.Client
	bucket string
	prefix string
}

// New creates a Storage. prefix is prepended to every key.
func New(client *minio.Client, bucket, prefix string) *Storage {
	return &Storage{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (s *Storage) key(id string) string {
	if s.prefix == "" {
		return id
	}
	return s.prefix + "/" + id
}

func (s *Storage) List(ctx context.Context) ([]storage.ObjectMetadata, error) {
	listPrefix := ""
	if s.prefix != "" {
		listPrefix = s.prefix + "/"
	}

	out := []storage.ObjectMetadata{}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    listPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, storage.NewBackendError(backendName, "list", "", obj.Err)
		}
		id := strings.TrimPrefix(obj.Key, listPrefix)
		if id == "" {
			continue
		}
		var modified string
		if !obj.LastModified.IsZero() {
			modified = obj.LastModified.UTC().Format(time.RFC3339)
		}
		out = append(out, storage.NewObjectMetadata(id, id, modified, uint64(obj.Size)))
	}
	return out, nil
}

func (s *Storage) Create(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", storage.InvalidID(name, "empty key")
	}
	if err := s.put(ctx, name, nil); err != nil {
		return "", storage.NewBackendError(backendName, "create", name, err)
	}
	return name, nil
}

func (s *Storage) Get(ctx context.Context, id string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, classify("get", id, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify("get", id, err)
	}
	return data, nil
}

func (s *Storage) Update(ctx context.Context, id string, data []byte) error {
	if err := s.stat(ctx, id); err != nil {
		return classify("update", id, err)
	}
	if err := s.put(ctx, id, data); err != nil {
		return storage.NewBackendError(backendName, "update", id, err)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	if err := s.stat(ctx, id); err != nil {
		return classify("delete", id, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, s.key(id), minio.RemoveObjectOptions{}); err != nil {
		return classify("delete", id, err)
	}
	return nil
}

func (s *Storage) stat(ctx context.Context, id string) error {
	_, err := s.client.StatObject(ctx, s.bucket, s.key(id), minio.StatObjectOptions{})
	return err
}

func (s *Storage) put(ctx context.Context, id string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(id), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func classify(op, id string, err error) error {
	if isNotFound(err) {
		return storage.NotFound(id)
	}
	return storage.NewBackendError(backendName, op, id, err)
}

func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		resp = minio.ToErrorResponse(err)
	}
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}
