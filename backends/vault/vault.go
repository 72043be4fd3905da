// Package vault stores objects as secrets in a HashiCorp Vault KV v2
// mount. Content is kept base64 encoded in the "content" field of the
// secret, next to its name and size.
package vault

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/illarion/cloudvault/storage"
)

const backendName = "vault"

// Storage implements storage.Storage on a KV v2 mount
type Storage struct {
	logical *api.Logical
	mount   string
	prefix  string
}

// New creates a Storage writing below prefix inside the KV v2 mount
func New(client *api.Client, mount, prefix string) *Storage {
	return &Storage{
		logical: client.Logical(),
		mount:   strings.Trim(mount, "/"),
		prefix:  strings.Trim(prefix, "/"),
	}
}

// NewFromAddress creates a Vault client for address authenticated with token
func NewFromAddress(address, token, mount, prefix string) (*Storage, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.Timeout = 30 * time.Second

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}
	return New(client, mount, prefix), nil
}

func (s *Storage) dataPath(id string) string {
	return s.join("data", id)
}

func (s *Storage) metadataPath(id string) string {
	return s.join("metadata", id)
}

func (s *Storage) join(kind, id string) string {
	parts := []string{s.mount, kind}
	if s.prefix != "" {
		parts = append(parts, s.prefix)
	}
	if id != "" {
		parts = append(parts, id)
	}
	return strings.Join(parts, "/")
}

func validateID(id string) error {
	switch {
	case id == "":
		return storage.InvalidID(id, "empty name")
	case strings.Contains(id, "/"):
		return storage.InvalidID(id, "nested paths are not supported")
	case id == "." || id == "..":
		return storage.InvalidID(id, "reserved name")
	}
	return nil
}

// record is the decoded form of one KV v2 secret
type record struct {
	name     string
	data     []byte
	size     uint64
	modified string
}

func (s *Storage) read(ctx context.Context, op, id string) (*record, error) {
	secret, err := s.logical.ReadWithContext(ctx, s.dataPath(id))
	if err != nil {
		return nil, storage.NewBackendError(backendName, op, id, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, storage.NotFound(id)
	}
	// Soft-deleted versions come back with a nil data map
	fields, ok := secret.Data["data"].(map[string]interface{})
	if !ok || fields == nil {
		return nil, storage.NotFound(id)
	}

	rec := &record{name: id}
	if name, ok := fields["name"].(string); ok && name != "" {
		rec.name = name
	}
	if content, ok := fields["content"].(string); ok {
		rec.data, err = base64.StdEncoding.DecodeString(content)
		if err != nil {
			return nil, storage.NewBackendError(backendName, op, id, fmt.Errorf("invalid content encoding: %w", err))
		}
	}
	rec.size = uint64(len(rec.data))
	if n, ok := fields["size"].(json.Number); ok {
		if v, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			rec.size = v
		}
	}
	if meta, ok := secret.Data["metadata"].(map[string]interface{}); ok {
		if created, ok := meta["created_time"].(string); ok {
			rec.modified = created
			if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
				rec.modified = t.UTC().Format(time.RFC3339)
			}
		}
	}
	return rec, nil
}

func (s *Storage) write(ctx context.Context, op, id string, data []byte) error {
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"name":    id,
			"content": base64.StdEncoding.EncodeToString(data),
			"size":    len(data),
		},
	}
	if _, err := s.logical.WriteWithContext(ctx, s.dataPath(id), payload); err != nil {
		return storage.NewBackendError(backendName, op, id, err)
	}
	return nil
}

func (s *Storage) List(ctx context.Context) ([]storage.ObjectMetadata, error) {
	secret, err := s.logical.ListWithContext(ctx, s.metadataPath(""))
	if err != nil {
		return nil, storage.NewBackendError(backendName, "list", "", err)
	}
	out := []storage.ObjectMetadata{}
	if secret == nil || secret.Data == nil {
		return out, nil
	}

	keys, _ := secret.Data["keys"].([]interface{})
	for _, k := range keys {
		id, ok := k.(string)
		// Keys ending in a slash are nested folders
		if !ok || id == "" || strings.HasSuffix(id, "/") {
			continue
		}
		rec, err := s.read(ctx, "list", id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, storage.NewObjectMetadata(id, rec.name, rec.modified, rec.size))
	}
	return out, nil
}

func (s *Storage) Create(ctx context.Context, name string) (string, error) {
	if err := validateID(name); err != nil {
		return "", err
	}
	if err := s.write(ctx, "create", name, nil); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Storage) Get(ctx context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	rec, err := s.read(ctx, "get", id)
	if err != nil {
		return nil, err
	}
	if rec.data == nil {
		return []byte{}, nil
	}
	return rec.data, nil
}

func (s *Storage) Update(ctx context.Context, id string, data []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	if _, err := s.read(ctx, "update", id); err != nil {
		return err
	}
	return s.write(ctx, "update", id, data)
}

// Delete removes every version of the secret along with its metadata
func (s *Storage) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if _, err := s.read(ctx, "delete", id); err != nil {
		return err
	}
	if _, err := s.logical.DeleteWithContext(ctx, s.metadataPath(id)); err != nil {
		return storage.NewBackendError(backendName, "delete", id, err)
	}
	return nil
}
