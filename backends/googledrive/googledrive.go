// Package googledrive stores objects as files in Google Drive.
//
// Drive assigns its own file ids, so Create returns an opaque id that
// differs from the name. Names are not unique in Drive. Trashed files are
// excluded from List.
//
// The package does not run an OAuth consent flow; pass an authenticated
// HTTP client (option.WithHTTPClient) or a token source when building the
// service.
package googledrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/illarion/cloudvault/storage"
)

const (
	backendName = "googledrive"
	listFields  = "nextPageToken, files(id,name,modifiedTime,size,trashed,explicitlyTrashed)"
	contentType = "application/octet-stream"
	pageSize    = 100
)

// Scope is the OAuth scope needed by the adapter: access to files it created
const Scope = drive.DriveFileScope

// Storage implements storage.Storage on a Drive account
type Storage struct {
	files   *drive.FilesService
	folder  string
	limiter *rate.Limiter
}

// Option configures a Storage
type Option func(*Storage)

// WithFolder places new files in, and lists only, the given folder id
func WithFolder(folderID string) Option {
	return func(s *Storage) {
		s.folder = folderID
	}
}

// WithRateLimit caps requests per second sent to the Drive API
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Storage) {
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a Storage from Drive client options
func New(ctx context.Context, clientOpts []option.ClientOption, opts ...Option) (*Storage, error) {
	svc, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return NewFromService(svc, opts...), nil
}

// NewFromService creates a Storage from an existing Drive service
func NewFromService(svc *drive.Service, opts ...Option) *Storage {
	s := &Storage{files: svc.Files}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func (s *Storage) List(ctx context.Context) ([]storage.ObjectMetadata, error) {
	q := "trashed = false"
	if s.folder != "" {
		q = fmt.Sprintf("'%s' in parents and trashed = false", s.folder)
	}

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	out := []storage.ObjectMetadata{}
	call := s.files.List().Q(q).Fields(listFields).PageSize(pageSize)
	err := call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			if meta, ok := metadataOf(f); ok {
				out = append(out, meta)
			}
		}
		// Pages issues the next request when this returns
		return s.wait(ctx)
	})
	if err != nil {
		return nil, storage.NewBackendError(backendName, "list", "", err)
	}
	return out, nil
}

// metadataOf converts a Drive file, dropping trashed ones
func metadataOf(f *drive.File) (storage.ObjectMetadata, bool) {
	if f == nil || f.Trashed || f.ExplicitlyTrashed || f.Id == "" {
		return storage.ObjectMetadata{}, false
	}
	modified := f.ModifiedTime
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		modified = t.UTC().Format(time.RFC3339)
	}
	return storage.NewObjectMetadata(f.Id, f.Name, modified, uint64(max(f.Size, 0))), true
}

func (s *Storage) Create(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", storage.InvalidID(name, "empty name")
	}
	if err := s.wait(ctx); err != nil {
		return "", err
	}

	file := &drive.File{Name: name}
	if s.folder != "" {
		file.Parents = []string{s.folder}
	}
	created, err := s.files.Create(file).
		Media(bytes.NewReader(nil), googleapi.ContentType(contentType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", storage.NewBackendError(backendName, "create", name, err)
	}
	return created.Id, nil
}

func (s *Storage) Get(ctx context.Context, id string) ([]byte, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := s.files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, classify("get", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, storage.NewBackendError(backendName, "get", id, err)
	}
	return data, nil
}

func (s *Storage) Update(ctx context.Context, id string, data []byte) error {
	if err := s.wait(ctx); err != nil {
		return err
	}

	_, err := s.files.Update(id, &drive.File{}).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Fields("id").
		Context(ctx).
		Do()
	return classify("update", id, err)
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return classify("delete", id, s.files.Delete(id).Context(ctx).Do())
}

func classify(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return storage.NotFound(id)
	}
	return storage.NewBackendError(backendName, op, id, err)
}
