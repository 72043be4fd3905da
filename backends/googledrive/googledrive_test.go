package googledrive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/illarion/cloudvault/storage"
	"github.com/illarion/cloudvault/storage/storagetest"
)

type fakeFile struct {
	name    string
	data    []byte
	trashed bool
}

// fakeDrive answers the subset of the Drive v3 REST API used by Storage
type fakeDrive struct {
	mu     sync.Mutex
	files  map[string]*fakeFile
	nextID int
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{files: map[string]*fakeFile{}}
}

func (d *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := strings.Index(r.URL.Path, "/files")
	if idx < 0 {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path[idx+len("/files"):], "/")

	switch {
	case id == "" && r.Method == http.MethodGet:
		d.list(w)
	case id == "" && r.Method == http.MethodPost:
		name, data, err := readUpload(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		d.nextID++
		newID := fmt.Sprintf("drive-%04d", d.nextID)
		d.files[newID] = &fakeFile{name: name, data: data}
		writeJSON(w, map[string]string{"id": newID})
	case r.Method == http.MethodGet && r.URL.Query().Get("alt") == "media":
		f, ok := d.files[id]
		if !ok {
			notFound(w, id)
			return
		}
		w.Write(f.data)
	case r.Method == http.MethodPatch:
		f, ok := d.files[id]
		if !ok {
			notFound(w, id)
			return
		}
		_, data, err := readUpload(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.data = data
		writeJSON(w, map[string]string{"id": id})
	case r.Method == http.MethodDelete:
		if _, ok := d.files[id]; !ok {
			notFound(w, id)
			return
		}
		delete(d.files, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func (d *fakeDrive) list(w http.ResponseWriter) {
	type file struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		ModifiedTime string `json:"modifiedTime"`
		Size         string `json:"size"`
		Trashed      bool   `json:"trashed"`
	}
	var files []file
	for id, f := range d.files {
		files = append(files, file{
			ID:           id,
			Name:         f.name,
			ModifiedTime: "2024-04-01T09:30:00.000Z",
			Size:         strconv.Itoa(len(f.data)),
			Trashed:      f.trashed,
		})
	}
	writeJSON(w, map[string]any{"files": files})
}

// readUpload parses a multipart/related upload: JSON metadata then media
func readUpload(r *http.Request) (string, []byte, error) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return "", nil, err
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		data, err := io.ReadAll(r.Body)
		return "", data, err
	}

	mr := multipart.NewReader(r.Body, params["boundary"])
	metaPart, err := mr.NextPart()
	if err != nil {
		return "", nil, err
	}
	var meta struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		return "", nil, err
	}

	mediaPart, err := mr.NextPart()
	if err == io.EOF {
		return meta.Name, []byte{}, nil
	}
	if err != nil {
		return "", nil, err
	}
	data, err := io.ReadAll(mediaPart)
	return meta.Name, data, err
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, id string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, `{"error":{"code":404,"message":"File not found: %s.","errors":[{"reason":"notFound"}]}}`, id)
}

func newTestStorage(t *testing.T, fake *fakeDrive, opts ...Option) *Storage {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), []option.ClientOption{
		option.WithEndpoint(srv.URL + "/"),
		option.WithHTTPClient(srv.Client()),
	}, opts...)
	require.NoError(t, err)
	return s
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return newTestStorage(t, newFakeDrive())
	})
}

func TestCreateReturnsServerID(t *testing.T) {
	s := newTestStorage(t, newFakeDrive())

	id, err := s.Create(context.Background(), "report.txt")
	require.NoError(t, err)
	assert.Equal(t, "drive-0001", id)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "drive-0001", list[0].ID)
	assert.Equal(t, "report.txt", list[0].Name)
	assert.Equal(t, "2024-04-01T09:30:00Z", list[0].LastModified)
}

func TestListSkipsTrashed(t *testing.T) {
	fake := newFakeDrive()
	fake.files["kept"] = &fakeFile{name: "kept", data: []byte("abc")}
	fake.files["binned"] = &fakeFile{name: "binned", trashed: true}
	s := newTestStorage(t, fake, WithRateLimit(1000, 10))

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, storage.NewObjectMetadata("kept", "kept", "2024-04-01T09:30:00Z", 3), list[0])
}

func TestMetadataOf(t *testing.T) {
	_, ok := metadataOf(&drive.File{Id: "a", ExplicitlyTrashed: true})
	assert.False(t, ok)
	_, ok = metadataOf(&drive.File{Id: "a", Trashed: true})
	assert.False(t, ok)
	_, ok = metadataOf(nil)
	assert.False(t, ok)

	meta, ok := metadataOf(&drive.File{Id: "a", Name: "n", ModifiedTime: "not a time", Size: 9})
	require.True(t, ok)
	assert.Equal(t, "not a time", meta.LastModified)
	assert.Equal(t, uint64(9), meta.Size)
}

func TestRateLimitHonoursContext(t *testing.T) {
	s := newTestStorage(t, newFakeDrive(), WithRateLimit(0.001, 1))

	// The single burst token is spent by the first call
	_, err := s.Create(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Create(ctx, "b")
	assert.Error(t, err)
}
