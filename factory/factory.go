// Package factory opens a storage.Storage from a location URI.
//
// Supported schemes:
//   - file:///abs/dir or file://./rel/dir: local directory
//   - bolt:///path/to/store.db: single-file bbolt database
//   - mem://?generated_ids=true: in-process map
//   - s3://bucket/prefix?region=&endpoint=&path_style=true
//   - minio://host:port/bucket/prefix?secure=false
//   - dynamodb://table?region=&endpoint=&create_table=true
//   - gdrive://?credentials=client.json&token=token.json&folder=&rps=
//   - ipfs://host:port/mfs/root
//   - vault://host:port/mount/prefix?tls=false
//
// Cloud credentials are read from the environment, never from the URI.
package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/illarion/cloudvault/backends/boltdb"
	"github.com/illarion/cloudvault/backends/localdisk"
	"github.com/illarion/cloudvault/backends/memory"
	"github.com/illarion/cloudvault/middleware"
	"github.com/illarion/cloudvault/storage"
)

var (
	ErrInvalidURI        = errors.New("invalid storage URI")
	ErrUnsupportedScheme = errors.New("unsupported storage scheme")
)

type options struct {
	log    *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter
	codec  middleware.Codec
}

// Option configures Open
type Option func(*options)

// WithLogger logs every storage operation to log
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithTracing reports spans to tracer and operation metrics to meter
func WithTracing(tracer trace.Tracer, meter metric.Meter) Option {
	return func(o *options) {
		o.tracer = tracer
		o.meter = meter
	}
}

// WithCompression compresses object content with codec. With the
// default middleware.Raw content is written unchanged, and compressed
// objects are still decoded on read.
func WithCompression(codec middleware.Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// Parse validates a location URI and returns it with a lower-case scheme
func Parse(uri string) (*url.URL, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: missing scheme in %q", ErrInvalidURI, uri)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}

// Open creates the backend named by uri and wraps it in the middleware
// selected by opts. Logging is the outermost layer, compression the
// innermost.
func Open(ctx context.Context, uri string, opts ...Option) (storage.Storage, error) {
	o := options{codec: middleware.Raw}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log
	if log == nil {
		log = slog.Default()
	}

	u, err := Parse(uri)
	if err != nil {
		return nil, err
	}
	log.Debug("Opening storage backend", slog.String("scheme", u.Scheme), slog.String("uri", u.Redacted()))

	s, err := openBackend(ctx, u)
	if err != nil {
		return nil, err
	}

	s = middleware.Compression(s, o.codec)
	if o.tracer != nil && o.meter != nil {
		traced, err := middleware.Tracing(s, o.tracer, o.meter)
		if err != nil {
			_ = storage.Close(s)
			return nil, err
		}
		s = traced
	}
	if o.log != nil {
		s = middleware.Logging(s, o.log)
	}
	return s, nil
}

func openBackend(ctx context.Context, u *url.URL) (storage.Storage, error) {
	switch u.Scheme {
	case "file":
		return openFile(u)
	case "bolt":
		return openBolt(u)
	case "mem":
		return openMemory(u)
	case "s3":
		return openS3(ctx, u)
	case "minio":
		return openMinio(u)
	case "dynamodb":
		return openDynamoDB(ctx, u)
	case "gdrive":
		return openDrive(ctx, u)
	case "ipfs":
		return openIPFS(u)
	case "vault":
		return openVault(u)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
}

// LocalPath returns the filesystem path of a file:// or bolt:// URI.
// A host component is treated as the first path segment, so
// file://./dir names the relative directory ./dir.
func LocalPath(u *url.URL) (string, error) {
	p := u.Path
	if u.Host != "" {
		p = u.Host + "/" + strings.TrimPrefix(p, "/")
	}
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty path in %q", ErrInvalidURI, u.String())
	}
	return p, nil
}

func openFile(u *url.URL) (storage.Storage, error) {
	p, err := LocalPath(u)
	if err != nil {
		return nil, err
	}
	return localdisk.New(p)
}

func openBolt(u *url.URL) (storage.Storage, error) {
	p, err := LocalPath(u)
	if err != nil {
		return nil, err
	}
	return boltdb.Open(p)
}

func openMemory(u *url.URL) (storage.Storage, error) {
	generated, err := boolParam(u.Query(), "generated_ids", false)
	if err != nil {
		return nil, err
	}
	var opts []memory.Option
	if generated {
		opts = append(opts, memory.WithGeneratedIDs())
	}
	return memory.New(opts...), nil
}

func boolParam(q url.Values, key string, def bool) (bool, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidURI, key, v)
	}
	return b, nil
}

// splitPath splits "/first/rest/of/it" into "first" and "rest/of/it"
func splitPath(p string) (first, rest string) {
	first, rest, _ = strings.Cut(strings.Trim(p, "/"), "/")
	return first, rest
}
