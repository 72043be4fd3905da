// Package s3 stores objects in an S3-compatible bucket using the AWS SDK
// for Go v2. Object ids are keys relative to an optional prefix.
package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/illarion/cloudvault/storage"
)

const backendName = "s3"

// Client is the subset of *s3.Client used by Storage
type Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Storage implements storage.Storage on top of one bucket
type Storage struct {
	client   Client
	bucket   string
	prefix   string
	checksum bool
}

// Option configures a Storage
type Option func(*Storage)

// WithPrefix scopes all keys under prefix
func WithPrefix(prefix string) Option {
	return func(s *Storage) {
		s.prefix = strings.Trim(prefix, "/")
	}
}

// WithChecksum asks S3 to verify uploads with CRC32C
func WithChecksum(enabled bool) Option {
	return func(s *Storage) {
		s.checksum = enabled
	}
}

// New creates a Storage for bucket
func New(client Client, bucket string, opts ...Option) *Storage {
	s := &Storage{
		client: client,
		bucket: bucket,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig creates a Storage with a client built from cfg
func NewFromConfig(cfg aws.Config, bucket string, clientOpts []func(*s3.Options), opts ...Option) *Storage {
	return New(s3.NewFromConfig(cfg, clientOpts...), bucket, opts...)
}

func (s *Storage) key(id string) string {
	if s.prefix == "" {
		return id
	}
	return s.prefix + "/" + id
}

func (s *Storage) listPrefix() *string {
	if s.prefix == "" {
		return nil
	}
	return aws.String(s.prefix + "/")
}

func (s *Storage) List(ctx context.Context) ([]storage.ObjectMetadata, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: s.listPrefix(),
	})

	out := []storage.ObjectMetadata{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, storage.NewBackendError(backendName, "list", "", err)
		}
		for _, obj := range page.Contents {
			id := strings.TrimPrefix(aws.ToString(obj.Key), aws.ToString(s.listPrefix()))
			if id == "" {
				continue
			}
			var modified string
			if obj.LastModified != nil {
				modified = obj.LastModified.UTC().Format(time.RFC3339)
			}
			out = append(out, storage.NewObjectMetadata(id, id, modified, uint64(aws.ToInt64(obj.Size))))
		}
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
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return nil, classify("get", id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, storage.NewBackendError(backendName, "get", id, err)
	}
	return data, nil
}

func (s *Storage) Update(ctx context.Context, id string, data []byte) error {
	if err := s.exists(ctx, id); err != nil {
		return classify("update", id, err)
	}
	if err := s.put(ctx, id, data); err != nil {
		return storage.NewBackendError(backendName, "update", id, err)
	}
	return nil
}

// Delete removes the key. S3 deletes are idempotent, so existence is
// checked first to report ErrNotFound.
func (s *Storage) Delete(ctx context.Context, id string) error {
	if err := s.exists(ctx, id); err != nil {
		return classify("delete", id, err)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return classify("delete", id, err)
	}
	return nil
}

func (s *Storage) exists(ctx context.Context, id string) error {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	return err
}

func (s *Storage) put(ctx context.Context, id string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(id)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
	}
	if s.checksum {
		input.ChecksumAlgorithm = types.ChecksumAlgorithmCrc32c
	}
	_, err := s.client.PutObject(ctx, input)
	return err
}

func classify(op, id string, err error) error {
	if isNotFound(err) {
		return storage.NotFound(id)
	}
	return storage.NewBackendError(backendName, op, id, err)
}

// isNotFound reports whether err is a missing-key response. HeadObject
// returns NotFound, GetObject returns NoSuchKey; S3-compatible servers
// sometimes only set the error code.
func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
