package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	miniogo "github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/illarion/cloudvault/backends/dynamodb"
	"github.com/illarion/cloudvault/backends/googledrive"
	"github.com/illarion/cloudvault/backends/ipfs"
	"github.com/illarion/cloudvault/backends/minio"
	"github.com/illarion/cloudvault/backends/s3"
	"github.com/illarion/cloudvault/backends/vault"
	"github.com/illarion/cloudvault/storage"
)

const (
	defaultRegion   = "us-east-1"
	defaultIPFSPort = "5001"
	defaultDriveRPS = 5
)

// loadAWSConfig honours region and endpoint query parameters. Static
// keys from AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY take precedence
// over the default credential chain.
func loadAWSConfig(ctx context.Context, q url.Values) (aws.Config, error) {
	region := q.Get("region")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = defaultRegion
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if endpoint := q.Get("endpoint"); endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(endpoint))
	}
	if id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"); id != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, secret, os.Getenv("AWS_SESSION_TOKEN")),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return cfg, nil
}

func openS3(ctx context.Context, u *url.URL) (storage.Storage, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("%w: s3 URI needs a bucket, s3://bucket/prefix", ErrInvalidURI)
	}
	q := u.Query()
	pathStyle, err := boolParam(q, "path_style", false)
	if err != nil {
		return nil, err
	}
	checksum, err := boolParam(q, "checksum", false)
	if err != nil {
		return nil, err
	}
	cfg, err := loadAWSConfig(ctx, q)
	if err != nil {
		return nil, err
	}

	clientOpts := []func(*awss3.Options){
		func(o *awss3.Options) { o.UsePathStyle = pathStyle },
	}
	return s3.NewFromConfig(cfg, u.Host, clientOpts,
		s3.WithPrefix(u.Path),
		s3.WithChecksum(checksum),
	), nil
}

func openDynamoDB(ctx context.Context, u *url.URL) (storage.Storage, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("%w: dynamodb URI needs a table, dynamodb://table", ErrInvalidURI)
	}
	q := u.Query()
	create, err := boolParam(q, "create_table", false)
	if err != nil {
		return nil, err
	}
	cfg, err := loadAWSConfig(ctx, q)
	if err != nil {
		return nil, err
	}

	client := awsdynamodb.NewFromConfig(cfg)
	if create {
		if err := dynamodb.CreateTable(ctx, client, u.Host); err != nil {
			return nil, err
		}
	}
	return dynamodb.New(client, u.Host), nil
}

func openMinio(u *url.URL) (storage.Storage, error) {
	bucket, prefix := splitPath(u.Path)
	if u.Host == "" || bucket == "" {
		return nil, fmt.Errorf("%w: minio URI needs host and bucket, minio://host:port/bucket/prefix", ErrInvalidURI)
	}
	secure, err := boolParam(u.Query(), "secure", true)
	if err != nil {
		return nil, err
	}

	client, err := miniogo.New(u.Host, &miniogo.Options{
		Creds:  miniocreds.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return minio.New(client, bucket, prefix), nil
}

// openDrive authorizes with a stored OAuth2 user token when token is
// given, else treats credentials as a service account key.
func openDrive(ctx context.Context, u *url.URL) (storage.Storage, error) {
	q := u.Query()
	credsFile := q.Get("credentials")
	if credsFile == "" {
		return nil, fmt.Errorf("%w: gdrive URI needs credentials=<file>", ErrInvalidURI)
	}

	rps := float64(defaultDriveRPS)
	if v := q.Get("rps"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%w: rps=%q must be a positive number", ErrInvalidURI, v)
		}
		rps = parsed
	}

	var clientOpts []option.ClientOption
	if tokenFile := q.Get("token"); tokenFile != "" {
		client, err := driveOAuthClient(ctx, credsFile, tokenFile)
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, option.WithHTTPClient(client))
	} else {
		clientOpts = append(clientOpts, option.WithCredentialsFile(credsFile), option.WithScopes(googledrive.Scope))
	}

	opts := []googledrive.Option{googledrive.WithRateLimit(rps, max(1, int(rps)))}
	if folder := q.Get("folder"); folder != "" {
		opts = append(opts, googledrive.WithFolder(folder))
	}
	return googledrive.New(ctx, clientOpts, opts...)
}

func driveOAuthClient(ctx context.Context, credsFile, tokenFile string) (*http.Client, error) {
	secret, err := os.ReadFile(credsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read drive credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(secret, googledrive.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse drive credentials: %w", err)
	}

	raw, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read drive token: %w", err)
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(raw, tok); err != nil {
		return nil, fmt.Errorf("failed to parse drive token: %w", err)
	}
	return cfg.Client(ctx, tok), nil
}

func openIPFS(u *url.URL) (storage.Storage, error) {
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: ipfs URI needs a host, ipfs://host:port/root", ErrInvalidURI)
	}
	port := u.Port()
	if port == "" {
		port = defaultIPFSPort
	}
	root := u.Path
	if root == "" || root == "/" {
		root = "/cloudvault"
	}
	return ipfs.NewFromURL(host+":"+port, root), nil
}

func openVault(u *url.URL) (storage.Storage, error) {
	mount, prefix := splitPath(u.Path)
	if u.Host == "" || mount == "" {
		return nil, fmt.Errorf("%w: vault URI needs host and mount, vault://host:port/mount/prefix", ErrInvalidURI)
	}
	tls, err := boolParam(u.Query(), "tls", true)
	if err != nil {
		return nil, err
	}
	scheme := "https"
	if !tls {
		scheme = "http"
	}
	return vault.NewFromAddress(scheme+"://"+u.Host, os.Getenv("VAULT_TOKEN"), mount, prefix)
}
