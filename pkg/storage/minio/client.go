// Package minio implements the storage client on top of minio-go, for MinIO
// deployments and any other S3-compatible endpoint.
//
// Authentication priority:
//  1. Options.Credentials, when it is a *credentials.Credentials
//  2. Explicit key id / secret key (plus optional session token)
//  3. AWS_* then MINIO_* environment variables
package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/3leaps/cloudkit/pkg/storage"
)

// DefaultEndpoint is used when no endpoint is configured.
const DefaultEndpoint = "s3.amazonaws.com"

// API is the subset of the minio-go client used by Client.
type API interface {
	ListBuckets(ctx context.Context) ([]miniogo.BucketInfo, error)
	MakeBucket(ctx context.Context, bucketName string, opts miniogo.MakeBucketOptions) error
	RemoveBucket(ctx context.Context, bucketName string) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error)
	// GetObject opens the object body. Request errors are reported here, not
	// on the first read.
	GetObject(ctx context.Context, bucketName, objectName string, opts miniogo.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts miniogo.StatObjectOptions) (miniogo.ObjectInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts miniogo.ListObjectsOptions) <-chan miniogo.ObjectInfo
	RemoveObjectsWithResult(ctx context.Context, bucketName string, objectsCh <-chan miniogo.ObjectInfo, opts miniogo.RemoveObjectsOptions) <-chan miniogo.RemoveObjectResult
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Client implements storage.Client for MinIO.
type Client struct {
	api    API
	region string
	cfg    storage.Resolved
	log    *zap.Logger
}

// Ensure Client implements the interfaces.
var (
	_ storage.Client    = (*Client)(nil)
	_ storage.URLSigner = (*Client)(nil)
)

func init() {
	storage.Register(storage.ProviderMinio, func(ctx context.Context, cfg storage.Resolved) (storage.Client, error) {
		return New(ctx, cfg)
	})
}

// New creates a MinIO client from normalized options. minio-go connects
// lazily, so no request is made here.
func New(_ context.Context, cfg storage.Resolved) (*Client, error) {
	opts, host, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	mc, err := miniogo.New(host, opts)
	if err != nil {
		return nil, &storage.Error{Op: "New", Provider: storage.ProviderMinio, Err: fmt.Errorf("failed to create minio client: %w", err)}
	}

	name, version, _ := strings.Cut(cfg.UserAgent, "/")
	mc.SetAppInfo(name, version)

	return NewWithAPI(&clientWrapper{Client: mc}, cfg), nil
}

// NewFromOptions normalizes opts and creates a MinIO client.
func NewFromOptions(ctx context.Context, opts storage.Options) (*Client, error) {
	opts.Provider = storage.ProviderMinio.String()
	cfg, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// NewWithAPI wraps an existing API implementation.
func NewWithAPI(api API, cfg storage.Resolved) *Client {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		api:    api,
		region: cfg.Region,
		cfg:    cfg,
		log:    log.With(zap.String("provider", storage.ProviderMinio.String())),
	}
}

// clientOptions maps normalized options onto minio-go options and returns the
// scheme-less host minio-go expects.
func clientOptions(cfg storage.Resolved) (*miniogo.Options, string, error) {
	host, secure := splitEndpoint(cfg.Endpoint, cfg.Secure())

	creds, err := credentialsFor(cfg)
	if err != nil {
		return nil, "", err
	}

	opts := &miniogo.Options{
		Creds:        creds,
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: miniogo.BucketLookupAuto,
	}
	if cfg.ForcePathBucket {
		opts.BucketLookup = miniogo.BucketLookupPath
	}
	// minio-go counts attempts; 1 disables retries.
	if cfg.MaxRetries != nil {
		opts.MaxRetries = *cfg.MaxRetries + 1
	}

	if cfg.CustomTransport() {
		tr, err := miniogo.DefaultTransport(secure)
		if err != nil {
			return nil, "", &storage.Error{Op: "New", Provider: storage.ProviderMinio, Err: err}
		}
		cfg.ConfigureTransport(tr)
		opts.Transport = tr
	}

	return opts, host, nil
}

func credentialsFor(cfg storage.Resolved) (*credentials.Credentials, error) {
	if cfg.Credentials != nil {
		creds, ok := cfg.Credentials.(*credentials.Credentials)
		if !ok {
			return nil, &storage.ConfigError{
				Provider: storage.ProviderMinio,
				Field:    "Credentials",
				Message:  "must be a *credentials.Credentials",
			}
		}
		return creds, nil
	}

	if cfg.KeyID != "" {
		return credentials.NewStaticV4(cfg.KeyID, cfg.Key, cfg.SessionToken), nil
	}

	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.EnvMinio{},
	}), nil
}

// splitEndpoint strips the scheme from endpoint. An explicit scheme decides
// TLS; otherwise the configured protocol does.
func splitEndpoint(endpoint string, secure bool) (string, bool) {
	if endpoint == "" {
		return DefaultEndpoint, secure
	}
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), false
	}
	return strings.TrimSuffix(endpoint, "/"), secure
}

// Provider returns storage.ProviderMinio.
func (c *Client) Provider() storage.ProviderType {
	return storage.ProviderMinio
}

// Config returns the normalized options the client was built with.
func (c *Client) Config() storage.Resolved {
	return c.cfg
}

// Close releases any resources held by the client.
func (c *Client) Close() error {
	return nil
}

// clientWrapper adapts *miniogo.Client to API.
type clientWrapper struct {
	*miniogo.Client
}

func (w *clientWrapper) GetObject(ctx context.Context, bucketName, objectName string, opts miniogo.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := w.Client.GetObject(ctx, bucketName, objectName, opts)
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, err
	}
	return obj, nil
}
