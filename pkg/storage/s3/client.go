package s3

import (
	"context"
	"errors"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/3leaps/cloudkit/pkg/storage"
)

// API is the subset of the S3 service client used by Client.
// *s3.Client satisfies it.
type API interface {
	manager.UploadAPIClient

	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjects(ctx context.Context, params *s3.ListObjectsInput, optFns ...func(*s3.Options)) (*s3.ListObjectsOutput, error)
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
}

// PresignAPI is the subset of the S3 presign client used for signed URLs.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Client implements storage.Client for AWS S3 and S3-compatible storage.
//
// A Client owns one S3 service handle and one managed uploader for its whole
// lifetime; no handle is created per call.
type Client struct {
	api      API
	presign  PresignAPI
	uploader *manager.Uploader
	region   string
	cfg      storage.Resolved
	log      *zap.Logger
}

// Ensure Client implements the interfaces.
var (
	_ storage.Client    = (*Client)(nil)
	_ storage.URLSigner = (*Client)(nil)
)

func init() {
	storage.Register(storage.ProviderS3, func(ctx context.Context, cfg storage.Resolved) (storage.Client, error) {
		return New(ctx, cfg)
	})
}

// New creates an S3 client from normalized options.
//
// The client uses AWS SDK v2's default credential chain unless explicit
// credentials are provided.
func New(ctx context.Context, cfg storage.Resolved) (*Client, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		var cfgErr *storage.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &storage.Error{Op: "New", Provider: storage.ProviderS3, Err: err}
	}

	svc := s3.NewFromConfig(awsCfg, clientOptions(cfg)...)

	return NewWithAPI(svc, s3.NewPresignClient(svc), awsCfg.Region, cfg), nil
}

// NewFromOptions normalizes opts and creates an S3 client.
func NewFromOptions(ctx context.Context, opts storage.Options) (*Client, error) {
	opts.Provider = storage.ProviderS3.String()
	cfg, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// NewWithAPI wraps an existing service client. presign may be nil, in which
// case SignedURL always fails.
func NewWithAPI(api API, presign PresignAPI, region string, cfg storage.Resolved) *Client {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		api:      api,
		presign:  presign,
		uploader: manager.NewUploader(api),
		region:   region,
		cfg:      cfg,
		log:      log.With(zap.String("provider", storage.ProviderS3.String())),
	}
}

// Provider returns storage.ProviderS3.
func (c *Client) Provider() storage.ProviderType {
	return storage.ProviderS3
}

// Region returns the resolved AWS region.
func (c *Client) Region() string {
	return c.region
}

// Config returns the normalized options the client was built with.
func (c *Client) Config() storage.Resolved {
	return c.cfg
}

// Close releases any resources held by the client.
// The S3 client doesn't require explicit cleanup, but this satisfies the interface.
func (c *Client) Close() error {
	return nil
}
