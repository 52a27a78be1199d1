// Package s3 implements the storage client for AWS S3 and S3-compatible stores.
//
// Authentication priority:
//  1. Options.Credentials, when it is an aws.CredentialsProvider
//  2. Explicit key id / secret key (plus optional session token)
//  3. The AWS SDK v2 default chain (environment, shared files, instance roles)
//
// Region handling:
//   - For AWS S3: if Region is empty and not set via environment/profile,
//     defaults to us-east-1 (standard AWS convention).
//   - For S3-compatible stores (Endpoint set) no default region is applied.
package s3

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go/middleware"

	"github.com/3leaps/cloudkit/pkg/storage"
)

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// MaxDeleteBatch is the largest number of keys S3 accepts per DeleteObjects call.
const MaxDeleteBatch = 1000

// loadAWSConfig builds the SDK configuration from normalized options. Only the
// fields the SDK understands are carried over: credentials, region, retry
// count and the HTTP client (agent and proxy).
func loadAWSConfig(ctx context.Context, cfg storage.Resolved) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Only apply explicit region if set; let the SDK resolve env/profile first.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	creds, err := credentialsProvider(cfg)
	if err != nil {
		return aws.Config{}, err
	}
	if creds != nil {
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	// MaxRetries counts retries; the SDK counts attempts.
	if cfg.MaxRetries != nil {
		opts = append(opts, config.WithRetryMaxAttempts(*cfg.MaxRetries+1))
	}

	if cfg.CustomTransport() {
		opts = append(opts, config.WithHTTPClient(newHTTPClient(cfg)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	awsCfg.Region = resolveRegion(cfg.Region, cfg.Endpoint, awsCfg.Region)

	return awsCfg, nil
}

// credentialsProvider picks the credential source. A nil provider means the
// SDK default chain applies.
func credentialsProvider(cfg storage.Resolved) (aws.CredentialsProvider, error) {
	if cfg.Credentials != nil {
		p, ok := cfg.Credentials.(aws.CredentialsProvider)
		if !ok {
			return nil, &storage.ConfigError{
				Provider: storage.ProviderS3,
				Field:    "Credentials",
				Message:  "must implement aws.CredentialsProvider",
			}
		}
		return p, nil
	}

	if cfg.KeyID != "" && cfg.Key != "" {
		return credentials.NewStaticCredentialsProvider(cfg.KeyID, cfg.Key, cfg.SessionToken), nil
	}

	return nil, nil
}

// newHTTPClient builds the per-client HTTP client carrying the connection
// pool settings and the mock-server proxy.
func newHTTPClient(cfg storage.Resolved) *awshttp.BuildableClient {
	return awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
		cfg.ConfigureTransport(tr)
	})
}

// clientOptions returns the S3 service options for this client.
//
// The user agent is attached to this client's middleware stack only, so
// clients built with different identifiers never affect each other.
func clientOptions(cfg storage.Resolved) []func(*s3.Options) {
	return []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = cfg.ForcePathBucket
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(endpointURL(cfg.Protocol, cfg.Endpoint))
			}
			o.APIOptions = append(o.APIOptions, userAgentOption(cfg.UserAgent))
		},
	}
}

// userAgentOption appends "name/version" to the User-Agent header.
func userAgentOption(ua string) func(*middleware.Stack) error {
	name, version, ok := strings.Cut(ua, "/")
	if !ok || version == "" {
		return awsmiddleware.AddUserAgentKey(name)
	}
	return awsmiddleware.AddUserAgentKeyValue(name, version)
}

// endpointURL adds the configured protocol to a bare host endpoint.
func endpointURL(protocol, endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return protocol + endpoint
}

// resolveRegion determines the final region to use after SDK config loading.
//
// The sdkRegion parameter is the region after SDK loading, which already
// incorporates explicit cfgRegion (if set) or env/profile resolution.
//
// This function only applies the fallback default:
//   - If sdkRegion is still empty AND no custom endpoint, default to us-east-1
//   - For S3-compatible stores (endpoint set), no defaulting occurs
func resolveRegion(cfgRegion, endpoint, sdkRegion string) string {
	// SDK already resolved region (from explicit config, env, or profile)
	if sdkRegion != "" {
		return sdkRegion
	}

	// Only default for AWS S3 (no custom endpoint)
	if endpoint == "" {
		return DefaultAWSRegion
	}

	// S3-compatible: no default, provider may not need region
	return ""
}
