package s3

import (
	"errors"
	"net/http"
	"strings"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/3leaps/cloudkit/pkg/storage"
)

// failCodes labels HTTP failures reported by AWS services.
var failCodes = map[int]string{
	400: "Bad Request",
	401: "Unauthorized",
	403: "Resize not allowed",
	404: "Item not found",
	409: "Build in progress",
	413: "Over Limit",
	415: "Bad Media Type",
	500: "Fault",
	503: "Service Unavailable",
}

// successCodes labels HTTP successes reported by AWS services.
var successCodes = map[int]string{
	200: "OK",
	201: "Created",
	202: "Accepted",
	203: "Non-authoritative information",
	204: "No content",
}

// StatusText returns the AWS label for an HTTP status code, falling back to
// the standard text.
func StatusText(code int) string {
	if s, ok := failCodes[code]; ok {
		return s
	}
	if s, ok := successCodes[code]; ok {
		return s
	}
	return http.StatusText(code)
}

// wrapError attaches operation context to an S3 error. The SDK error is kept
// as is; the classification only adds a Kind for errors.Is.
func (c *Client) wrapError(op, bucket, key string, err error) error {
	wrapped := &storage.Error{
		Op:        op,
		Provider:  storage.ProviderS3,
		Container: bucket,
		File:      key,
		Err:       err,
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		wrapped.Status = respErr.HTTPStatusCode()
	}

	wrapped.Kind = classify(err, wrapped.Status)

	if c != nil && c.log != nil {
		c.log.Debug("S3 request failed",
			zap.String("op", op),
			zap.String("container", bucket),
			zap.String("file", key),
			zap.Int("status", wrapped.Status),
			zap.String("status_text", StatusText(wrapped.Status)),
			zap.Error(err))
	}

	return wrapped
}

// classify maps an S3 error to a storage sentinel, or nil.
func classify(err error, status int) error {
	// Check for specific S3 error types first
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket

	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		return storage.ErrNotFound
	case errors.As(err, &noSuchBucket):
		return storage.ErrBucketNotFound
	}

	// Check smithy API errors for error codes
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if kind := storage.ClassifyCode(apiErr.ErrorCode()); kind != nil {
			return kind
		}
	}

	if kind := storage.ClassifyStatus(status); kind != nil {
		return kind
	}

	// Fallback: check error message for common cases
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "NoSuchBucket"):
		return storage.ErrBucketNotFound
	case strings.Contains(errMsg, "NoSuchKey") || strings.Contains(errMsg, "NotFound") || strings.Contains(errMsg, "StatusCode: 404"):
		return storage.ErrNotFound
	case strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Forbidden") || strings.Contains(errMsg, "StatusCode: 403"):
		return storage.ErrAccessDenied
	case strings.Contains(errMsg, "InvalidAccessKeyId") || strings.Contains(errMsg, "SignatureDoesNotMatch"):
		return storage.ErrInvalidCredentials
	case strings.Contains(errMsg, "SlowDown") || strings.Contains(errMsg, "Throttling") || strings.Contains(errMsg, "StatusCode: 429"):
		return storage.ErrThrottled
	case strings.Contains(errMsg, "ServiceUnavailable") || strings.Contains(errMsg, "StatusCode: 503"):
		return storage.ErrProviderUnavailable
	}

	return nil
}
