package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors used to classify provider failures.
var (
	// ErrNotFound indicates the requested file does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrBucketNotFound indicates the container does not exist.
	ErrBucketNotFound = errors.New("container not found")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrProviderUnavailable indicates the provider service is unavailable.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrThrottled indicates the request was rate limited by the provider.
	ErrThrottled = errors.New("request throttled")

	// ErrSignedURLDisabled indicates signed URLs are not enabled for the client.
	ErrSignedURLDisabled = errors.New("signed urls are disabled")

	// ErrUnknownProvider indicates no factory is registered for a provider name.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Error wraps a provider failure with operation context.
//
// Err is the vendor error exactly as the SDK returned it, so errors.As can
// still reach SDK error types. Kind is an optional classification matched by
// errors.Is; it never replaces Err.
type Error struct {
	// Op is the operation that failed (e.g., "GetFiles", "RemoveFile").
	Op string

	// Provider is the provider type.
	Provider ProviderType

	// Container is the container name, if applicable.
	Container string

	// File is the file name, if applicable.
	File string

	// Kind is one of the sentinel errors above, or nil when unclassified.
	Kind error

	// Status is the HTTP status code reported by the provider, or zero.
	Status int

	// Err is the underlying vendor error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Provider, e.Op, e.Container, e.File, e.Err)
	}
	if e.Container != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Container, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the vendor error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the classification of this error.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// ConfigError represents a construction configuration error.
type ConfigError struct {
	Provider ProviderType
	Field    string
	Message  string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Provider == "" {
		return "storage config: " + e.Field + ": " + e.Message
	}
	return string(e.Provider) + " config: " + e.Field + ": " + e.Message
}

// IsNotFound returns true if the error indicates a file was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsBucketNotFound returns true if the error indicates the container does not exist.
func IsBucketNotFound(err error) bool {
	return errors.Is(err, ErrBucketNotFound)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsInvalidCredentials returns true if the error indicates authentication failed.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// IsProviderUnavailable returns true if the error indicates the provider service is unavailable.
func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// IsThrottled returns true if the error indicates the request was rate limited.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// ClassifyCode maps a provider error code to a sentinel, or nil.
//
// S3 and S3-compatible services share this vocabulary.
func ClassifyCode(code string) error {
	switch code {
	case "NoSuchKey", "NotFound":
		return ErrNotFound
	case "NoSuchBucket":
		return ErrBucketNotFound
	case "AccessDenied", "Forbidden":
		return ErrAccessDenied
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return ErrInvalidCredentials
	case "SlowDown", "Throttling", "RequestLimitExceeded":
		return ErrThrottled
	case "ServiceUnavailable", "InternalError":
		return ErrProviderUnavailable
	}
	return nil
}

// ClassifyStatus maps an HTTP status code to a sentinel, or nil.
func ClassifyStatus(status int) error {
	switch status {
	case 401:
		return ErrInvalidCredentials
	case 403:
		return ErrAccessDenied
	case 404:
		return ErrNotFound
	case 429:
		return ErrThrottled
	case 500, 502, 503, 504:
		return ErrProviderUnavailable
	}
	return nil
}
