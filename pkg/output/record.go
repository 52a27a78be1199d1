// Package output provides JSONL output for storage command results.
//
// Output is structured as typed record envelopes containing files,
// containers, listing pages, transfers and errors. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/cloudkit/pkg/storage"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: cloudkit.<type>.v<version>
const (
	// TypeFile identifies file metadata records.
	TypeFile = "cloudkit.file.v1"

	// TypeContainer identifies container records.
	TypeContainer = "cloudkit.container.v1"

	// TypePage identifies listing page trailers.
	TypePage = "cloudkit.page.v1"

	// TypeTransfer identifies completed upload/download/delete records.
	TypeTransfer = "cloudkit.transfer.v1"

	// TypeSignedURL identifies presigned URL records.
	TypeSignedURL = "cloudkit.signed_url.v1"

	// TypeError identifies error records.
	TypeError = "cloudkit.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "cloudkit.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "cloudkit.file.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID correlates every record of one command invocation.
	RunID string `json:"run_id"`

	// Provider identifies the storage provider (e.g., "s3", "minio").
	Provider string `json:"provider"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// FileRecord is the data payload for file metadata.
type FileRecord struct {
	Container    string    `json:"container"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`

	// ContentType is only known for single-file lookups and uploads.
	ContentType  string            `json:"content_type,omitempty"`
	StorageClass string            `json:"storage_class,omitempty"`
	VersionID    string            `json:"version_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewFileRecord converts a file model.
func NewFileRecord(f *storage.File) *FileRecord {
	return &FileRecord{
		Container:    f.ContainerName(),
		Name:         f.Name,
		Size:         f.Size,
		ETag:         f.ETag,
		LastModified: f.LastModified,
		ContentType:  f.ContentType,
		StorageClass: f.StorageClass,
		VersionID:    f.VersionID,
		Metadata:     f.Metadata,
	}
}

// ContainerRecord is the data payload for containers.
type ContainerRecord struct {
	Name        string `json:"name"`
	MaxKeys     *int   `json:"max_keys,omitempty"`
	IsTruncated bool   `json:"is_truncated,omitempty"`
	Files       int    `json:"files,omitempty"`
}

// NewContainerRecord converts a container model.
func NewContainerRecord(c *storage.Container) *ContainerRecord {
	return &ContainerRecord{
		Name:        c.Name,
		MaxKeys:     c.MaxKeys,
		IsTruncated: c.IsTruncated,
		Files:       len(c.Files),
	}
}

// PageRecord trails a listing and carries the paging cursor.
type PageRecord struct {
	Container string       `json:"container"`
	Count     int          `json:"count"`
	Page      storage.Page `json:"page"`
}

// TransferRecord is the data payload for a finished operation on one file.
type TransferRecord struct {
	// Op is one of "upload", "download" or "remove".
	Op        string `json:"op"`
	Container string `json:"container"`
	Name      string `json:"name"`
	Bytes     int64  `json:"bytes"`

	// DeleteMarker is set for removals that created a delete marker.
	DeleteMarker bool          `json:"delete_marker,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
}

// SignedURLRecord is the data payload for presigned URLs.
type SignedURLRecord struct {
	Container string        `json:"container"`
	Name      string        `json:"name"`
	URL       string        `json:"url"`
	ExpiresIn time.Duration `json:"expires_in_ns"`
}

// ErrorRecord is the data payload for errors.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Op is the storage operation that failed, if known.
	Op string `json:"op,omitempty"`

	Container string `json:"container,omitempty"`
	Name      string `json:"name,omitempty"`

	// Status is the provider HTTP status, if any.
	Status int `json:"status,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeAccessDenied       = "ACCESS_DENIED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeContainerNotFound  = "CONTAINER_NOT_FOUND"
	ErrCodeThrottled          = "THROTTLED"
	ErrCodeUnavailable        = "UNAVAILABLE"
	ErrCodeInvalidConfig      = "INVALID_CONFIG"
	ErrCodeInternal           = "INTERNAL"
)

// ErrorCode maps an error onto an ErrorRecord code.
func ErrorCode(err error) string {
	var cfgErr *storage.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		return ErrCodeInvalidConfig
	case storage.IsNotFound(err):
		return ErrCodeNotFound
	case storage.IsBucketNotFound(err):
		return ErrCodeContainerNotFound
	case storage.IsAccessDenied(err):
		return ErrCodeAccessDenied
	case storage.IsInvalidCredentials(err):
		return ErrCodeInvalidCredentials
	case storage.IsThrottled(err):
		return ErrCodeThrottled
	case storage.IsProviderUnavailable(err):
		return ErrCodeUnavailable
	}
	return ErrCodeInternal
}

// NewErrorRecord converts an error, pulling operation context from a
// storage.Error when present.
func NewErrorRecord(err error) *ErrorRecord {
	rec := &ErrorRecord{Code: ErrorCode(err), Message: err.Error()}

	var se *storage.Error
	if errors.As(err, &se) {
		rec.Op = se.Op
		rec.Container = se.Container
		rec.Name = se.File
		rec.Status = se.Status
	}
	return rec
}

// SummaryRecord is the data payload for final summaries.
type SummaryRecord struct {
	// Files is the number of files emitted.
	Files int64 `json:"files"`

	// Bytes is the cumulative size of emitted files.
	Bytes int64 `json:"bytes"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// Errors is the count of errors encountered.
	Errors int64 `json:"errors"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
