// Package storage defines a provider-neutral API for cloud object storage.
//
// A Client maps uniform container and file operations onto one backend
// (AWS S3, MinIO, ...). Providers translate requests into the shape their
// SDK expects and translate responses back into Container and File models.
// Retries, request signing, connection pooling and multipart orchestration
// stay inside the vendor SDK.
package storage

import (
	"context"
	"io"
)

// Client is the uniform storage surface implemented by every provider.
//
// Implementations should:
//   - Own exactly one vendor handle for their lifetime
//   - Resolve ContainerRef/FileRef to names once, at the call boundary
//   - Pass vendor errors through unchanged (wrapped in *Error)
//   - Be safe for concurrent use
type Client interface {
	// Provider returns the provider type backing this client.
	Provider() ProviderType

	// GetContainers lists all containers visible to the credentials.
	GetContainers(ctx context.Context) ([]*Container, error)

	// GetContainer lists a container and returns it with its first page of files.
	GetContainer(ctx context.Context, container ContainerRef) (*Container, error)

	// CreateContainer creates a container.
	CreateContainer(ctx context.Context, container ContainerRef) (*Container, error)

	// DestroyContainer removes every file in the container and then the container.
	DestroyContainer(ctx context.Context, container ContainerRef) error

	// RemoveFile deletes a file. The result reports whether the provider
	// created a delete marker (soft delete) instead of removing the object.
	RemoveFile(ctx context.Context, container ContainerRef, file FileRef) (bool, error)

	// Upload starts a managed upload and returns immediately. Data written to
	// the returned Upload is streamed to the provider; the outcome is only
	// known through Upload.Wait or Upload.Done.
	Upload(ctx context.Context, opts UploadOptions) *Upload

	// Download opens the remote file body for reading.
	Download(ctx context.Context, opts DownloadOptions) (io.ReadCloser, error)

	// GetFile fetches file metadata without the body.
	GetFile(ctx context.Context, container ContainerRef, name string) (*File, error)

	// GetFiles lists one page of files in a container.
	GetFiles(ctx context.Context, container ContainerRef, opts ListOptions) (*ListResult, error)

	// Close releases any resources held by the client.
	Close() error
}

// UploadOptions configures Client.Upload.
type UploadOptions struct {
	// Container is the destination container (required).
	Container ContainerRef

	// Remote is the destination file name (required).
	Remote FileRef

	CacheControl    string
	ContentType     string
	ContentEncoding string

	// ACL is a canned ACL such as "private" or "public-read".
	ACL string

	// ServerSideEncryption is the provider encryption mode, e.g. "AES256".
	ServerSideEncryption string

	// QueueSize is the number of parts uploaded concurrently. Zero uses DefaultQueueSize.
	QueueSize int

	// PartSize is the multipart chunk size in bytes. Zero uses DefaultPartSize.
	PartSize int64
}

// Managed upload defaults.
const (
	DefaultQueueSize       = 1
	DefaultPartSize  int64 = 5 * 1024 * 1024
)

// EffectiveQueueSize returns QueueSize or the default.
func (o UploadOptions) EffectiveQueueSize() int {
	if o.QueueSize <= 0 {
		return DefaultQueueSize
	}
	return o.QueueSize
}

// EffectivePartSize returns PartSize or the default.
func (o UploadOptions) EffectivePartSize() int64 {
	if o.PartSize <= 0 {
		return DefaultPartSize
	}
	return o.PartSize
}

// DownloadOptions configures Client.Download.
type DownloadOptions struct {
	Container ContainerRef
	Remote    FileRef
}

// MaxPageSize is the largest page a single listing request returns.
const MaxPageSize = 1000

// ListOptions configures Client.GetFiles.
//
// Zero values are not sent to the provider, so the provider default applies.
type ListOptions struct {
	// Marker resumes a listing after this key.
	Marker string

	// Prefix filters results to names starting with this value.
	Prefix string

	// MaxKeys limits the page size. Values above MaxPageSize are capped.
	MaxKeys int
}

// ListResult is one page of a GetFiles listing.
type ListResult struct {
	// Files preserves provider listing order.
	Files []*File

	Page Page
}

// Page describes where a listing stopped. The markers are opaque and owned by
// the provider.
type Page struct {
	IsTruncated bool   `json:"isTruncated"`
	Marker      string `json:"marker,omitempty"`
	NextMarker  string `json:"nextMarker,omitempty"`
}

// ProviderType identifies a storage provider.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage via the AWS SDK.
	ProviderS3 ProviderType = "s3"

	// ProviderMinio represents MinIO or S3-compatible storage via minio-go.
	ProviderMinio ProviderType = "minio"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}
