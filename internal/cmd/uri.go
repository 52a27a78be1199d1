package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/3leaps/cloudkit/pkg/match"
	"github.com/3leaps/cloudkit/pkg/storage"
)

// URI parsing errors
var (
	// ErrInvalidURI indicates the URI could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedProvider indicates the URI scheme is not supported.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingContainer indicates the URI is missing a container name.
	ErrMissingContainer = errors.New("missing container name")
)

// schemes maps URI schemes onto registered providers.
var schemes = map[string]storage.ProviderType{
	"s3":    storage.ProviderS3,
	"minio": storage.ProviderMinio,
}

// ObjectURI represents a parsed cloud storage URI.
//
// Example URIs:
//   - s3://container/key/path.txt
//   - minio://container/prefix/
//   - s3://container/prefix/**/*.parquet
type ObjectURI struct {
	// Provider is the storage provider selected by the scheme.
	Provider storage.ProviderType

	// Container is the container (bucket) name.
	Container string

	// Key is the file name or listing prefix. Empty for the container root.
	Key string

	// Pattern is set if the path contains glob characters. Key then holds the
	// static prefix before the first glob character.
	Pattern string
}

// String returns the URI in canonical form.
func (u *ObjectURI) String() string {
	path := u.Key
	if u.Pattern != "" {
		path = u.Pattern
	}
	return fmt.Sprintf("%s://%s/%s", u.Provider, u.Container, path)
}

// IsPattern returns true if the URI contains glob pattern characters.
func (u *ObjectURI) IsPattern() bool {
	return u.Pattern != ""
}

// IsPrefix returns true if the URI names a prefix rather than a file.
func (u *ObjectURI) IsPrefix() bool {
	return u.Key == "" || strings.HasSuffix(u.Key, "/")
}

// ContainerRef returns a reference to the URI's container.
func (u *ObjectURI) ContainerRef() storage.ContainerRef {
	return storage.ContainerNamed(u.Container)
}

// ParseProvider parses a bare scheme ("s3", "minio://") into a provider.
func ParseProvider(s string) (storage.ProviderType, error) {
	scheme := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(s), "://"))
	p, ok := schemes[scheme]
	if !ok {
		return "", fmt.Errorf("%w: %s (supported: s3, minio)", ErrUnsupportedProvider, s)
	}
	return p, nil
}

// ParseURI parses a cloud storage URI into its components.
//
// Supported formats:
//   - s3://container
//   - s3://container/key
//   - s3://container/prefix/
//   - minio://container/prefix/**/*.parquet
func ParseURI(uri string) (*ObjectURI, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	// url.Parse would treat '?' in a glob as a query delimiter.
	schemeEnd := strings.Index(uri, "://")
	if schemeEnd == -1 {
		return nil, fmt.Errorf("%w: missing scheme (expected s3://... or minio://...)", ErrInvalidURI)
	}

	provider, err := ParseProvider(uri[:schemeEnd])
	if err != nil {
		return nil, err
	}

	container, key, _ := strings.Cut(uri[schemeEnd+3:], "/")
	if container == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingContainer, uri)
	}
	if _, err := url.Parse("s3://" + container + "/"); err != nil {
		return nil, fmt.Errorf("%w: invalid container name %q", ErrInvalidURI, container)
	}

	result := &ObjectURI{Provider: provider, Container: container}
	if match.IsGlobPattern(key) {
		result.Pattern = key
	}
	result.Key = match.DerivePrefix(key)
	return result, nil
}
