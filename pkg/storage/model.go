package storage

import "time"

// Container is the normalized view of a remote bucket.
//
// A Container is populated once, either from a bare name or from a provider
// listing, and is not kept in sync with later remote changes.
type Container struct {
	// Name is the container name.
	Name string `json:"name"`

	// MaxKeys is the page size hint reported by the listing, if any.
	MaxKeys *int `json:"maxKeys"`

	// IsTruncated is true when the listing that produced this container was
	// paginated and more files exist.
	IsTruncated bool `json:"isTruncated"`

	// Files holds the entries embedded in the listing, in listing order.
	// They are not part of the serialized projection.
	Files []*File `json:"-"`
}

// Listing is a provider listing record reshaped into neutral fields.
type Listing struct {
	Name        string
	MaxKeys     *int
	IsTruncated bool
	Contents    []*File
}

// NewContainer returns a container that carries only a name.
func NewContainer(name string) *Container {
	return &Container{Name: name}
}

// NewContainerFromListing builds a container from a listing record. Every
// embedded entry is attached to the new container.
func NewContainerFromListing(l Listing) *Container {
	c := &Container{
		Name:        l.Name,
		MaxKeys:     l.MaxKeys,
		IsTruncated: l.IsTruncated,
	}
	if len(l.Contents) > 0 {
		c.Files = make([]*File, 0, len(l.Contents))
		for _, f := range l.Contents {
			f.Container = c
			c.Files = append(c.Files, f)
		}
	}
	return c
}

// Ref returns a reference to this container.
func (c *Container) Ref() ContainerRef {
	return ContainerRef{name: c.Name, model: c}
}

// File is the normalized view of a remote object and its metadata.
//
// A File is a projection of remote state; it has no lifecycle of its own.
type File struct {
	// Name is the object key.
	Name string `json:"name"`

	// Container is the owning container. It is a back-reference only.
	Container *Container `json:"-"`

	Size            int64             `json:"size"`
	ETag            string            `json:"etag,omitempty"`
	LastModified    time.Time         `json:"lastModified,omitempty"`
	ContentType     string            `json:"contentType,omitempty"`
	ContentEncoding string            `json:"contentEncoding,omitempty"`
	CacheControl    string            `json:"cacheControl,omitempty"`
	StorageClass    string            `json:"storageClass,omitempty"`
	VersionID       string            `json:"versionId,omitempty"`
	Location        string            `json:"location,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ContainerName returns the owning container's name, or "" when unattached.
func (f *File) ContainerName() string {
	if f.Container == nil {
		return ""
	}
	return f.Container.Name
}

// Ref returns a reference to this file.
func (f *File) Ref() FileRef {
	return FileRef{name: f.Name, model: f}
}

// ContainerRef identifies a container either by name or by model.
//
// The zero value refers to no container.
type ContainerRef struct {
	name  string
	model *Container
}

// ContainerNamed returns a reference to the container with the given name.
func ContainerNamed(name string) ContainerRef {
	return ContainerRef{name: name}
}

// Name resolves the reference to the container name.
func (r ContainerRef) Name() string {
	if r.model != nil {
		return r.model.Name
	}
	return r.name
}

// Model returns the referenced container, or a name-only container when the
// reference was built from a name.
func (r ContainerRef) Model() *Container {
	if r.model != nil {
		return r.model
	}
	return NewContainer(r.name)
}

// IsZero reports whether the reference names nothing.
func (r ContainerRef) IsZero() bool {
	return r.Name() == ""
}

// FileRef identifies a file either by name or by model.
type FileRef struct {
	name  string
	model *File
}

// FileNamed returns a reference to the file with the given name.
func FileNamed(name string) FileRef {
	return FileRef{name: name}
}

// Name resolves the reference to the file name.
func (r FileRef) Name() string {
	if r.model != nil {
		return r.model.Name
	}
	return r.name
}

// IsZero reports whether the reference names nothing.
func (r FileRef) IsZero() bool {
	return r.Name() == ""
}
