package minio

import (
	"context"
	"io"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/encrypt"
	"go.uber.org/zap"

	"github.com/3leaps/cloudkit/pkg/storage"
)

// defaultPageSize matches the S3 ListObjects page size.
const defaultPageSize = storage.MaxPageSize

// RemoveFile deletes a file and reports whether a delete marker was created.
func (c *Client) RemoveFile(ctx context.Context, container storage.ContainerRef, file storage.FileRef) (bool, error) {
	bucket, key := container.Name(), file.Name()

	objects := make(chan miniogo.ObjectInfo, 1)
	objects <- miniogo.ObjectInfo{Key: key}
	close(objects)

	var marker bool
	var firstErr error
	for res := range c.api.RemoveObjectsWithResult(ctx, bucket, objects, miniogo.RemoveObjectsOptions{}) {
		if res.Err != nil && firstErr == nil {
			firstErr = res.Err
		}
		marker = marker || res.DeleteMarker
	}
	if firstErr != nil {
		return false, c.wrapError("RemoveFile", bucket, key, firstErr)
	}

	return marker, nil
}

// Upload streams everything written to the returned Upload as a multipart
// upload of unknown length.
func (c *Client) Upload(ctx context.Context, opts storage.UploadOptions) *storage.Upload {
	bucket, key := opts.Container.Name(), opts.Remote.Name()
	if bucket == "" {
		return storage.FailedUpload(&storage.ConfigError{Provider: storage.ProviderMinio, Field: "Container", Message: "container is required"})
	}
	if key == "" {
		return storage.FailedUpload(&storage.ConfigError{Provider: storage.ProviderMinio, Field: "Remote", Message: "remote name is required"})
	}

	putOpts, err := putObjectOptions(opts)
	if err != nil {
		return storage.FailedUpload(err)
	}
	container := opts.Container.Model()

	return storage.StartUpload(ctx, func(ctx context.Context, body io.Reader) (*storage.File, error) {
		info, err := c.api.PutObject(ctx, bucket, key, body, -1, putOpts)
		if err != nil {
			c.log.Debug("Upload failed", zap.String("container", bucket), zap.String("file", key), zap.Error(err))
			return nil, c.wrapError("Upload", bucket, key, err)
		}

		name := info.Key
		if name == "" {
			name = key
		}
		return &storage.File{
			Name:            name,
			Container:       container,
			Size:            info.Size,
			ETag:            strings.Trim(info.ETag, "\""),
			LastModified:    info.LastModified,
			Location:        info.Location,
			VersionID:       info.VersionID,
			ContentType:     putOpts.ContentType,
			ContentEncoding: putOpts.ContentEncoding,
			CacheControl:    putOpts.CacheControl,
		}, nil
	})
}

// putObjectOptions maps upload options onto minio-go. The canned ACL travels
// as an x-amz-acl header.
func putObjectOptions(opts storage.UploadOptions) (miniogo.PutObjectOptions, error) {
	put := miniogo.PutObjectOptions{
		ContentType:     opts.ContentType,
		ContentEncoding: opts.ContentEncoding,
		CacheControl:    opts.CacheControl,
		PartSize:        uint64(opts.EffectivePartSize()),
		NumThreads:      uint(opts.EffectiveQueueSize()),
	}
	if opts.ACL != "" {
		put.UserMetadata = map[string]string{"x-amz-acl": opts.ACL}
	}

	switch opts.ServerSideEncryption {
	case "":
	case "AES256":
		put.ServerSideEncryption = encrypt.NewSSE()
	default:
		return miniogo.PutObjectOptions{}, &storage.ConfigError{
			Provider: storage.ProviderMinio,
			Field:    "ServerSideEncryption",
			Message:  "unsupported value " + opts.ServerSideEncryption,
		}
	}

	return put, nil
}

// Download opens the object body.
func (c *Client) Download(ctx context.Context, opts storage.DownloadOptions) (io.ReadCloser, error) {
	bucket, key := opts.Container.Name(), opts.Remote.Name()

	body, err := c.api.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, c.wrapError("Download", bucket, key, err)
	}
	return body, nil
}

// GetFile returns metadata for a single file.
func (c *Client) GetFile(ctx context.Context, container storage.ContainerRef, name string) (*storage.File, error) {
	bucket := container.Name()

	info, err := c.api.StatObject(ctx, bucket, name, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, c.wrapError("GetFile", bucket, name, err)
	}

	f := fileFromInfo(container.Model(), info)
	f.Name = name
	f.Metadata = info.UserMetadata
	if info.Metadata != nil {
		f.ContentEncoding = info.Metadata.Get("Content-Encoding")
		f.CacheControl = info.Metadata.Get("Cache-Control")
	}
	return f, nil
}

// GetFiles returns one page of files. minio-go pages internally; the page is
// cut at MaxKeys and the listing stopped.
func (c *Client) GetFiles(ctx context.Context, container storage.ContainerRef, opts storage.ListOptions) (*storage.ListResult, error) {
	bucket := container.Name()

	infos, truncated, err := c.listPage(ctx, bucket, opts)
	if err != nil {
		return nil, c.wrapError("GetFiles", bucket, "", err)
	}

	model := container.Model()
	files := make([]*storage.File, 0, len(infos))
	for _, info := range infos {
		files = append(files, fileFromInfo(model, info))
	}

	page := storage.Page{IsTruncated: truncated, Marker: opts.Marker}
	if truncated && len(files) > 0 {
		page.NextMarker = files[len(files)-1].Name
	}
	return &storage.ListResult{Files: files, Page: page}, nil
}

// listPage reads at most one page (plus one lookahead entry to detect
// truncation) from the listing channel.
func (c *Client) listPage(ctx context.Context, bucket string, opts storage.ListOptions) ([]miniogo.ObjectInfo, bool, error) {
	limit := opts.MaxKeys
	if limit <= 0 || limit > storage.MaxPageSize {
		limit = defaultPageSize
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := c.api.ListObjects(ctx, bucket, miniogo.ListObjectsOptions{
		Prefix:     opts.Prefix,
		StartAfter: opts.Marker,
		MaxKeys:    limit,
		Recursive:  true,
		UseV1:      true,
	})
	return collectPage(ch, limit)
}

// collectPage drains up to limit entries and reports whether more followed.
func collectPage(ch <-chan miniogo.ObjectInfo, limit int) ([]miniogo.ObjectInfo, bool, error) {
	infos := make([]miniogo.ObjectInfo, 0, min(limit, defaultPageSize))
	for info := range ch {
		if info.Err != nil {
			return nil, false, info.Err
		}
		if len(infos) == limit {
			return infos, true, nil
		}
		infos = append(infos, info)
	}
	return infos, false, nil
}

func fileFromInfo(container *storage.Container, info miniogo.ObjectInfo) *storage.File {
	return &storage.File{
		Name:         info.Key,
		Container:    container,
		Size:         info.Size,
		ETag:         strings.Trim(info.ETag, "\""),
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
		StorageClass: info.StorageClass,
		VersionID:    info.VersionID,
	}
}

// SignedURL returns a presigned GET URL valid for the configured cache max age.
func (c *Client) SignedURL(ctx context.Context, container storage.ContainerRef, file storage.FileRef) (string, error) {
	bucket, key := container.Name(), file.Name()

	if !c.cfg.SignedURL.Enabled {
		return "", &storage.Error{Op: "SignedURL", Provider: storage.ProviderMinio, Container: bucket, File: key, Kind: storage.ErrSignedURLDisabled, Err: storage.ErrSignedURLDisabled}
	}

	u, err := c.api.PresignedGetObject(ctx, bucket, key, c.cfg.SignedURL.CacheMaxAge, nil)
	if err != nil {
		return "", c.wrapError("SignedURL", bucket, key, err)
	}
	return u.String(), nil
}
