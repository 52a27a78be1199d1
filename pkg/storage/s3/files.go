package s3

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/3leaps/cloudkit/pkg/storage"
)

// RemoveFile deletes a file and reports whether S3 created a delete marker.
func (c *Client) RemoveFile(ctx context.Context, container storage.ContainerRef, file storage.FileRef) (bool, error) {
	bucket, key := container.Name(), file.Name()

	out, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, c.wrapError("RemoveFile", bucket, key, err)
	}

	return aws.ToBool(out.DeleteMarker), nil
}

// Upload starts a managed multipart upload of everything written to the
// returned Upload.
func (c *Client) Upload(ctx context.Context, opts storage.UploadOptions) *storage.Upload {
	bucket, key := opts.Container.Name(), opts.Remote.Name()
	if bucket == "" {
		return storage.FailedUpload(&storage.ConfigError{Provider: storage.ProviderS3, Field: "Container", Message: "container is required"})
	}
	if key == "" {
		return storage.FailedUpload(&storage.ConfigError{Provider: storage.ProviderS3, Field: "Remote", Message: "remote name is required"})
	}

	input := putObjectInput(bucket, key, opts)
	container := opts.Container.Model()
	queueSize, partSize := opts.EffectiveQueueSize(), opts.EffectivePartSize()

	return storage.StartUpload(ctx, func(ctx context.Context, body io.Reader) (*storage.File, error) {
		input.Body = body

		out, err := c.uploader.Upload(ctx, input, func(u *manager.Uploader) {
			u.Concurrency = queueSize
			u.PartSize = partSize
		})
		if err != nil {
			c.log.Debug("Upload failed", zap.String("container", bucket), zap.String("file", key), zap.Error(err))
			return nil, c.wrapError("Upload", bucket, key, err)
		}

		return fileFromUpload(container, key, input, out), nil
	})
}

// putObjectInput shapes the upload request; optional headers are only set
// when provided.
func putObjectInput(bucket, key string, opts storage.UploadOptions) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.ContentEncoding != "" {
		input.ContentEncoding = aws.String(opts.ContentEncoding)
	}
	// Canned ACL until a provider-neutral permission model exists.
	if opts.ACL != "" {
		input.ACL = types.ObjectCannedACL(opts.ACL)
	}
	if opts.ServerSideEncryption != "" {
		input.ServerSideEncryption = types.ServerSideEncryption(opts.ServerSideEncryption)
	}
	return input
}

func fileFromUpload(container *storage.Container, key string, input *s3.PutObjectInput, out *manager.UploadOutput) *storage.File {
	name := aws.ToString(out.Key)
	if name == "" {
		name = key
	}
	return &storage.File{
		Name:            name,
		Container:       container,
		ETag:            cleanETag(aws.ToString(out.ETag)),
		Location:        out.Location,
		VersionID:       aws.ToString(out.VersionID),
		ContentType:     aws.ToString(input.ContentType),
		ContentEncoding: aws.ToString(input.ContentEncoding),
		CacheControl:    aws.ToString(input.CacheControl),
	}
}

// Download opens the object body. Errors while reading the body surface on
// the returned reader.
func (c *Client) Download(ctx context.Context, opts storage.DownloadOptions) (io.ReadCloser, error) {
	bucket, key := opts.Container.Name(), opts.Remote.Name()

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, c.wrapError("Download", bucket, key, err)
	}

	return out.Body, nil
}

// GetFile returns metadata for a single file.
// Returns an error matching storage.ErrNotFound if the file does not exist.
func (c *Client) GetFile(ctx context.Context, container storage.ContainerRef, name string) (*storage.File, error) {
	bucket := container.Name()

	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, c.wrapError("GetFile", bucket, name, err)
	}

	return &storage.File{
		Name:            name,
		Container:       container.Model(),
		Size:            aws.ToInt64(out.ContentLength),
		ETag:            cleanETag(aws.ToString(out.ETag)),
		LastModified:    aws.ToTime(out.LastModified),
		ContentType:     aws.ToString(out.ContentType),
		ContentEncoding: aws.ToString(out.ContentEncoding),
		CacheControl:    aws.ToString(out.CacheControl),
		StorageClass:    string(out.StorageClass),
		VersionID:       aws.ToString(out.VersionId),
		Metadata:        out.Metadata,
	}, nil
}

// GetFiles lists one page of files. Every returned file references the same
// container model.
func (c *Client) GetFiles(ctx context.Context, container storage.ContainerRef, opts storage.ListOptions) (*storage.ListResult, error) {
	bucket := container.Name()

	out, err := c.api.ListObjects(ctx, listObjectsInput(bucket, opts))
	if err != nil {
		return nil, c.wrapError("GetFiles", bucket, "", err)
	}

	model := container.Model()
	files := make([]*storage.File, 0, len(out.Contents))
	for _, obj := range out.Contents {
		files = append(files, fileFromObject(model, obj))
	}

	return &storage.ListResult{
		Files: files,
		Page: storage.Page{
			IsTruncated: aws.ToBool(out.IsTruncated),
			Marker:      aws.ToString(out.Marker),
			NextMarker:  aws.ToString(out.NextMarker),
		},
	}, nil
}

// listObjectsInput carries only the listing options that were set.
func listObjectsInput(bucket string, opts storage.ListOptions) *s3.ListObjectsInput {
	input := &s3.ListObjectsInput{
		Bucket: aws.String(bucket),
	}
	if opts.Marker != "" {
		input.Marker = aws.String(opts.Marker)
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.MaxKeys > 0 {
		input.MaxKeys = aws.Int32(int32(min(opts.MaxKeys, storage.MaxPageSize)))
	}
	return input
}

func fileFromObject(container *storage.Container, obj types.Object) *storage.File {
	return &storage.File{
		Name:         aws.ToString(obj.Key),
		Container:    container,
		Size:         aws.ToInt64(obj.Size),
		ETag:         cleanETag(aws.ToString(obj.ETag)),
		LastModified: aws.ToTime(obj.LastModified),
		StorageClass: string(obj.StorageClass),
	}
}

// SignedURL returns a presigned GET URL valid for the configured cache max age.
func (c *Client) SignedURL(ctx context.Context, container storage.ContainerRef, file storage.FileRef) (string, error) {
	bucket, key := container.Name(), file.Name()

	if !c.cfg.SignedURL.Enabled || c.presign == nil {
		return "", &storage.Error{Op: "SignedURL", Provider: storage.ProviderS3, Container: bucket, File: key, Kind: storage.ErrSignedURLDisabled, Err: storage.ErrSignedURLDisabled}
	}

	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.cfg.SignedURL.CacheMaxAge))
	if err != nil {
		return "", c.wrapError("SignedURL", bucket, key, err)
	}

	return req.URL, nil
}

// cleanETag removes surrounding quotes from an ETag value.
// S3 returns ETags with quotes, e.g., "d41d8cd98f00b204e9800998ecf8427e".
func cleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}
