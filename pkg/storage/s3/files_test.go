package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/cloudkit/pkg/storage"
)

func TestRemoveFile_DeleteMarker(t *testing.T) {
	tests := []struct {
		name   string
		marker *bool
		want   bool
	}{
		{"marker created", aws.Bool(true), true},
		{"no marker", aws.Bool(false), false},
		{"marker absent", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockAPI{}
			api.On("DeleteObject", mock.Anything, &s3.DeleteObjectInput{
				Bucket: aws.String("photos"),
				Key:    aws.String("cat.png"),
			}).Return(&s3.DeleteObjectOutput{DeleteMarker: tt.marker}, nil)

			c := newTestClient(t, api, storage.Options{})
			got, err := c.RemoveFile(context.Background(), storage.ContainerNamed("photos"), storage.FileNamed("cat.png"))

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			api.AssertExpectations(t)
		})
	}
}

func TestRemoveFile_AcceptsModels(t *testing.T) {
	api := &mockAPI{}
	api.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Bucket) == "photos" && aws.ToString(in.Key) == "cat.png"
	})).Return(&s3.DeleteObjectOutput{}, nil)

	container := storage.NewContainer("photos")
	file := &storage.File{Name: "cat.png", Container: container}

	c := newTestClient(t, api, storage.Options{})
	_, err := c.RemoveFile(context.Background(), container.Ref(), file.Ref())

	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestRemoveFile_ErrorPassThrough(t *testing.T) {
	apiErr := &mockAPIError{code: "AccessDenied", message: "nope"}
	api := &mockAPI{}
	api.On("DeleteObject", mock.Anything, mock.Anything).Return(nil, apiErr)

	c := newTestClient(t, api, storage.Options{})
	ok, err := c.RemoveFile(context.Background(), storage.ContainerNamed("photos"), storage.FileNamed("cat.png"))

	assert.False(t, ok)
	assert.True(t, storage.IsAccessDenied(err))

	var got *mockAPIError
	require.ErrorAs(t, err, &got)
	assert.Same(t, apiErr, got)
}

func TestListObjectsInput(t *testing.T) {
	tests := []struct {
		name       string
		opts       storage.ListOptions
		wantMarker *string
		wantPrefix *string
		wantMax    *int32
	}{
		{name: "no options sends only bucket"},
		{name: "prefix only", opts: storage.ListOptions{Prefix: "logs/"}, wantPrefix: aws.String("logs/")},
		{name: "marker only", opts: storage.ListOptions{Marker: "a.txt"}, wantMarker: aws.String("a.txt")},
		{name: "max keys only", opts: storage.ListOptions{MaxKeys: 10}, wantMax: aws.Int32(10)},
		{name: "max keys capped", opts: storage.ListOptions{MaxKeys: math.MaxInt}, wantMax: aws.Int32(storage.MaxPageSize)},
		{
			name:       "all options",
			opts:       storage.ListOptions{Marker: "m", Prefix: "p/", MaxKeys: 100},
			wantMarker: aws.String("m"),
			wantPrefix: aws.String("p/"),
			wantMax:    aws.Int32(100),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := listObjectsInput("bucket", tt.opts)
			assert.Equal(t, "bucket", aws.ToString(in.Bucket))
			assert.Equal(t, tt.wantMarker, in.Marker)
			assert.Equal(t, tt.wantPrefix, in.Prefix)
			assert.Equal(t, tt.wantMax, in.MaxKeys)
			assert.Nil(t, in.Delimiter)
		})
	}
}

func TestGetFiles(t *testing.T) {
	modified := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	api := &mockAPI{}
	api.On("ListObjects", mock.Anything, &s3.ListObjectsInput{
		Bucket: aws.String("photos"),
		Prefix: aws.String("2025/"),
	}).Return(&s3.ListObjectsOutput{
		Name:        aws.String("photos"),
		IsTruncated: aws.Bool(true),
		NextMarker:  aws.String("2025/b.png"),
		Contents: []types.Object{
			{Key: aws.String("2025/a.png"), Size: aws.Int64(10), ETag: aws.String(`"aaa"`), LastModified: &modified},
			{Key: aws.String("2025/b.png"), Size: aws.Int64(20), ETag: aws.String(`"bbb"`), StorageClass: types.ObjectStorageClassGlacier},
		},
	}, nil)

	c := newTestClient(t, api, storage.Options{})
	result, err := c.GetFiles(context.Background(), storage.ContainerNamed("photos"), storage.ListOptions{Prefix: "2025/"})
	require.NoError(t, err)

	require.Len(t, result.Files, 2)
	assert.Equal(t, "2025/a.png", result.Files[0].Name)
	assert.Equal(t, int64(10), result.Files[0].Size)
	assert.Equal(t, "aaa", result.Files[0].ETag)
	assert.Equal(t, modified, result.Files[0].LastModified)
	assert.Equal(t, "2025/b.png", result.Files[1].Name)
	assert.Equal(t, "GLACIER", result.Files[1].StorageClass)

	// One container model shared by every file in the page.
	require.NotNil(t, result.Files[0].Container)
	assert.Equal(t, "photos", result.Files[0].Container.Name)
	assert.Same(t, result.Files[0].Container, result.Files[1].Container)

	assert.True(t, result.Page.IsTruncated)
	assert.Equal(t, "2025/b.png", result.Page.NextMarker)
	api.AssertExpectations(t)
}

func TestGetFiles_KeepsContainerModel(t *testing.T) {
	api := &mockAPI{}
	api.On("ListObjects", mock.Anything, mock.Anything).Return(&s3.ListObjectsOutput{
		Contents: []types.Object{{Key: aws.String("a")}, {Key: aws.String("b")}},
	}, nil)

	container := storage.NewContainer("photos")
	c := newTestClient(t, api, storage.Options{})
	result, err := c.GetFiles(context.Background(), container.Ref(), storage.ListOptions{})
	require.NoError(t, err)

	for _, f := range result.Files {
		assert.Same(t, container, f.Container)
	}
	assert.False(t, result.Page.IsTruncated)
}

func TestGetFiles_BucketNotFound(t *testing.T) {
	api := &mockAPI{}
	api.On("ListObjects", mock.Anything, mock.Anything).Return(nil, &types.NoSuchBucket{})

	c := newTestClient(t, api, storage.Options{})
	_, err := c.GetFiles(context.Background(), storage.ContainerNamed("missing"), storage.ListOptions{})

	assert.True(t, storage.IsBucketNotFound(err))
	var nsb *types.NoSuchBucket
	assert.ErrorAs(t, err, &nsb)
}

func TestGetFile(t *testing.T) {
	modified := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	api := &mockAPI{}
	api.On("HeadObject", mock.Anything, &s3.HeadObjectInput{
		Bucket: aws.String("docs"),
		Key:    aws.String("report.pdf"),
	}).Return(&s3.HeadObjectOutput{
		ContentLength: aws.Int64(2048),
		ContentType:   aws.String("application/pdf"),
		ETag:          aws.String(`"etag123"`),
		LastModified:  &modified,
		VersionId:     aws.String("v1"),
		Metadata:      map[string]string{"owner": "ops"},
	}, nil)

	container := storage.NewContainer("docs")
	c := newTestClient(t, api, storage.Options{})
	f, err := c.GetFile(context.Background(), container.Ref(), "report.pdf")
	require.NoError(t, err)

	assert.Equal(t, "report.pdf", f.Name)
	assert.Same(t, container, f.Container)
	assert.Equal(t, int64(2048), f.Size)
	assert.Equal(t, "application/pdf", f.ContentType)
	assert.Equal(t, "etag123", f.ETag)
	assert.Equal(t, modified, f.LastModified)
	assert.Equal(t, "v1", f.VersionID)
	assert.Equal(t, "ops", f.Metadata["owner"])
}

func TestGetFile_NotFound(t *testing.T) {
	api := &mockAPI{}
	api.On("HeadObject", mock.Anything, mock.Anything).Return(nil, &types.NotFound{})

	c := newTestClient(t, api, storage.Options{})
	f, err := c.GetFile(context.Background(), storage.ContainerNamed("docs"), "missing.pdf")

	assert.Nil(t, f)
	assert.True(t, storage.IsNotFound(err))
	var nf *types.NotFound
	assert.ErrorAs(t, err, &nf)
}

func TestDownload(t *testing.T) {
	api := &mockAPI{}
	api.On("GetObject", mock.Anything, &s3.GetObjectInput{
		Bucket: aws.String("docs"),
		Key:    aws.String("hello.txt"),
	}).Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte("hello")))}, nil)

	c := newTestClient(t, api, storage.Options{})
	body, err := c.Download(context.Background(), storage.DownloadOptions{
		Container: storage.ContainerNamed("docs"),
		Remote:    storage.FileNamed("hello.txt"),
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestDownload_Error(t *testing.T) {
	api := &mockAPI{}
	api.On("GetObject", mock.Anything, mock.Anything).Return(nil, &types.NoSuchKey{})

	c := newTestClient(t, api, storage.Options{})
	body, err := c.Download(context.Background(), storage.DownloadOptions{
		Container: storage.ContainerNamed("docs"),
		Remote:    storage.FileNamed("gone.txt"),
	})

	assert.Nil(t, body)
	assert.True(t, storage.IsNotFound(err))
}

func TestUpload_Success(t *testing.T) {
	var received []byte
	api := &mockAPI{}
	api.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "docs" &&
			aws.ToString(in.Key) == "notes.txt" &&
			aws.ToString(in.ContentType) == "text/plain" &&
			in.ACL == types.ObjectCannedACLPublicRead
	})).Run(func(args mock.Arguments) {
		in := args.Get(1).(*s3.PutObjectInput)
		received, _ = io.ReadAll(in.Body)
	}).Return(&s3.PutObjectOutput{ETag: aws.String(`"abc"`)}, nil).Once()

	container := storage.NewContainer("docs")
	c := newTestClient(t, api, storage.Options{})
	up := c.Upload(context.Background(), storage.UploadOptions{
		Container:   container.Ref(),
		Remote:      storage.FileNamed("notes.txt"),
		ContentType: "text/plain",
		ACL:         "public-read",
	})

	// Nothing completes before data arrives.
	select {
	case <-up.Done():
		t.Fatal("upload finished before any data was written")
	default:
	}

	_, err := up.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = up.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, up.Close())

	f, err := up.Wait()
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(received))
	assert.Equal(t, "notes.txt", f.Name)
	assert.Equal(t, "abc", f.ETag)
	assert.Equal(t, "text/plain", f.ContentType)
	assert.Same(t, container, f.Container)

	// The outcome is stable.
	f2, err2 := up.Wait()
	assert.Same(t, f, f2)
	assert.NoError(t, err2)
	api.AssertExpectations(t)
}

func TestUpload_ProviderError(t *testing.T) {
	apiErr := &mockAPIError{code: "AccessDenied", message: "denied"}
	api := &mockAPI{}
	api.On("PutObject", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		_, _ = io.ReadAll(args.Get(1).(*s3.PutObjectInput).Body)
	}).Return(nil, apiErr).Once()

	c := newTestClient(t, api, storage.Options{})
	up := c.Upload(context.Background(), storage.UploadOptions{
		Container: storage.ContainerNamed("docs"),
		Remote:    storage.FileNamed("notes.txt"),
	})

	_, _ = up.Write([]byte("data"))
	_ = up.Close()

	f, err := up.Wait()
	assert.Nil(t, f)
	assert.True(t, storage.IsAccessDenied(err))
	var got *mockAPIError
	assert.ErrorAs(t, err, &got)
}

func TestUpload_InvalidPartSize(t *testing.T) {
	api := &mockAPI{}
	c := newTestClient(t, api, storage.Options{})

	up := c.Upload(context.Background(), storage.UploadOptions{
		Container: storage.ContainerNamed("docs"),
		Remote:    storage.FileNamed("notes.txt"),
		PartSize:  1024,
	})

	// The uploader rejects the part size before reading; writes fail.
	_, werr := up.Write([]byte("data"))
	assert.Error(t, werr)

	_, err := up.Wait()
	assert.Error(t, err)
	api.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything)
}

func TestUpload_MissingNames(t *testing.T) {
	c := newTestClient(t, &mockAPI{}, storage.Options{})

	tests := []struct {
		name  string
		opts  storage.UploadOptions
		field string
	}{
		{"no container", storage.UploadOptions{Remote: storage.FileNamed("a")}, "Container"},
		{"no remote", storage.UploadOptions{Container: storage.ContainerNamed("b")}, "Remote"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := c.Upload(context.Background(), tt.opts)
			_, err := up.Wait()

			var cfgErr *storage.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestPutObjectInput_OptionalFields(t *testing.T) {
	in := putObjectInput("b", "k", storage.UploadOptions{})
	assert.Nil(t, in.CacheControl)
	assert.Nil(t, in.ContentType)
	assert.Nil(t, in.ContentEncoding)
	assert.Empty(t, in.ACL)
	assert.Empty(t, in.ServerSideEncryption)

	in = putObjectInput("b", "k", storage.UploadOptions{
		CacheControl:         "max-age=60",
		ContentEncoding:      "gzip",
		ServerSideEncryption: "AES256",
	})
	assert.Equal(t, "max-age=60", aws.ToString(in.CacheControl))
	assert.Equal(t, "gzip", aws.ToString(in.ContentEncoding))
	assert.Equal(t, types.ServerSideEncryptionAes256, in.ServerSideEncryption)
}
