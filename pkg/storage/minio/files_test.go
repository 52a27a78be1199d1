package minio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/cloudkit/pkg/storage"
)

func TestCollectPage(t *testing.T) {
	tests := []struct {
		name      string
		keys      []string
		limit     int
		wantLen   int
		truncated bool
	}{
		{"empty", nil, 10, 0, false},
		{"under limit", []string{"a", "b"}, 10, 2, false},
		{"exactly limit", []string{"a", "b"}, 2, 2, false},
		{"over limit", []string{"a", "b", "c"}, 2, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			infos, truncated, err := collectPage(objectChan(objects(tt.keys...)), tt.limit)
			require.NoError(t, err)
			assert.Len(t, infos, tt.wantLen)
			assert.Equal(t, tt.truncated, truncated)
		})
	}
}

func TestCollectPage_Error(t *testing.T) {
	listErr := miniogo.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound}
	ch := objectChan([]miniogo.ObjectInfo{{Key: "a"}, {Err: listErr}})

	_, _, err := collectPage(ch, 10)
	assert.Equal(t, listErr, err)
}

func TestGetFiles(t *testing.T) {
	api := &mockAPI{}
	api.On("ListObjects", mock.Anything, "photos", miniogo.ListObjectsOptions{
		Prefix:     "2025/",
		StartAfter: "2025/0",
		MaxKeys:    2,
		Recursive:  true,
		UseV1:      true,
	}).Return(objects("2025/a", "2025/b", "2025/c"))

	c := newTestClient(t, api, storage.Options{})
	result, err := c.GetFiles(context.Background(), storage.ContainerNamed("photos"), storage.ListOptions{
		Prefix:  "2025/",
		Marker:  "2025/0",
		MaxKeys: 2,
	})
	require.NoError(t, err)

	require.Len(t, result.Files, 2)
	assert.Equal(t, "2025/a", result.Files[0].Name)
	assert.Equal(t, "2025/b", result.Files[1].Name)
	assert.Same(t, result.Files[0].Container, result.Files[1].Container)
	assert.Equal(t, "photos", result.Files[0].ContainerName())

	assert.True(t, result.Page.IsTruncated)
	assert.Equal(t, "2025/0", result.Page.Marker)
	assert.Equal(t, "2025/b", result.Page.NextMarker)
	api.AssertExpectations(t)
}

func TestGetFiles_DefaultPageSize(t *testing.T) {
	api := &mockAPI{}
	api.On("ListObjects", mock.Anything, "photos", mock.MatchedBy(func(o miniogo.ListObjectsOptions) bool {
		return o.MaxKeys == defaultPageSize && o.Prefix == "" && o.StartAfter == ""
	})).Return(objects("a"))

	c := newTestClient(t, api, storage.Options{})
	result, err := c.GetFiles(context.Background(), storage.ContainerNamed("photos"), storage.ListOptions{})
	require.NoError(t, err)

	assert.Len(t, result.Files, 1)
	assert.False(t, result.Page.IsTruncated)
	assert.Empty(t, result.Page.NextMarker)
}

func TestGetFiles_OversizedPageIsCapped(t *testing.T) {
	api := &mockAPI{}
	api.On("ListObjects", mock.Anything, "photos", mock.MatchedBy(func(o miniogo.ListObjectsOptions) bool {
		return o.MaxKeys == storage.MaxPageSize
	})).Return(objects("a"))

	c := newTestClient(t, api, storage.Options{})
	_, err := c.GetFiles(context.Background(), storage.ContainerNamed("photos"), storage.ListOptions{MaxKeys: 50000})
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestGetFiles_BucketNotFound(t *testing.T) {
	api := &mockAPI{}
	api.On("ListObjects", mock.Anything, "missing", mock.Anything).Return([]miniogo.ObjectInfo{
		{Err: miniogo.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound}},
	})

	c := newTestClient(t, api, storage.Options{})
	_, err := c.GetFiles(context.Background(), storage.ContainerNamed("missing"), storage.ListOptions{})

	assert.True(t, storage.IsBucketNotFound(err))
	var resp miniogo.ErrorResponse
	require.ErrorAs(t, err, &resp)
	assert.Equal(t, "NoSuchBucket", resp.Code)
}

func TestRemoveFile(t *testing.T) {
	tests := []struct {
		name   string
		result miniogo.RemoveObjectResult
		want   bool
	}{
		{"delete marker", miniogo.RemoveObjectResult{DeleteMarker: true}, true},
		{"plain delete", miniogo.RemoveObjectResult{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockAPI{}
			api.On("RemoveObjectsWithResult", mock.Anything, "photos", mock.Anything, mock.Anything).
				Return(map[string]miniogo.RemoveObjectResult{"cat.png": tt.result})

			c := newTestClient(t, api, storage.Options{})
			got, err := c.RemoveFile(context.Background(), storage.ContainerNamed("photos"), storage.FileNamed("cat.png"))

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemoveFile_Error(t *testing.T) {
	api := &mockAPI{}
	api.On("RemoveObjectsWithResult", mock.Anything, "photos", mock.Anything, mock.Anything).
		Return(map[string]miniogo.RemoveObjectResult{
			"cat.png": {Err: miniogo.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}},
		})

	c := newTestClient(t, api, storage.Options{})
	ok, err := c.RemoveFile(context.Background(), storage.ContainerNamed("photos"), storage.FileNamed("cat.png"))

	assert.False(t, ok)
	assert.True(t, storage.IsAccessDenied(err))
}

func TestGetFile(t *testing.T) {
	modified := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	api := &mockAPI{}
	api.On("StatObject", mock.Anything, "docs", "a.txt", mock.Anything).Return(miniogo.ObjectInfo{
		Key:          "a.txt",
		Size:         5,
		ETag:         "abc",
		LastModified: modified,
		ContentType:  "text/plain",
		Metadata:     http.Header{"Cache-Control": []string{"no-cache"}},
		UserMetadata: miniogo.StringMap{"owner": "ops"},
	}, nil)

	container := storage.NewContainer("docs")
	c := newTestClient(t, api, storage.Options{})
	f, err := c.GetFile(context.Background(), container.Ref(), "a.txt")
	require.NoError(t, err)

	assert.Same(t, container, f.Container)
	assert.Equal(t, int64(5), f.Size)
	assert.Equal(t, "text/plain", f.ContentType)
	assert.Equal(t, "no-cache", f.CacheControl)
	assert.Equal(t, modified, f.LastModified)
	assert.Equal(t, "ops", f.Metadata["owner"])
}

func TestGetFile_NotFound(t *testing.T) {
	api := &mockAPI{}
	api.On("StatObject", mock.Anything, "docs", "gone", mock.Anything).
		Return(miniogo.ObjectInfo{}, miniogo.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound})

	c := newTestClient(t, api, storage.Options{})
	_, err := c.GetFile(context.Background(), storage.ContainerNamed("docs"), "gone")
	assert.True(t, storage.IsNotFound(err))
}

func TestDownload(t *testing.T) {
	api := &mockAPI{}
	api.On("GetObject", mock.Anything, "docs", "a.txt", mock.Anything).
		Return(io.NopCloser(bytes.NewReader([]byte("hello"))), nil)

	c := newTestClient(t, api, storage.Options{})
	body, err := c.Download(context.Background(), storage.DownloadOptions{
		Container: storage.ContainerNamed("docs"),
		Remote:    storage.FileNamed("a.txt"),
	})
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestUpload(t *testing.T) {
	var received []byte
	api := &mockAPI{}
	api.On("PutObject", mock.Anything, "docs", "b.txt", mock.Anything, int64(-1), mock.MatchedBy(func(o miniogo.PutObjectOptions) bool {
		return o.ContentType == "text/plain" &&
			o.UserMetadata["x-amz-acl"] == "private" &&
			o.PartSize == uint64(storage.DefaultPartSize) &&
			o.NumThreads == uint(storage.DefaultQueueSize)
	})).Run(func(args mock.Arguments) {
		received, _ = io.ReadAll(args.Get(3).(io.Reader))
	}).Return(miniogo.UploadInfo{Key: "b.txt", ETag: "etag", Size: 5}, nil).Once()

	c := newTestClient(t, api, storage.Options{})
	up := c.Upload(context.Background(), storage.UploadOptions{
		Container:   storage.ContainerNamed("docs"),
		Remote:      storage.FileNamed("b.txt"),
		ContentType: "text/plain",
		ACL:         "private",
	})

	_, err := up.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, up.Close())

	f, err := up.Wait()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(received))
	assert.Equal(t, "b.txt", f.Name)
	assert.Equal(t, int64(5), f.Size)
	assert.Equal(t, "docs", f.ContainerName())
	api.AssertExpectations(t)
}

func TestPutObjectOptions_Encryption(t *testing.T) {
	put, err := putObjectOptions(storage.UploadOptions{ServerSideEncryption: "AES256"})
	require.NoError(t, err)
	assert.NotNil(t, put.ServerSideEncryption)

	_, err = putObjectOptions(storage.UploadOptions{ServerSideEncryption: "aws:kms"})
	var cfgErr *storage.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "ServerSideEncryption", cfgErr.Field)
}

func TestSignedURL(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		c := newTestClient(t, &mockAPI{}, storage.Options{})
		_, err := c.SignedURL(context.Background(), storage.ContainerNamed("b"), storage.FileNamed("k"))
		assert.ErrorIs(t, err, storage.ErrSignedURLDisabled)
	})

	t.Run("enabled", func(t *testing.T) {
		signed, _ := url.Parse("http://localhost:9000/b/k?X-Amz-Expires=600")
		api := &mockAPI{}
		api.On("PresignedGetObject", mock.Anything, "b", "k", 600*time.Second, url.Values(nil)).Return(signed, nil)

		c := newTestClient(t, api, storage.Options{SignedURL: storage.SignedURLOptions{Enabled: true}})
		got, err := c.SignedURL(context.Background(), storage.ContainerNamed("b"), storage.FileNamed("k"))
		require.NoError(t, err)
		assert.Equal(t, signed.String(), got)
	})
}
