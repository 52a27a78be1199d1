package minio

import (
	"context"
	"io"
	"net/url"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"

	"github.com/3leaps/cloudkit/pkg/storage"
)

// mockAPI is a testify mock of the minio-go API surface.
type mockAPI struct {
	mock.Mock
}

var _ API = (*mockAPI)(nil)

func (m *mockAPI) ListBuckets(ctx context.Context) ([]miniogo.BucketInfo, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]miniogo.BucketInfo)
	return out, args.Error(1)
}

func (m *mockAPI) MakeBucket(ctx context.Context, bucketName string, opts miniogo.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *mockAPI) RemoveBucket(ctx context.Context, bucketName string) error {
	return m.Called(ctx, bucketName).Error(0)
}

func (m *mockAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(miniogo.UploadInfo), args.Error(1)
}

func (m *mockAPI) GetObject(ctx context.Context, bucketName, objectName string, opts miniogo.GetObjectOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	out, _ := args.Get(0).(io.ReadCloser)
	return out, args.Error(1)
}

func (m *mockAPI) StatObject(ctx context.Context, bucketName, objectName string, opts miniogo.StatObjectOptions) (miniogo.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(miniogo.ObjectInfo), args.Error(1)
}

func (m *mockAPI) ListObjects(ctx context.Context, bucketName string, opts miniogo.ListObjectsOptions) <-chan miniogo.ObjectInfo {
	args := m.Called(ctx, bucketName, opts)
	return objectChan(args.Get(0).([]miniogo.ObjectInfo))
}

func (m *mockAPI) RemoveObjectsWithResult(ctx context.Context, bucketName string, objectsCh <-chan miniogo.ObjectInfo, opts miniogo.RemoveObjectsOptions) <-chan miniogo.RemoveObjectResult {
	args := m.Called(ctx, bucketName, objectsCh, opts)
	results := args.Get(0).(map[string]miniogo.RemoveObjectResult)

	out := make(chan miniogo.RemoveObjectResult)
	go func() {
		defer close(out)
		for obj := range objectsCh {
			res, ok := results[obj.Key]
			if !ok {
				res = miniogo.RemoveObjectResult{}
			}
			res.ObjectName = obj.Key
			out <- res
		}
	}()
	return out
}

func (m *mockAPI) PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucketName, objectName, expires, reqParams)
	out, _ := args.Get(0).(*url.URL)
	return out, args.Error(1)
}

func objectChan(infos []miniogo.ObjectInfo) <-chan miniogo.ObjectInfo {
	ch := make(chan miniogo.ObjectInfo, len(infos))
	for _, info := range infos {
		ch <- info
	}
	close(ch)
	return ch
}

func objects(keys ...string) []miniogo.ObjectInfo {
	infos := make([]miniogo.ObjectInfo, 0, len(keys))
	for _, k := range keys {
		infos = append(infos, miniogo.ObjectInfo{Key: k, Size: int64(len(k))})
	}
	return infos
}

func newTestClient(t interface{ Fatalf(string, ...any) }, api API, opts storage.Options) *Client {
	cfg, err := opts.Normalize()
	if err != nil {
		t.Fatalf("normalize options: %v", err)
	}
	return NewWithAPI(api, cfg)
}
