package minio

import (
	"context"

	miniogo "github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"github.com/3leaps/cloudkit/pkg/storage"
)

// GetContainers lists every bucket visible to the credentials.
func (c *Client) GetContainers(ctx context.Context) ([]*storage.Container, error) {
	buckets, err := c.api.ListBuckets(ctx)
	if err != nil {
		return nil, c.wrapError("GetContainers", "", "", err)
	}

	containers := make([]*storage.Container, 0, len(buckets))
	for _, b := range buckets {
		containers = append(containers, storage.NewContainer(b.Name))
	}
	return containers, nil
}

// GetContainer lists the first page of the bucket and returns it as a
// populated container.
func (c *Client) GetContainer(ctx context.Context, container storage.ContainerRef) (*storage.Container, error) {
	bucket := container.Name()

	infos, truncated, err := c.listPage(ctx, bucket, storage.ListOptions{})
	if err != nil {
		return nil, c.wrapError("GetContainer", bucket, "", err)
	}

	maxKeys := defaultPageSize
	listing := storage.Listing{Name: bucket, MaxKeys: &maxKeys, IsTruncated: truncated}
	for _, info := range infos {
		listing.Contents = append(listing.Contents, fileFromInfo(nil, info))
	}
	return storage.NewContainerFromListing(listing), nil
}

// CreateContainer creates a bucket in the client's region.
func (c *Client) CreateContainer(ctx context.Context, container storage.ContainerRef) (*storage.Container, error) {
	bucket := container.Name()

	if err := c.api.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{Region: c.region}); err != nil {
		return nil, c.wrapError("CreateContainer", bucket, "", err)
	}
	return container.Model(), nil
}

// DestroyContainer streams the full listing into a bulk delete and then
// removes the bucket.
func (c *Client) DestroyContainer(ctx context.Context, container storage.ContainerRef) error {
	bucket := container.Name()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var listErr error
	objects := make(chan miniogo.ObjectInfo)
	go func() {
		defer close(objects)
		for info := range c.api.ListObjects(ctx, bucket, miniogo.ListObjectsOptions{Recursive: true}) {
			if info.Err != nil {
				listErr = info.Err
				return
			}
			select {
			case objects <- info:
			case <-ctx.Done():
				return
			}
		}
	}()

	var removeErr error
	var removeKey string
	for res := range c.api.RemoveObjectsWithResult(ctx, bucket, objects, miniogo.RemoveObjectsOptions{}) {
		if res.Err != nil && removeErr == nil {
			removeErr, removeKey = res.Err, res.ObjectName
			cancel()
		}
	}
	// The results channel closes only after objects is drained, so listErr is settled.
	if listErr != nil {
		return c.wrapError("DestroyContainer", bucket, "", listErr)
	}
	if removeErr != nil {
		return c.wrapError("DestroyContainer", bucket, removeKey, removeErr)
	}

	if err := c.api.RemoveBucket(ctx, bucket); err != nil {
		return c.wrapError("DestroyContainer", bucket, "", err)
	}

	c.log.Debug("Destroyed container", zap.String("container", bucket))
	return nil
}
