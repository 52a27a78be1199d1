package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/3leaps/cloudkit/pkg/storage"
)

// GetContainers lists every bucket visible to the credentials.
func (c *Client) GetContainers(ctx context.Context) ([]*storage.Container, error) {
	var containers []*storage.Container
	var token *string

	for {
		out, err := c.api.ListBuckets(ctx, &s3.ListBucketsInput{ContinuationToken: token})
		if err != nil {
			return nil, c.wrapError("GetContainers", "", "", err)
		}
		for _, b := range out.Buckets {
			containers = append(containers, storage.NewContainer(aws.ToString(b.Name)))
		}
		if aws.ToString(out.ContinuationToken) == "" {
			break
		}
		token = out.ContinuationToken
	}

	return containers, nil
}

// GetContainer lists the bucket and returns it populated from the listing:
// page size hint, truncation flag and the first page of files.
func (c *Client) GetContainer(ctx context.Context, container storage.ContainerRef) (*storage.Container, error) {
	bucket := container.Name()

	out, err := c.api.ListObjects(ctx, &s3.ListObjectsInput{Bucket: aws.String(bucket)})
	if err != nil {
		return nil, c.wrapError("GetContainer", bucket, "", err)
	}

	result := containerFromListing(out)
	if result.Name == "" {
		result.Name = bucket
	}
	return result, nil
}

// containerFromListing reshapes a ListObjects response into a Container.
func containerFromListing(out *s3.ListObjectsOutput) *storage.Container {
	listing := storage.Listing{
		Name:        aws.ToString(out.Name),
		IsTruncated: aws.ToBool(out.IsTruncated),
	}
	if out.MaxKeys != nil {
		n := int(*out.MaxKeys)
		listing.MaxKeys = &n
	}
	for _, obj := range out.Contents {
		listing.Contents = append(listing.Contents, fileFromObject(nil, obj))
	}
	return storage.NewContainerFromListing(listing)
}

// CreateContainer creates a bucket in the client's region.
func (c *Client) CreateContainer(ctx context.Context, container storage.ContainerRef) (*storage.Container, error) {
	bucket := container.Name()

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit location constraint.
	if c.region != "" && c.region != DefaultAWSRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.region),
		}
	}

	if _, err := c.api.CreateBucket(ctx, input); err != nil {
		return nil, c.wrapError("CreateContainer", bucket, "", err)
	}

	return container.Model(), nil
}

// DestroyContainer deletes every object in the bucket, one listing page at a
// time, and then the bucket itself.
func (c *Client) DestroyContainer(ctx context.Context, container storage.ContainerRef) error {
	bucket := container.Name()

	var marker string
	for {
		page, err := c.GetFiles(ctx, container, storage.ListOptions{Marker: marker})
		if err != nil {
			return err
		}
		if err := c.deleteBatch(ctx, bucket, page.Files); err != nil {
			return err
		}
		if !page.Page.IsTruncated || len(page.Files) == 0 {
			break
		}
		marker = page.Page.NextMarker
		if marker == "" {
			marker = page.Files[len(page.Files)-1].Name
		}
	}

	if _, err := c.api.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return c.wrapError("DestroyContainer", bucket, "", err)
	}

	c.log.Debug("Destroyed container", zap.String("container", bucket))
	return nil
}

// deleteBatch removes files with DeleteObjects in chunks of MaxDeleteBatch.
func (c *Client) deleteBatch(ctx context.Context, bucket string, files []*storage.File) error {
	for start := 0; start < len(files); start += MaxDeleteBatch {
		end := min(start+MaxDeleteBatch, len(files))

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, f := range files[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(f.Name)})
		}

		out, err := c.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return c.wrapError("DestroyContainer", bucket, "", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return c.wrapError("DestroyContainer", bucket, aws.ToString(first.Key),
				fmt.Errorf("%s: %s (%d of %d keys failed)", aws.ToString(first.Code), aws.ToString(first.Message), len(out.Errors), len(ids)))
		}
	}
	return nil
}
