package minio

import (
	"errors"

	miniogo "github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"github.com/3leaps/cloudkit/pkg/storage"
)

// wrapError attaches operation context to a minio-go error, keeping the
// vendor error reachable through errors.As.
func (c *Client) wrapError(op, bucket, key string, err error) error {
	var cfgErr *storage.ConfigError
	if errors.As(err, &cfgErr) {
		return err
	}

	resp := miniogo.ToErrorResponse(err)
	wrapped := &storage.Error{
		Op:        op,
		Provider:  storage.ProviderMinio,
		Container: bucket,
		File:      key,
		Status:    resp.StatusCode,
		Kind:      classify(resp),
		Err:       err,
	}

	if c != nil && c.log != nil {
		c.log.Debug("MinIO request failed",
			zap.String("op", op),
			zap.String("container", bucket),
			zap.String("file", key),
			zap.String("code", resp.Code),
			zap.Int("status", resp.StatusCode),
			zap.Error(err))
	}

	return wrapped
}

// classify maps a minio-go error response to a storage sentinel, or nil.
func classify(resp miniogo.ErrorResponse) error {
	if kind := storage.ClassifyCode(resp.Code); kind != nil {
		return kind
	}
	return storage.ClassifyStatus(resp.StatusCode)
}
