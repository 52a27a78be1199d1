// Package cloudtest provides helpers for cloud integration tests using moto.
//
// These helpers run storage clients against a local S3-compatible endpoint
// without real AWS credentials. Tests using this package should be tagged
// with //go:build cloudintegration and must import the provider packages
// they exercise so those register with the storage registry.
//
// Usage:
//
//	func TestMyS3Function(t *testing.T) {
//	    cloudtest.SkipIfUnavailable(t)
//	    client := cloudtest.ClientT(t, storage.ProviderS3)
//	    container := cloudtest.CreateContainer(t, ctx, client)
//	    cloudtest.PutFile(t, ctx, client, container, "key", []byte("content"))
//	    // ... test code ...
//	}
package cloudtest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/3leaps/cloudkit/pkg/storage"
)

const (
	// DefaultEndpoint is the default moto server endpoint.
	// Port 5555 avoids conflict with macOS AirTunes on 5000.
	DefaultEndpoint = "http://localhost:5555"

	// DefaultRegion is the default AWS region for tests.
	DefaultRegion = "us-east-1"

	// TestAccessKeyID is the access key used for moto (accepts any).
	TestAccessKeyID = "testing"

	// TestSecretAccessKey is the secret key used for moto (accepts any).
	TestSecretAccessKey = "testing"
)

var (
	// Endpoint is the moto server endpoint, configurable via MOTO_ENDPOINT env var.
	Endpoint = getEnvOrDefault("MOTO_ENDPOINT", DefaultEndpoint)

	// Region is the AWS region for tests, configurable via MOTO_REGION env var.
	Region = getEnvOrDefault("MOTO_REGION", DefaultRegion)
)

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Available checks if the moto server is reachable.
func Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, Endpoint+"/moto-api/", nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// SkipIfUnavailable skips the test if moto server is not available.
func SkipIfUnavailable(t *testing.T) {
	t.Helper()
	if !Available() {
		t.Skipf("moto server not available at %s (start with: make moto-start)", Endpoint)
	}
}

// Reset clears all moto state. Call this between tests for isolation.
func Reset(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, Endpoint+"/moto-api/reset", nil)
	if err != nil {
		return fmt.Errorf("create reset request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("reset request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reset returned status %d", resp.StatusCode)
	}

	return nil
}

// ResetT resets moto state, failing the test on error.
func ResetT(t *testing.T, ctx context.Context) {
	t.Helper()
	if err := Reset(ctx); err != nil {
		t.Fatalf("failed to reset moto: %v", err)
	}
}

// Options returns client options pointing at moto for the given provider.
func Options(provider storage.ProviderType) storage.Options {
	return storage.Options{
		Provider:        provider.String(),
		AccessKeyID:     TestAccessKeyID,
		AccessKey:       TestSecretAccessKey,
		Region:          Region,
		Endpoint:        Endpoint,
		ForcePathBucket: true,
		SignedURL:       storage.SignedURLOptions{Enabled: true},
	}
}

// ClientT builds a storage client for moto, failing the test on error.
func ClientT(t *testing.T, provider storage.ProviderType) storage.Client {
	t.Helper()

	c, err := storage.New(context.Background(), Options(provider))
	if err != nil {
		t.Fatalf("failed to create %s client: %v", provider, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// ContainerName derives a unique, valid bucket name from the test name.
func ContainerName(t *testing.T) string {
	name := strings.ToLower(t.Name())
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "_", "-")
	// Truncate if too long (S3 bucket names max 63 chars)
	if len(name) > 50 {
		name = name[:50]
	}
	return fmt.Sprintf("%s-%s", strings.Trim(name, "-"), uuid.NewString()[:8])
}

// CreateContainer creates a uniquely named container and registers cleanup.
func CreateContainer(t *testing.T, ctx context.Context, c storage.Client) *storage.Container {
	t.Helper()

	name := ContainerName(t)
	container, err := c.CreateContainer(ctx, storage.ContainerNamed(name))
	if err != nil {
		t.Fatalf("failed to create container %s: %v", name, err)
	}

	t.Cleanup(func() {
		if err := c.DestroyContainer(context.Background(), storage.ContainerNamed(name)); err != nil {
			t.Logf("warning: failed to destroy container %s: %v", name, err)
		}
	})

	return container
}

// PutFile uploads content through the client's managed upload.
func PutFile(t *testing.T, ctx context.Context, c storage.Client, container *storage.Container, name string, content []byte) *storage.File {
	t.Helper()

	up := c.Upload(ctx, storage.UploadOptions{
		Container: container.Ref(),
		Remote:    storage.FileNamed(name),
	})
	if _, err := io.Copy(up, bytes.NewReader(content)); err != nil {
		t.Fatalf("failed to write %s/%s: %v", container.Name, name, err)
	}
	if err := up.Close(); err != nil {
		t.Fatalf("failed to close upload %s/%s: %v", container.Name, name, err)
	}

	f, err := up.Wait()
	if err != nil {
		t.Fatalf("failed to upload %s/%s: %v", container.Name, name, err)
	}
	return f
}

// PutFiles uploads one small file per name.
func PutFiles(t *testing.T, ctx context.Context, c storage.Client, container *storage.Container, names []string) {
	t.Helper()

	for _, name := range names {
		PutFile(t, ctx, c, container, name, []byte("test content for "+name))
	}
}
