package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/cloudkit/internal/errors"
	"github.com/3leaps/cloudkit/internal/observability"
	"github.com/3leaps/cloudkit/pkg/output"
	"github.com/3leaps/cloudkit/pkg/storage"

	// Providers register themselves with the storage registry.
	_ "github.com/3leaps/cloudkit/pkg/storage/minio"
	_ "github.com/3leaps/cloudkit/pkg/storage/s3"
)

// newStorageClient constructs clients; tests replace it.
var newStorageClient = func(ctx context.Context, opts storage.Options) (storage.Client, error) {
	return storage.New(ctx, opts)
}

// storageOptions returns the configured storage options for provider p.
func storageOptions(p storage.ProviderType) storage.Options {
	var opts storage.Options
	if appConfig != nil {
		opts = appConfig.Storage
	}
	opts.Provider = string(p)
	if opts.UserAgent == "" {
		opts.UserAgent = "cloudkit/" + versionInfo.Version
	}
	opts.Logger = observability.CLILogger.Named("storage")
	return opts
}

// openClient creates a client for provider p.
func openClient(ctx context.Context, p storage.ProviderType) (storage.Client, error) {
	return openClientWith(ctx, storageOptions(p))
}

func openClientWith(ctx context.Context, opts storage.Options) (storage.Client, error) {
	c, err := newStorageClient(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", opts.Provider, err)
	}
	observability.CLILogger.Debug("storage client created", zap.String("provider", opts.Provider))
	return c, nil
}

// defaultProvider picks the provider for commands without a URI.
func defaultProvider(args []string) (storage.ProviderType, error) {
	if len(args) > 0 {
		return ParseProvider(args[0])
	}
	if appConfig != nil && appConfig.Storage.Provider != "" {
		return ParseProvider(appConfig.Storage.Provider)
	}
	return storage.ProviderS3, nil
}

// parseArgURI parses a URI argument, mapping failures to invalid-argument.
func parseArgURI(arg string) (*ObjectURI, error) {
	u, err := ParseURI(arg)
	if err != nil {
		return nil, exitError(apperrors.ExitInvalidArgument, "invalid URI", err)
	}
	return u, nil
}

// newWriter returns a JSONL writer on the command's stdout with a fresh run ID.
func newWriter(cmd *cobra.Command, p storage.ProviderType) *output.JSONLWriter {
	return newWriterTo(cmd.OutOrStdout(), p)
}

func newWriterTo(w io.Writer, p storage.ProviderType) *output.JSONLWriter {
	return output.NewJSONLWriter(w, uuid.NewString(), string(p))
}

// reportError writes an error record and returns err for the exit status.
func reportError(cmd *cobra.Command, w output.Writer, err error) error {
	_ = w.WriteError(cmd.Context(), output.NewErrorRecord(err))
	return err
}

// stdoutIsData reports whether path selects stdout for file data.
func stdoutIsData(path string) bool {
	return path == "-"
}

// openLocal opens a local source; "-" reads stdin.
func openLocal(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}
