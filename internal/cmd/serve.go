package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/cloudkit/internal/errors"
	"github.com/3leaps/cloudkit/internal/observability"
	"github.com/3leaps/cloudkit/internal/server"
	"github.com/3leaps/cloudkit/internal/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP storage gateway",
	Long: `Serve the storage operations over HTTP for the configured provider.

Routes:
  GET    /health, /health/live, /health/ready, /health/startup, /version
  GET    /v1/containers
  GET    /v1/containers/{container}               container with first page
  PUT    /v1/containers/{container}               create
  DELETE /v1/containers/{container}               destroy (with all files)
  GET    /v1/containers/{container}/files         list (prefix, marker, max_keys, match)
  GET    /v1/containers/{container}/files/{name}  download
  HEAD   /v1/containers/{container}/files/{name}  metadata headers
  PUT    /v1/containers/{container}/files/{name}  streaming upload
  DELETE /v1/containers/{container}/files/{name}  remove
  GET    /v1/containers/{container}/metadata/{name}
  GET    /v1/containers/{container}/signed-url/{name}

Examples:
  cloudkit serve --port 9000
  CLOUDKIT_PROVIDER=minio CLOUDKIT_ENDPOINT=localhost:9000 cloudkit serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default: server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default: server.port)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := appConfig
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}

	if err := observability.InitServerLogger("cloudkit", cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return exitError(apperrors.ExitInvalidArgument, "invalid logging configuration", err)
	}
	logger := observability.ServerLogger
	defer observability.Sync()

	p, err := defaultProvider(nil)
	if err != nil {
		return exitError(apperrors.ExitInvalidArgument, "invalid provider", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := storageOptions(p)
	opts.Logger = logger.Named("storage")
	client, err := openClientWith(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	handlers.InitHealthManager(versionInfo.Version)

	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithStorage(client),
		server.WithLogger(logger),
		server.WithCORS(cfg.Server.CORSOrigins),
		server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	)

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	logger.Info("starting gateway",
		zap.String("addr", srv.Addr()),
		zap.String("provider", string(p)),
		zap.String("version", versionInfo.Version))

	select {
	case err := <-errc:
		if err != nil {
			return exitError(apperrors.ExitUnavailable, "server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return exitError(apperrors.ExitFailure, "graceful shutdown failed", err)
	}
	return <-errc
}
