// Package cmd implements the cloudkit command line.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/cloudkit/internal/config"
	apperrors "github.com/3leaps/cloudkit/internal/errors"
	"github.com/3leaps/cloudkit/internal/observability"
	"github.com/3leaps/cloudkit/internal/server/handlers"
)

// VersionInfo holds build metadata injected by main.
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
}

var versionInfo = VersionInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

// SetVersionInfo records build metadata for "version", the user agent and
// the gateway's /version endpoint.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo = VersionInfo{Version: version, Commit: commit, BuildDate: buildDate}
	handlers.SetVersionInfo(version, commit, buildDate)
}

var (
	cfgFile  string
	envFile  string
	verbose  bool
	provider string

	endpoint   string
	region     string
	protocol   string
	pathStyle  bool
	maxRetries int
)

// appConfig is loaded by the root command's pre-run hook.
var appConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "cloudkit",
	Short: "Uniform client for S3-compatible cloud storage",
	Long: `cloudkit manages containers and files on AWS S3 and MinIO through one
provider-neutral interface.

Files are addressed as <provider>://<container>/<name>, for example
s3://reports/2024/summary.csv or minio://scratch/tmp/. Results are written to
stdout as JSONL records; diagnostics go to stderr.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./cloudkit.yaml, then the user config dir)")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment (empty to skip)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&provider, "provider", "", "default provider when no URI scheme applies (s3, minio)")
	pf.StringVar(&endpoint, "endpoint", "", "custom storage endpoint")
	pf.StringVarP(&region, "region", "r", "", "storage region")
	pf.StringVar(&protocol, "protocol", "", `protocol prefix, "https://" or "http://"`)
	pf.BoolVar(&pathStyle, "path-style", false, "address containers by path instead of virtual host")
	pf.IntVar(&maxRetries, "max-retries", -1, "retries after the first attempt (-1 keeps the SDK default)")
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return apperrors.ExitOK
	}

	code := exitCode(err)
	observability.CLILogger.Error("command failed", zap.Error(err), zap.Int("exit_code", code))
	fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	return code
}

// loadConfig initializes logging and loads configuration, folding changed
// persistent flags in as runtime overrides.
func loadConfig(cmd *cobra.Command, _ []string) error {
	observability.InitCLILogger("cloudkit", verbose)

	config.SetConfigFile(cfgFile)
	config.SetEnvFile(envFile)

	storageOverrides := map[string]any{}
	flags := cmd.Flags()
	if flags.Changed("provider") {
		storageOverrides["provider"] = provider
	}
	if flags.Changed("endpoint") {
		storageOverrides["endpoint"] = endpoint
	}
	if flags.Changed("region") {
		storageOverrides["region"] = region
	}
	if flags.Changed("protocol") {
		storageOverrides["protocol"] = protocol
	}
	if flags.Changed("path-style") {
		storageOverrides["force_path_bucket"] = pathStyle
	}
	if flags.Changed("max-retries") && maxRetries >= 0 {
		storageOverrides["max_retries"] = maxRetries
	}

	cfg, err := config.Load(cmd.Context(), map[string]any{"storage": storageOverrides})
	if err != nil {
		return exitError(apperrors.ExitInvalidArgument, "failed to load configuration", err)
	}
	appConfig = cfg

	observability.CLILogger.Debug("configuration loaded",
		zap.String("config_file", config.ConfigFileUsed()),
		zap.String("provider", cfg.Storage.Provider),
		zap.String("endpoint", cfg.Storage.Endpoint),
		zap.String("region", cfg.Storage.Region))
	return nil
}

// ExitError carries an explicit exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// exitCode prefers an explicit ExitError code over classification.
func exitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return apperrors.ExitCode(err)
}
