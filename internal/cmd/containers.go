package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/cloudkit/internal/errors"
	"github.com/3leaps/cloudkit/internal/observability"
	"github.com/3leaps/cloudkit/pkg/output"
	"github.com/3leaps/cloudkit/pkg/storage"
)

var containersCmd = &cobra.Command{
	Use:   "containers [provider]",
	Short: "List containers visible to the credentials",
	Long: `List every container (bucket) visible to the configured credentials.

Examples:
  cloudkit containers
  cloudkit containers minio://
  cloudkit containers s3 --region eu-west-1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runContainers,
}

var mbCmd = &cobra.Command{
	Use:   "mb <uri>",
	Short: "Create a container",
	Long: `Create a container. Outside us-east-1 the configured region is sent as
the location constraint.

Examples:
  cloudkit mb s3://new-reports
  cloudkit mb minio://scratch`,
	Args: cobra.ExactArgs(1),
	RunE: runMakeContainer,
}

var rbCmd = &cobra.Command{
	Use:   "rb <uri>",
	Short: "Remove a container",
	Long: `Remove a container. A container that still holds files is only removed
with --force, which deletes every file first.

Examples:
  cloudkit rb s3://old-reports
  cloudkit rb minio://scratch --force`,
	Args: cobra.ExactArgs(1),
	RunE: runRemoveContainer,
}

var rbForce bool

func init() {
	rootCmd.AddCommand(containersCmd, mbCmd, rbCmd)

	rbCmd.Flags().BoolVarP(&rbForce, "force", "f", false, "delete all files before removing the container")
}

func runContainers(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := defaultProvider(args)
	if err != nil {
		return exitError(apperrors.ExitInvalidArgument, "invalid provider", err)
	}

	client, err := openClient(ctx, p)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	w := newWriter(cmd, p)
	defer func() { _ = w.Close() }()

	containers, err := client.GetContainers(ctx)
	if err != nil {
		return reportError(cmd, w, err)
	}
	for _, c := range containers {
		if err := w.WriteContainer(ctx, output.NewContainerRecord(c)); err != nil {
			return err
		}
	}
	observability.CLILogger.Debug("listed containers", zap.Int("count", len(containers)))
	return nil
}

func runMakeContainer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	u, err := containerURI(args[0])
	if err != nil {
		return err
	}

	client, err := openClient(ctx, u.Provider)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	w := newWriter(cmd, u.Provider)
	defer func() { _ = w.Close() }()

	c, err := client.CreateContainer(ctx, u.ContainerRef())
	if err != nil {
		return reportError(cmd, w, err)
	}
	return w.WriteContainer(ctx, output.NewContainerRecord(c))
}

func runRemoveContainer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	u, err := containerURI(args[0])
	if err != nil {
		return err
	}

	client, err := openClient(ctx, u.Provider)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	w := newWriter(cmd, u.Provider)
	defer func() { _ = w.Close() }()

	if !rbForce {
		page, err := client.GetFiles(ctx, u.ContainerRef(), storage.ListOptions{MaxKeys: 1})
		if err != nil {
			return reportError(cmd, w, err)
		}
		if len(page.Files) > 0 {
			return exitError(apperrors.ExitInvalidArgument, "refusing to remove container",
				fmt.Errorf("%s is not empty (use --force)", u.Container))
		}
	}

	if err := client.DestroyContainer(ctx, u.ContainerRef()); err != nil {
		return reportError(cmd, w, err)
	}
	observability.CLILogger.Info("container removed", zap.String("container", u.Container))
	return w.WriteContainer(ctx, &output.ContainerRecord{Name: u.Container})
}

// containerURI parses a URI that must name only a container.
func containerURI(arg string) (*ObjectURI, error) {
	u, err := parseArgURI(arg)
	if err != nil {
		return nil, err
	}
	if u.Key != "" || u.IsPattern() {
		return nil, exitError(apperrors.ExitInvalidArgument, "invalid URI",
			fmt.Errorf("%w: %s names a file, expected a container", ErrInvalidURI, arg))
	}
	return u, nil
}
