package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	// Version needs no configuration.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		if versionJSON {
			return json.NewEncoder(out).Encode(struct {
				VersionInfo
				GoVersion string `json:"go_version"`
			}{versionInfo, runtime.Version()})
		}
		_, err := fmt.Fprintf(out, "cloudkit %s (commit %s, built %s, %s)\n",
			versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate, runtime.Version())
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print as JSON")
}
