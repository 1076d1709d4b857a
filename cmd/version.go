package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.Long = fmt.Sprintf(`Maestro %s

HCL-based CLI for coordinating LLM planners and executors over clustered tools.

Define models, tools, and plugins in HCL configuration files, then submit
queries and watch the coordinator plan, dispatch, and evaluate.

Get started:
  maestro verify <path>   Validate your configuration
  maestro run "<query>"   Run a query through the coordinator
  maestro serve           Expose the coordinator over WebSocket`, Version)
}
