package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "maestro",
	Short: "Maestro is a hierarchical agent coordinator",
	Long:  `Maestro coordinates LLM planners and executors over clustered tools to answer complex queries.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Welcome to Maestro! Use --help to see available commands.")
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
