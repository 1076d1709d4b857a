package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"maestro/agent"
	"maestro/store"
	"maestro/streamers"
	"maestro/streamers/cli"

	"maestro/config"
)

var (
	runConfigPath    string
	runPlannerModel  string
	runExecutorModel string
	runDebugFile     string
	runTurnLogFile   string
)

var runCmd = &cobra.Command{
	Use:   "run [query]",
	Short: "Run a query through the coordinator",
	Long: `Run submits a query to the coordinator, which plans tasks, selects tool
clusters, dispatches subtasks to the executor, and synthesizes a final answer.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		query := args[0]

		cfg, err := config.LoadAndValidate(runConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		for _, w := range cfg.PluginWarnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
		}

		plannerModel := runPlannerModel
		if plannerModel == "" {
			if len(cfg.Models) == 0 {
				fmt.Fprintln(os.Stderr, "Error: no models configured")
				os.Exit(1)
			}
			plannerModel = cfg.Models[0].Name
		}

		registry, err := cfg.BuildRegistry()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error building tool registry: %v\n", err)
			os.Exit(1)
		}

		stores, err := store.NewBundle(cfg.Storage)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer stores.Close()

		handler := streamers.NewStoringRunHandler(cli.NewRunHandler(), stores.Events)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		coordinator, err := agent.NewCoordinator(ctx, agent.CoordinatorOptions{
			Config:        cfg,
			PlannerModel:  plannerModel,
			ExecutorModel: runExecutorModel,
			Registry:      registry,
			Handler:       handler,
			Bundle:        stores,
			DebugFile:     runDebugFile,
			TurnLogFile:   runTurnLogFile,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer coordinator.Close()

		report, err := coordinator.Run(ctx, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if report.Status != agent.StatusDone {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", ".", "Path to config file or directory")
	runCmd.Flags().StringVarP(&runPlannerModel, "model", "m", "", "Model to use for planning and judging (default: first configured model)")
	runCmd.Flags().StringVar(&runExecutorModel, "executor-model", "", "Model to use for execution (default: same as --model)")
	runCmd.Flags().StringVar(&runDebugFile, "debug", "", "Write raw model traffic to a debug log file")
	runCmd.Flags().StringVar(&runTurnLogFile, "turn-log", "", "Write per-turn session snapshots to a JSONL file")
}
