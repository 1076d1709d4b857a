package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"maestro/config"
	"maestro/store"
	"maestro/wsbridge"
)

var (
	serveConfigPath string
	serveAddr       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the coordinator over WebSocket",
	Long: `Start a long-running gateway that accepts WebSocket connections.
Clients submit queries, receive streamed run events, and query run history.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadAndValidate(serveConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		for _, w := range cfg.PluginWarnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
		}

		// History queries and streamed runs share the same store
		stores, err := store.NewBundle(cfg.Storage)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer stores.Close()

		server := wsbridge.NewServer(cfg, stores, Version)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Gateway listening on %s (ws endpoint: /ws)\n", serveAddr)
		if err := server.Serve(ctx, serveAddr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("\nShutting down...")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", ".", "Path to config file or directory")
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "127.0.0.1:7700", "Address to listen on")
}
