package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "opsdash",
	Short: "E-commerce operations data ingestion",
	Long:  `opsdash imports marketplace report spreadsheets into PostgreSQL and serves the dashboard API.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(
		serveCmd,
		migrateCmd,
		importCmd,
		refreshCmd,
		historyCmd,
		schemaCmd,
		directoryCmd,
		exportCmd,
	)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "Directory holding config.yaml and .env")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
