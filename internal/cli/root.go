// Package cli provides the command-line interface for assistchat.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"assistchat/internal/config"
	"assistchat/internal/observability"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	configPath string
	logLevel   string

	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
)

var rootCmd = &cobra.Command{
	Use:   "assistchat",
	Short: "Browser chat front-end for a hosted document assistant",
	Long: `assistchat forwards chat messages to a remote assistant (OpenAI or Azure
OpenAI Assistants API) with retrieval over uploaded documents, and shows the
replies with their document citations.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			cfg.BasicConfig.LogLevel = logLevel
		}
		logger, closeLog = observability.SetupLogger(cfg.BasicConfig.LogFile, observability.ParseLevel(cfg.BasicConfig.LogLevel))
		slog.SetDefault(logger)
		if err := observability.InitTracing(cfg.Tracing.Exporter, cfg.Tracing.ServiceName); err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := observability.ShutdownTracing(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to flush traces: %v\n", err)
		}
		if closeLog != nil {
			_ = closeLog()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("ASSISTCHAT_CONFIG"), "config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(chatCmd)
}
