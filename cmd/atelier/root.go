package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/atelier-run/atelier/internal/config"
	"github.com/atelier-run/atelier/internal/logging"
)

// Version is the build version, overridable via -ldflags.
var Version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "atelier",
	Short: "Atelier coordinates workspace node graphs against a remote executor",
	Long: `Atelier keeps per-workspace node graphs, drives flow execution against
a remote executor over a resilient websocket channel, and persists the
whole registry as a portable document.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "atelier.yaml", "Path to the configuration file")
}

func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return cfg, logging.New(level), nil
}
