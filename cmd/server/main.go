// tutorlens - tutoring chat augmentation proxy
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ashureev/tutorlens/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tutorlens",
	Short: "Tutoring chat augmentation proxy",
	Long: `tutorlens forwards traffic to a tutoring site and augments chat requests
with guidance generated by an external language model.

Commands:
  serve  - Run the proxy and control API
  key    - Manage the stored API key
  health - Query the gRPC health service of a running proxy`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.AddCommand(serveCmd, keyCmd, healthCmd)
}

// setup loads configuration and installs the JSON logger.
func setup(_ *cobra.Command, _ []string) error {
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
