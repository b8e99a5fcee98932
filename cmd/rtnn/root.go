package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hupe1980/rtnn"
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:           "rtnn",
	Short:         "rtnn - batched neighbor search over 3-D point sets",
	Long:          `rtnn sorts points into a spatial grid, partitions queries and runs range or KNN searches in batches.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger() (*rtnn.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", logLevel)
	}
	switch strings.ToLower(logFormat) {
	case "text":
		return rtnn.NewTextLogger(level), nil
	case "json":
		return rtnn.NewJSONLogger(level), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", logFormat)
	}
}
