// Package cmd implements the deskwise command line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/deskwise/deskwise/internal/app"
	"github.com/deskwise/deskwise/internal/config"
	"github.com/deskwise/deskwise/internal/log"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "deskwise",
	Short: "Deskwise - helpdesk answers from your approved policy documents",
	Long: `Deskwise indexes approved company policy documents and answers
employee questions from them, with every answer attributed to its
source documents.

Upload documents with "deskwise ingest", then ask questions with
"deskwise ask".`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// withApp loads configuration, initializes the application and runs fn,
// closing the app afterwards. Shared by every command that needs the full
// stack.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing application: %v\n", err)
		}
	}()

	return fn(ctx, a)
}
