package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deskwise/deskwise/internal/app"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		stats, err := a.Service.CollectionStats(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Chunks:      %d\n", stats.TotalChunks)
		fmt.Printf("Documents:   %d\n", stats.UniqueDocuments)
		if len(stats.Departments) > 0 {
			fmt.Printf("Departments: %s\n", strings.Join(stats.Departments, ", "))
		}
		return nil
	})
}
