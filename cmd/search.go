package cmd

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/deskwise/deskwise/internal/app"
)

var searchK int

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Raw nearest-chunk lookup, for debugging the index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchK, "top", "k", 8, "number of chunks to return")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	return withApp(func(ctx context.Context, a *app.App) error {
		results, err := a.Service.Search(ctx, query, searchK)
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No chunks indexed.")
			return nil
		}

		for _, r := range results {
			fmt.Printf("%.3f  %-12s  %s\n      %s\n", r.Similarity, r.ChunkID, r.DocumentName, snippet(r.Text, 160))
		}
		return nil
	})
}

// snippet cuts text to at most limit bytes on a rune boundary.
func snippet(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
