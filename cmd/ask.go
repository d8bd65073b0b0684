package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deskwise/deskwise/internal/answer"
	"github.com/deskwise/deskwise/internal/app"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against the indexed policy documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the raw answer object as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	return withApp(func(ctx context.Context, a *app.App) error {
		ans := a.Service.Answer(ctx, question)

		if askJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ans)
		}

		renderAnswer(os.Stdout, ans)
		return nil
	})
}

// renderAnswer prints an answer in a readable terminal layout.
func renderAnswer(w io.Writer, ans *answer.Answer) {
	fmt.Fprintln(w, ans.Summary)

	printList := func(heading string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s:\n", heading)
		for _, item := range items {
			fmt.Fprintf(w, "  - %s\n", item)
		}
	}

	printList("Requirements", ans.Details.Requirements)
	printList("Procedures", ans.Details.Procedures)
	printList("Exceptions", ans.Details.Exceptions)

	if ans.ActionRequired != "" {
		fmt.Fprintf(w, "\nAction required: %s\n", ans.ActionRequired)
	}
	if ans.SuggestTicket {
		fmt.Fprintln(w, "Tip: this looks like something to file a ticket for.")
	}
	if ans.ContactInfo != "" {
		fmt.Fprintf(w, "Contact: %s\n", ans.ContactInfo)
	}
	printList("Related policies", ans.RelatedPolicies)
	printList("Sources", ans.Sources)
}
