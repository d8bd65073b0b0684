package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deskwise/deskwise/internal/app"
	"github.com/deskwise/deskwise/internal/document"
)

var (
	listApproval   string
	listProcessing string
	listDepartment string
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage uploaded policy documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	RunE:  runDocsList,
}

var docsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one document record",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsShow,
}

var docsApproveCmd = &cobra.Command{
	Use:   "approve [id]",
	Short: "Approve a pending document and index it",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsApprove,
}

var docsRejectCmd = &cobra.Command{
	Use:   "reject [id]",
	Short: "Reject a pending document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsReject,
}

var docsReprocessCmd = &cobra.Command{
	Use:   "reprocess [id]",
	Short: "Re-index a completed or failed document from its stored file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsReprocess,
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a document and its indexed chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsDelete,
}

func init() {
	docsListCmd.Flags().StringVar(&listApproval, "approval", "", "filter by approval status (pending_approval, approved, rejected)")
	docsListCmd.Flags().StringVar(&listProcessing, "status", "", "filter by processing status (pending, processing, completed, failed)")
	docsListCmd.Flags().StringVar(&listDepartment, "department", "", "filter by department")

	docsCmd.AddCommand(docsListCmd, docsShowCmd, docsApproveCmd, docsRejectCmd, docsReprocessCmd, docsDeleteCmd)
	rootCmd.AddCommand(docsCmd)
}

func runDocsList(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		docs, err := a.Service.Documents(ctx, document.Filter{
			ApprovalStatus:   document.ApprovalStatus(listApproval),
			ProcessingStatus: document.ProcessingStatus(listProcessing),
			Department:       listDepartment,
		})
		if err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDEPARTMENT\tAPPROVAL\tSTATUS\tCHUNKS")
		for _, d := range docs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
				d.ID, d.OriginalName, d.Department, d.ApprovalStatus, d.ProcessingStatus, d.ChunkCount)
		}
		return w.Flush()
	})
}

func runDocsShow(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		d, err := a.Service.Document(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("ID:          %s\n", d.ID)
		fmt.Printf("Name:        %s\n", d.OriginalName)
		fmt.Printf("File:        %s (%d bytes, %s)\n", d.FilePath, d.FileSize, d.ContentType)
		fmt.Printf("Department:  %s\n", d.Department)
		fmt.Printf("Tags:        %v\n", d.Tags)
		fmt.Printf("Uploaded:    %s\n", d.UploadedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Approval:    %s\n", d.ApprovalStatus)
		fmt.Printf("Status:      %s\n", d.ProcessingStatus)
		fmt.Printf("Chunks:      %d\n", d.ChunkCount)
		if d.LastProcessedAt != nil {
			fmt.Printf("Processed:   %s\n", d.LastProcessedAt.Format("2006-01-02 15:04:05"))
		}
		if d.FailureReason != "" {
			fmt.Printf("Failure:     %s\n", d.FailureReason)
		}
		return nil
	})
}

func runDocsApprove(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.Documents.Approve(ctx, args[0]); err != nil {
			return err
		}
		// Synchronous here: the CLI exits after the command, so there is no
		// process left to carry a background run.
		if err := a.Service.ProcessDocument(ctx, args[0]); err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
		d, err := a.Service.Document(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Approved and indexed %q: %d chunks\n", d.OriginalName, d.ChunkCount)
		return nil
	})
}

func runDocsReject(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.Service.Reject(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("Rejected", args[0])
		return nil
	})
}

func runDocsReprocess(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.Service.Reprocess(ctx, args[0]); err != nil {
			return err
		}
		d, err := a.Service.Document(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Reprocessed %q: %d chunks\n", d.OriginalName, d.ChunkCount)
		return nil
	})
}

func runDocsDelete(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.Service.DeleteDocument(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("Deleted", args[0])
		return nil
	})
}
