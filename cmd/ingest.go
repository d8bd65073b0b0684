package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/deskwise/deskwise/internal/app"
	"github.com/deskwise/deskwise/internal/document"
	"github.com/deskwise/deskwise/internal/extract"
)

var (
	ingestDepartment string
	ingestTags       []string
	ingestName       string
	ingestNoApprove  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Upload a policy document and index it",
	Long: `Upload a policy document, approve it and run the full ingestion:
extract text, chunk it, embed the chunks and store them for retrieval.

With --no-approve the document is only registered and waits in the
approval queue; approve it later with "deskwise docs approve".`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestDepartment, "department", "d", "", "owning department")
	ingestCmd.Flags().StringSliceVarP(&ingestTags, "tag", "t", nil, "free-form tags (repeatable)")
	ingestCmd.Flags().StringVarP(&ingestName, "name", "n", "", "display name (defaults to the file name)")
	ingestCmd.Flags().BoolVar(&ingestNoApprove, "no-approve", false, "register only, do not approve or process")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	name := ingestName
	if name == "" {
		name = filepath.Base(path)
	}

	doc := document.Document{
		ID:           uuid.NewString(),
		FilePath:     path,
		ContentType:  extract.TypeFromPath(path),
		OriginalName: name,
		Department:   ingestDepartment,
		Tags:         ingestTags,
		UploadedAt:   time.Now(),
		FileSize:     info.Size(),
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.Service.Upload(ctx, doc); err != nil {
			return fmt.Errorf("registering document: %w", err)
		}
		fmt.Printf("Registered %q as %s\n", name, doc.ID)

		if ingestNoApprove {
			fmt.Println("Awaiting approval. Approve with: deskwise docs approve", doc.ID)
			return nil
		}

		if err := a.Documents.Approve(ctx, doc.ID); err != nil {
			return fmt.Errorf("approving document: %w", err)
		}

		// Process synchronously so the command reports the real outcome.
		if err := a.Service.ProcessDocument(ctx, doc.ID); err != nil {
			var procErr error
			if d, getErr := a.Documents.Get(ctx, doc.ID); getErr == nil && d.FailureReason != "" {
				procErr = errors.New(d.FailureReason)
			} else {
				procErr = err
			}
			return fmt.Errorf("ingestion failed: %w", procErr)
		}

		processed, err := a.Documents.Get(ctx, doc.ID)
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %q: %d chunks\n", name, processed.ChunkCount)
		return nil
	})
}
