// Package retrieval turns similarity search results into an attributed
// context block for answer generation.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deskwise/deskwise/internal/store"
)

// Searcher runs nearest-chunk queries. Satisfied by *store.Store.
type Searcher interface {
	Query(ctx context.Context, query string, topK int) ([]store.SearchResult, error)
}

// Result is the assembled retrieval output for one query.
//
// When no chunk clears the relevance threshold, Context is empty and Sources
// is nil; the caller must take the no-knowledge path instead of generating.
type Result struct {
	// Context is the concatenated block of attributed chunk texts.
	Context string

	// Sources lists the contributing document names, most relevant first,
	// without duplicates.
	Sources []string

	// Results holds the surviving search results backing the context, in
	// decreasing similarity order.
	Results []store.SearchResult
}

// Empty reports whether nothing relevant was found.
func (r *Result) Empty() bool {
	return len(r.Results) == 0
}

// Assembler fetches the nearest chunks for a query, discards weak matches
// and assembles the survivors into one context block.
type Assembler struct {
	searcher  Searcher
	topK      int
	threshold float64
	logger    *slog.Logger
}

// New creates an Assembler. topK is how many chunks to fetch per query and
// threshold the minimum similarity for a chunk to be used.
func New(searcher Searcher, topK int, threshold float64, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		searcher:  searcher,
		topK:      topK,
		threshold: threshold,
		logger:    logger,
	}
}

// Retrieve runs the query and assembles the context block.
//
// Results below the relevance threshold never reach the context. Of several
// surviving chunks from the same document, only the most relevant one is
// kept, so every attribution line names a distinct document. Search results
// arrive ordered by similarity and that order is preserved throughout.
func (a *Assembler) Retrieve(ctx context.Context, query string) (*Result, error) {
	raw, err := a.searcher.Query(ctx, query, a.topK)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	seen := make(map[string]bool, len(raw))
	kept := make([]store.SearchResult, 0, len(raw))
	for _, r := range raw {
		if r.Similarity < a.threshold {
			continue
		}
		if seen[r.DocumentName] {
			continue
		}
		seen[r.DocumentName] = true
		kept = append(kept, r)
	}

	if len(kept) == 0 {
		a.logger.Debug("no relevant chunks", "query_len", len(query), "fetched", len(raw))
		return &Result{}, nil
	}

	var b strings.Builder
	sources := make([]string, 0, len(kept))
	for i, r := range kept {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[From %s]:\n%s", r.DocumentName, r.Text)
		sources = append(sources, r.DocumentName)
	}

	a.logger.Debug("context assembled",
		"fetched", len(raw), "kept", len(kept), "context_len", b.Len())

	return &Result{
		Context: b.String(),
		Sources: sources,
		Results: kept,
	}, nil
}
