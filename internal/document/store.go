package document

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DB is the subset of pgxpool.Pool the store needs. Defined by the consumer
// so tests can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DefaultListLimit caps List queries that do not specify a limit.
const DefaultListLimit = 100

// MaxListLimit is the absolute maximum for List queries.
const MaxListLimit = 1000

// Store persists document records and enforces the lifecycle state machine
// at the database boundary: every status write carries its precondition in
// the WHERE clause, so concurrent writers cannot race a document into an
// illegal state.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewStore creates a document store. A nil logger falls back to slog.Default().
func NewStore(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Create inserts a freshly uploaded document. Approval starts at
// pending_approval and processing at pending regardless of the input fields.
func (s *Store) Create(ctx context.Context, doc Document) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO documents (
	id, file_path, content_type, original_name, department, tags,
	uploaded_at, file_size, approval_status, processing_status,
	processed, chunk_count
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, 0)`,
		doc.ID, doc.FilePath, doc.ContentType, doc.OriginalName,
		doc.Department, doc.Tags, doc.UploadedAt, doc.FileSize,
		string(ApprovalPending), string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("inserting document %q: %w", doc.ID, err)
	}

	s.logger.Debug("document created", "id", doc.ID, "name", doc.OriginalName)
	return nil
}

// Get returns a single document by id.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRow(ctx, selectColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("fetching document %q: %w", id, err)
	}
	return doc, nil
}

// Filter restricts List results. Zero values mean "any".
type Filter struct {
	ApprovalStatus   ApprovalStatus
	ProcessingStatus ProcessingStatus
	Department       string
	Limit            int32
}

// List returns documents ordered by upload time, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Document, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		return nil, fmt.Errorf("limit must be at most %d, got %d", MaxListLimit, limit)
	}

	// Empty filter values match everything via the NULL guard.
	rows, err := s.db.Query(ctx, selectColumns+`
FROM documents
WHERE ($1 = '' OR approval_status = $1)
  AND ($2 = '' OR processing_status = $2)
  AND ($3 = '' OR department = $3)
ORDER BY uploaded_at DESC
LIMIT $4`,
		string(f.ApprovalStatus), string(f.ProcessingStatus), f.Department, limit)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}
	return docs, nil
}

// Approve moves a document from pending_approval to approved.
func (s *Store) Approve(ctx context.Context, id string) error {
	return s.setApproval(ctx, id, ApprovalApproved)
}

// Reject moves a document from pending_approval to rejected.
func (s *Store) Reject(ctx context.Context, id string) error {
	return s.setApproval(ctx, id, ApprovalRejected)
}

func (s *Store) setApproval(ctx context.Context, id string, to ApprovalStatus) error {
	tag, err := s.db.Exec(ctx, `
UPDATE documents SET approval_status = $2
WHERE id = $1 AND approval_status = $3`,
		id, string(to), string(ApprovalPending))
	if err != nil {
		return fmt.Errorf("updating approval for %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionFailure(ctx, id)
	}

	s.logger.Info("document approval updated", "id", id, "status", to)
	return nil
}

// MarkProcessing transitions pending -> processing. Only approved documents
// pass; everything else reports why.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE documents SET processing_status = $2
WHERE id = $1 AND approval_status = $3 AND processing_status = $4`,
		id, string(StatusProcessing), string(ApprovalApproved), string(StatusPending))
	if err != nil {
		return fmt.Errorf("marking %q processing: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		doc, getErr := s.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if doc.ApprovalStatus != ApprovalApproved {
			return fmt.Errorf("%w: %s is %s", ErrNotApproved, id, doc.ApprovalStatus)
		}
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, doc.ProcessingStatus, StatusProcessing, id)
	}
	return nil
}

// MarkPending resets a terminal document (completed or failed) for
// reprocessing. Chunk count and failure reason are cleared; the caller must
// have already removed the stored chunks.
func (s *Store) MarkPending(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE documents
SET processing_status = $2, processed = false, chunk_count = 0, failure_reason = NULL
WHERE id = $1 AND processing_status IN ($3, $4)`,
		id, string(StatusPending), string(StatusCompleted), string(StatusFailed))
	if err != nil {
		return fmt.Errorf("marking %q pending: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionFailure(ctx, id)
	}
	return nil
}

// MarkCompleted records a successful ingestion run with its chunk count.
// A zero chunk count is rejected before touching the database: a document is
// never completed with nothing indexed.
func (s *Store) MarkCompleted(ctx context.Context, id string, chunkCount int) error {
	if chunkCount <= 0 {
		return fmt.Errorf("%w: cannot complete %s with chunk count %d", ErrInvalidTransition, id, chunkCount)
	}

	tag, err := s.db.Exec(ctx, `
UPDATE documents
SET processing_status = $2, processed = true, chunk_count = $3,
    last_processed_at = now(), failure_reason = NULL
WHERE id = $1 AND processing_status = $4`,
		id, string(StatusCompleted), chunkCount, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("marking %q completed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionFailure(ctx, id)
	}

	s.logger.Info("document processing completed", "id", id, "chunks", chunkCount)
	return nil
}

// MarkFailed records a failed ingestion run. Chunk count is forced to zero
// to keep the chunk-count invariant; the pipeline deletes any stored chunks
// before calling this.
func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE documents
SET processing_status = $2, processed = false, chunk_count = 0,
    last_processed_at = now(), failure_reason = $3
WHERE id = $1 AND processing_status = $4`,
		id, string(StatusFailed), reason, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("marking %q failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionFailure(ctx, id)
	}

	s.logger.Warn("document processing failed", "id", id, "reason", reason)
	return nil
}

// Delete removes a document record. Idempotent.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting document %q: %w", id, err)
	}
	return nil
}

// transitionFailure distinguishes "document missing" from "precondition not
// met" after a guarded UPDATE touched zero rows.
func (s *Store) transitionFailure(ctx context.Context, id string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: document %s in state %s/%s", ErrInvalidTransition,
		id, doc.ApprovalStatus, doc.ProcessingStatus)
}

const selectColumns = `
SELECT id, file_path, content_type, original_name, department, tags,
       uploaded_at, file_size, approval_status, processing_status,
       processed, chunk_count, last_processed_at, failure_reason`

// scanDocument reads one row into a Document. Works for both QueryRow and
// rows iteration since pgx.Row and pgx.Rows share Scan.
func scanDocument(row pgx.Row) (*Document, error) {
	var (
		doc             Document
		approval        string
		processing      string
		lastProcessedAt pgtype.Timestamptz
		failureReason   pgtype.Text
	)

	err := row.Scan(
		&doc.ID, &doc.FilePath, &doc.ContentType, &doc.OriginalName,
		&doc.Department, &doc.Tags, &doc.UploadedAt, &doc.FileSize,
		&approval, &processing, &doc.Processed, &doc.ChunkCount,
		&lastProcessedAt, &failureReason,
	)
	if err != nil {
		return nil, err
	}

	doc.ApprovalStatus = ApprovalStatus(approval)
	doc.ProcessingStatus = ProcessingStatus(processing)
	if lastProcessedAt.Valid {
		t := lastProcessedAt.Time
		doc.LastProcessedAt = &t
	}
	if failureReason.Valid {
		doc.FailureReason = failureReason.String
	}
	return &doc, nil
}
