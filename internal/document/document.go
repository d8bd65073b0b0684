// Package document defines the knowledge-base document model and its
// ingestion lifecycle state machine.
//
// A document moves through two independent status fields:
//
//   - approval: pending_approval -> approved | rejected (owned by admins)
//   - processing: pending -> processing -> completed | failed, with
//     completed|failed -> pending on reprocessing (owned by the pipeline)
//
// Only approved documents ever enter processing. The pipeline is the sole
// writer of the processing fields; admin listings and the chat UI read them.
package document

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrNotApproved indicates processing was requested for a document that
	// has not been approved.
	ErrNotApproved = errors.New("document not approved")

	// ErrInvalidTransition indicates a processing-status change that the
	// lifecycle state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ApprovalStatus tracks the admin review decision for an uploaded document.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending_approval"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ProcessingStatus tracks ingestion progress for an approved document.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// validTransitions is the full lifecycle graph. completed|failed -> pending
// covers explicit reprocessing; there is no silent auto-retry path.
var validTransitions = map[ProcessingStatus][]ProcessingStatus{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusPending},
	StatusFailed:     {StatusPending},
}

// ValidTransition reports whether the processing status may move from one
// state to another.
func ValidTransition(from, to ProcessingStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Document is a stored file record supplied by the upload collaborator and
// mutated only by the ingestion pipeline once approved.
//
// Invariants maintained by the pipeline:
//   - ChunkCount equals the number of chunks currently persisted for ID.
//   - A completed document always has ChunkCount > 0.
//   - A failed document always has ChunkCount == 0 and a FailureReason.
type Document struct {
	ID           string
	FilePath     string
	ContentType  string
	OriginalName string
	Department   string
	Tags         []string
	UploadedAt   time.Time
	FileSize     int64

	ApprovalStatus   ApprovalStatus
	ProcessingStatus ProcessingStatus
	Processed        bool
	ChunkCount       int
	LastProcessedAt  *time.Time
	FailureReason    string
}

// Processable reports whether the document may enter processing right now:
// it must be approved and sitting in the pending state.
func (d *Document) Processable() bool {
	return d.ApprovalStatus == ApprovalApproved && d.ProcessingStatus == StatusPending
}
