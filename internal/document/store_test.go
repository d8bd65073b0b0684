package document

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/deskwise/deskwise/internal/log"
)

// ============================================================================
// Fakes
// ============================================================================

// fakeRow implements pgx.Row backed by a Document (or an error).
type fakeRow struct {
	doc *Document
	err error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.doc, dest)
}

// scanInto writes a Document into the destinations used by scanDocument, in
// column order.
func scanInto(doc *Document, dest []any) error {
	*(dest[0].(*string)) = doc.ID
	*(dest[1].(*string)) = doc.FilePath
	*(dest[2].(*string)) = doc.ContentType
	*(dest[3].(*string)) = doc.OriginalName
	*(dest[4].(*string)) = doc.Department
	*(dest[5].(*[]string)) = doc.Tags
	*(dest[6].(*time.Time)) = doc.UploadedAt
	*(dest[7].(*int64)) = doc.FileSize
	*(dest[8].(*string)) = string(doc.ApprovalStatus)
	*(dest[9].(*string)) = string(doc.ProcessingStatus)
	*(dest[10].(*bool)) = doc.Processed
	*(dest[11].(*int)) = doc.ChunkCount
	ts := dest[12].(*pgtype.Timestamptz)
	if doc.LastProcessedAt != nil {
		ts.Time = *doc.LastProcessedAt
		ts.Valid = true
	} else {
		ts.Valid = false
	}
	fr := dest[13].(*pgtype.Text)
	fr.String = doc.FailureReason
	fr.Valid = doc.FailureReason != ""
	return nil
}

// fakeRows implements pgx.Rows over a fixed slice of documents.
type fakeRows struct {
	docs []Document
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool {
	if r.pos >= len(r.docs) {
		return false
	}
	r.pos++
	return true
}
func (r *fakeRows) Scan(dest ...any) error {
	return scanInto(&r.docs[r.pos-1], dest)
}
func (r *fakeRows) Values() ([]any, error) { return nil, nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

// fakeDB implements the DB interface with canned responses.
type fakeDB struct {
	execTag  pgconn.CommandTag
	execErr  error
	row      *fakeRow
	rows     *fakeRows
	queryErr error

	execCalls int
	lastSQL   string
	lastArgs  []any
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execCalls++
	db.lastSQL = sql
	db.lastArgs = args
	return db.execTag, db.execErr
}

func (db *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.lastSQL = sql
	db.lastArgs = args
	if db.queryErr != nil {
		return nil, db.queryErr
	}
	return db.rows, nil
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.lastSQL = sql
	db.lastArgs = args
	return db.row
}

func testDoc() *Document {
	return &Document{
		ID:               "doc-1",
		FilePath:         "/data/uploads/travel-policy.pdf",
		ContentType:      "application/pdf",
		OriginalName:     "Travel Policy.pdf",
		Department:       "HR",
		Tags:             []string{"travel", "policy"},
		UploadedAt:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		FileSize:         2048,
		ApprovalStatus:   ApprovalApproved,
		ProcessingStatus: StatusPending,
	}
}

// ============================================================================
// Tests
// ============================================================================

func TestStoreCreate(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	store := NewStore(db, log.NewNop())

	if err := store.Create(context.Background(), *testDoc()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if db.execCalls != 1 {
		t.Errorf("exec calls = %d, want 1", db.execCalls)
	}
	if db.lastArgs[0] != "doc-1" {
		t.Errorf("inserted id = %v, want doc-1", db.lastArgs[0])
	}
	// Approval and processing statuses are forced, not taken from input.
	if db.lastArgs[8] != string(ApprovalPending) {
		t.Errorf("approval = %v, want %s", db.lastArgs[8], ApprovalPending)
	}
	if db.lastArgs[9] != string(StatusPending) {
		t.Errorf("processing = %v, want %s", db.lastArgs[9], StatusPending)
	}
}

func TestStoreGet(t *testing.T) {
	want := testDoc()
	reason := "embedding backend unavailable"
	processedAt := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	want.ProcessingStatus = StatusFailed
	want.FailureReason = reason
	want.LastProcessedAt = &processedAt

	db := &fakeDB{row: &fakeRow{doc: want}}
	store := NewStore(db, log.NewNop())

	got, err := store.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != want.ID || got.OriginalName != want.OriginalName {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
	if got.FailureReason != reason {
		t.Errorf("failure reason = %q, want %q", got.FailureReason, reason)
	}
	if got.LastProcessedAt == nil || !got.LastProcessedAt.Equal(processedAt) {
		t.Errorf("last processed at = %v, want %v", got.LastProcessedAt, processedAt)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "travel" {
		t.Errorf("tags = %v, want [travel policy]", got.Tags)
	}
}

func TestStoreGet_NotFound(t *testing.T) {
	db := &fakeDB{row: &fakeRow{err: pgx.ErrNoRows}}
	store := NewStore(db, log.NewNop())

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStoreList(t *testing.T) {
	db := &fakeDB{rows: &fakeRows{docs: []Document{*testDoc(), *testDoc()}}}
	store := NewStore(db, log.NewNop())

	docs, err := store.List(context.Background(), Filter{ApprovalStatus: ApprovalApproved})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("List() returned %d docs, want 2", len(docs))
	}
	if db.lastArgs[0] != string(ApprovalApproved) {
		t.Errorf("approval filter = %v, want %s", db.lastArgs[0], ApprovalApproved)
	}
	if db.lastArgs[3] != int32(DefaultListLimit) {
		t.Errorf("limit = %v, want default %d", db.lastArgs[3], DefaultListLimit)
	}
}

func TestStoreList_LimitTooLarge(t *testing.T) {
	store := NewStore(&fakeDB{}, log.NewNop())

	if _, err := store.List(context.Background(), Filter{Limit: MaxListLimit + 1}); err == nil {
		t.Error("List() accepted a limit above MaxListLimit")
	}
}

func TestStoreMarkProcessing_NotApproved(t *testing.T) {
	doc := testDoc()
	doc.ApprovalStatus = ApprovalPending

	db := &fakeDB{
		execTag: pgconn.NewCommandTag("UPDATE 0"),
		row:     &fakeRow{doc: doc},
	}
	store := NewStore(db, log.NewNop())

	err := store.MarkProcessing(context.Background(), "doc-1")
	if !errors.Is(err, ErrNotApproved) {
		t.Errorf("MarkProcessing() error = %v, want ErrNotApproved", err)
	}
}

func TestStoreMarkProcessing_WrongState(t *testing.T) {
	doc := testDoc()
	doc.ProcessingStatus = StatusCompleted

	db := &fakeDB{
		execTag: pgconn.NewCommandTag("UPDATE 0"),
		row:     &fakeRow{doc: doc},
	}
	store := NewStore(db, log.NewNop())

	err := store.MarkProcessing(context.Background(), "doc-1")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("MarkProcessing() error = %v, want ErrInvalidTransition", err)
	}
}

func TestStoreMarkCompleted_RejectsZeroChunks(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 1")}
	store := NewStore(db, log.NewNop())

	err := store.MarkCompleted(context.Background(), "doc-1", 0)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("MarkCompleted(0 chunks) error = %v, want ErrInvalidTransition", err)
	}
	if db.execCalls != 0 {
		t.Error("MarkCompleted(0 chunks) must not reach the database")
	}
}

func TestStoreMarkCompleted(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 1")}
	store := NewStore(db, log.NewNop())

	if err := store.MarkCompleted(context.Background(), "doc-1", 3); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if db.lastArgs[2] != 3 {
		t.Errorf("chunk count arg = %v, want 3", db.lastArgs[2])
	}
}

func TestStoreMarkFailed(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 1")}
	store := NewStore(db, log.NewNop())

	if err := store.MarkFailed(context.Background(), "doc-1", "no extractable text"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	if db.lastArgs[2] != "no extractable text" {
		t.Errorf("reason arg = %v, want failure reason", db.lastArgs[2])
	}
}
