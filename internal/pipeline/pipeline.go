// Package pipeline orchestrates the document lifecycle: upload, approval,
// background ingestion, retrieval and answer synthesis. It is the single
// facade the command layer talks to.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deskwise/deskwise/internal/answer"
	"github.com/deskwise/deskwise/internal/chunk"
	"github.com/deskwise/deskwise/internal/document"
	"github.com/deskwise/deskwise/internal/retrieval"
	"github.com/deskwise/deskwise/internal/store"
)

// ErrNoText indicates a document yielded no extractable text.
var ErrNoText = errors.New("no extractable text")

// DocumentStore persists document records. Satisfied by *document.Store.
type DocumentStore interface {
	Create(ctx context.Context, doc document.Document) error
	Get(ctx context.Context, id string) (*document.Document, error)
	List(ctx context.Context, f document.Filter) ([]document.Document, error)
	Approve(ctx context.Context, id string) error
	Reject(ctx context.Context, id string) error
	MarkProcessing(ctx context.Context, id string) error
	MarkPending(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, chunkCount int) error
	MarkFailed(ctx context.Context, id, reason string) error
	Delete(ctx context.Context, id string) error
}

// VectorStore persists and queries chunk embeddings. Satisfied by
// *store.Store.
type VectorStore interface {
	Upsert(ctx context.Context, documentID string, chunks []chunk.Chunk) error
	Query(ctx context.Context, query string, topK int) ([]store.SearchResult, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	CollectionStats(ctx context.Context) (*store.Stats, error)
}

// Extractor pulls text out of uploaded files. Satisfied by
// *extract.Extractor.
type Extractor interface {
	Text(path, contentType string) string
}

// Splitter cuts extracted text into chunks. Satisfied by *chunk.Splitter.
type Splitter interface {
	Split(documentID, text string) []chunk.Chunk
}

// Retriever assembles query context. Satisfied by *retrieval.Assembler.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*retrieval.Result, error)
}

// Synthesizer produces answers. Satisfied by *answer.Synthesizer.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, retrieved *retrieval.Result) *answer.Answer
	ErrorAnswer(sources []string) *answer.Answer
}

// Deps carries the collaborators a Service needs.
type Deps struct {
	Documents   DocumentStore
	Vectors     VectorStore
	Extractor   Extractor
	Splitter    Splitter
	Retriever   Retriever
	Synthesizer Synthesizer

	// ProcessTimeout bounds one ingestion run end to end. A hung backend
	// call fails the document instead of blocking forever.
	ProcessTimeout time.Duration

	Logger *slog.Logger
}

// Service drives ingestion and answering.
//
// Ingestion of different documents runs in parallel; runs for the same
// document id are serialized by a per-document lock, so a reprocess can
// never overlap an in-flight run for that id. Retrieval is read-only and
// runs freely alongside ingestion.
type Service struct {
	docs      DocumentStore
	vectors   VectorStore
	extractor Extractor
	splitter  Splitter
	retriever Retriever
	synth     Synthesizer
	timeout   time.Duration
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*docLock

	wg sync.WaitGroup
}

// docLock serializes runs for one document id. refs counts holders and
// waiters so the entry can be dropped once nobody needs it.
type docLock struct {
	mu   sync.Mutex
	refs int
}

const defaultProcessTimeout = 2 * time.Minute

// New creates a Service. A nil logger falls back to slog.Default().
func New(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.ProcessTimeout <= 0 {
		d.ProcessTimeout = defaultProcessTimeout
	}
	return &Service{
		docs:      d.Documents,
		vectors:   d.Vectors,
		extractor: d.Extractor,
		splitter:  d.Splitter,
		retriever: d.Retriever,
		synth:     d.Synthesizer,
		timeout:   d.ProcessTimeout,
		logger:    d.Logger,
		locks:     make(map[string]*docLock),
	}
}

// lockDoc acquires the per-document lock for id, creating it on first use.
func (s *Service) lockDoc(id string) *docLock {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &docLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

// unlockDoc releases the per-document lock and drops the map entry once no
// other run holds or awaits it.
func (s *Service) unlockDoc(id string, l *docLock) {
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, id)
	}
	s.mu.Unlock()
}

// Upload registers a freshly uploaded document, awaiting approval.
func (s *Service) Upload(ctx context.Context, doc document.Document) error {
	return s.docs.Create(ctx, doc)
}

// Approve marks a document approved and enqueues its ingestion in the
// background. The call returns as soon as the approval is persisted.
func (s *Service) Approve(ctx context.Context, id string) error {
	if err := s.docs.Approve(ctx, id); err != nil {
		return err
	}
	s.Enqueue(id)
	return nil
}

// Reject marks a pending document rejected. Rejected documents are never
// processed.
func (s *Service) Reject(ctx context.Context, id string) error {
	return s.docs.Reject(ctx, id)
}

// Enqueue starts background ingestion for a document. It never blocks the
// caller; failures are recorded on the document and logged.
func (s *Service) Enqueue(id string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.ProcessDocument(context.Background(), id); err != nil {
			s.logger.Error("background ingestion failed", "id", id, "error", err)
		}
	}()
}

// ProcessDocument runs the full ingestion for one approved document:
// extract, chunk, embed, store. On success the document is completed with
// an accurate chunk count; on any failure it is failed with a reason and
// zero chunks. The returned error reports what went wrong to the caller;
// the document status is updated either way.
func (s *Service) ProcessDocument(ctx context.Context, id string) error {
	lock := s.lockDoc(id)
	defer s.unlockDoc(id, lock)

	return s.process(ctx, id)
}

// process is ProcessDocument without the per-document lock. Callers must
// hold the lock for id.
func (s *Service) process(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.docs.MarkProcessing(ctx, id); err != nil {
		return err
	}

	start := time.Now()
	s.logger.Info("processing document", "id", id, "name", doc.OriginalName)

	text := s.extractor.Text(doc.FilePath, doc.ContentType)
	if text == "" {
		return s.fail(ctx, id, ErrNoText)
	}

	chunks := s.splitter.Split(id, text)
	if len(chunks) == 0 {
		return s.fail(ctx, id, ErrNoText)
	}

	if err := s.vectors.Upsert(ctx, id, chunks); err != nil {
		return s.fail(ctx, id, err)
	}

	if err := s.docs.MarkCompleted(ctx, id, len(chunks)); err != nil {
		return s.fail(ctx, id, err)
	}

	s.logger.Info("document processed",
		"id", id, "chunks", len(chunks), "duration", time.Since(start))
	return nil
}

// fail transitions a document to failed. Stored chunks are removed first so
// a failed document never has a non-zero chunk count, and the status write
// survives an expired processing deadline.
func (s *Service) fail(ctx context.Context, id string, cause error) error {
	ctx = context.WithoutCancel(ctx)

	if err := s.vectors.DeleteByDocument(ctx, id); err != nil {
		s.logger.Error("clearing chunks of failed document", "id", id, "error", err)
	}
	if err := s.docs.MarkFailed(ctx, id, cause.Error()); err != nil {
		s.logger.Error("marking document failed", "id", id, "error", err)
	}
	return fmt.Errorf("processing document %s: %w", id, cause)
}

// Reprocess re-ingests a completed or failed document from its stored file:
// existing chunks are deleted, the status is reset to pending and a fresh
// run starts synchronously. The whole sequence holds the document lock, so
// it cannot interleave with another run for the same id.
func (s *Service) Reprocess(ctx context.Context, id string) error {
	lock := s.lockDoc(id)
	defer s.unlockDoc(id, lock)

	if err := s.vectors.DeleteByDocument(ctx, id); err != nil {
		return fmt.Errorf("clearing chunks before reprocess of %s: %w", id, err)
	}
	if err := s.docs.MarkPending(ctx, id); err != nil {
		return err
	}
	return s.process(ctx, id)
}

// Search runs a raw nearest-chunk lookup, for admin and debugging use.
func (s *Service) Search(ctx context.Context, query string, k int) ([]store.SearchResult, error) {
	return s.vectors.Query(ctx, query, k)
}

// Answer produces the full RAG answer for a query. It never returns an
// error: upstream failures map to the error outcome, empty retrieval to the
// no-knowledge outcome.
func (s *Service) Answer(ctx context.Context, query string) *answer.Answer {
	retrieved, err := s.retriever.Retrieve(ctx, query)
	if err != nil {
		s.logger.Error("retrieval failed", "error", err)
		return s.synth.ErrorAnswer(nil)
	}
	return s.synth.Synthesize(ctx, query, retrieved)
}

// DeleteDocument removes a document and all its chunks. Chunks go first so
// retrieval can never return a chunk whose document is already gone.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	lock := s.lockDoc(id)
	defer s.unlockDoc(id, lock)

	if err := s.vectors.DeleteByDocument(ctx, id); err != nil {
		return err
	}
	return s.docs.Delete(ctx, id)
}

// DeleteDocumentChunks removes the stored chunks of a document without
// touching the record. Idempotent.
func (s *Service) DeleteDocumentChunks(ctx context.Context, id string) error {
	lock := s.lockDoc(id)
	defer s.unlockDoc(id, lock)

	return s.vectors.DeleteByDocument(ctx, id)
}

// Documents lists document records.
func (s *Service) Documents(ctx context.Context, f document.Filter) ([]document.Document, error) {
	return s.docs.List(ctx, f)
}

// Document returns one document record.
func (s *Service) Document(ctx context.Context, id string) (*document.Document, error) {
	return s.docs.Get(ctx, id)
}

// CollectionStats reports totals over the indexed collection.
func (s *Service) CollectionStats(ctx context.Context) (*store.Stats, error) {
	return s.vectors.CollectionStats(ctx)
}

// Close waits for in-flight background ingestion to finish.
func (s *Service) Close() {
	s.wg.Wait()
}
