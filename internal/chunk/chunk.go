// Package chunk splits extracted document text into overlapping, ordered
// segments suitable for embedding and retrieval.
//
// Text is split along a separator hierarchy (paragraph, line, sentence,
// word, character) so segments break at the most natural boundary available
// instead of mid-sentence. Adjacent chunks share a configurable overlap so
// retrieval never loses context that straddles a boundary.
package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Default chunking geometry. Sizes are in characters (runes).
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// separators is the split hierarchy, coarsest first. The empty string is the
// character-level fallback for text with no separators at all.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunk is one bounded segment of a document's text. Its ID is deterministic:
// the same document and ordinal always produce the same ID, so reprocessing
// replaces chunks instead of accumulating them.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Text       string
	CharLen    int
}

// ChunkID builds the canonical chunk identifier for a document and ordinal.
func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s#%d", documentID, ordinal)
}

// Splitter produces chunks with a target size and overlap.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a Splitter. Non-positive size falls back to
// DefaultSize; an overlap outside [0, size) falls back to size/5.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	return &Splitter{size: size, overlap: overlap}
}

// Split chunks text for the given document. Empty or whitespace-only input
// yields no chunks; the caller decides what an unindexable document means.
func (s *Splitter) Split(documentID, text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	atoms := split(text, separators, s.size)

	var (
		chunks   []Chunk
		cur      []string
		curLen   int
		carryLen int // length of the overlap prefix carried from the previous chunk
	)

	emit := func() {
		joined := strings.TrimSpace(strings.Join(cur, ""))
		if joined == "" {
			return
		}
		ordinal := len(chunks)
		chunks = append(chunks, Chunk{
			ID:         ChunkID(documentID, ordinal),
			DocumentID: documentID,
			Ordinal:    ordinal,
			Text:       joined,
			CharLen:    utf8.RuneCountInString(joined),
		})
	}

	for _, atom := range atoms {
		atomLen := utf8.RuneCountInString(atom)

		// Emit once the current chunk is full, but never emit a chunk that
		// holds nothing beyond the carried overlap.
		if curLen > carryLen && curLen+atomLen > s.size {
			emit()
			cur, curLen = s.overlapTail(cur)
			carryLen = curLen
		}

		cur = append(cur, atom)
		curLen += atomLen
	}

	if curLen > carryLen || len(chunks) == 0 {
		emit()
	}

	return chunks
}

// overlapTail selects the trailing atoms of the emitted chunk that fit in the
// overlap window. If even the last atom is too big, its trailing runes are
// carried instead, so adjacent chunks always share context.
func (s *Splitter) overlapTail(atoms []string) ([]string, int) {
	if s.overlap == 0 || len(atoms) == 0 {
		return nil, 0
	}

	var keep []string
	kept := 0
	for i := len(atoms) - 1; i >= 0; i-- {
		l := utf8.RuneCountInString(atoms[i])
		if kept+l > s.overlap {
			break
		}
		keep = append([]string{atoms[i]}, keep...)
		kept += l
	}

	if kept > 0 {
		return keep, kept
	}

	// Whole atoms don't fit: carry the raw tail of the last atom.
	last := []rune(atoms[len(atoms)-1])
	tail := string(last[len(last)-s.overlap:])
	return []string{tail}, s.overlap
}

// split recursively breaks text into pieces no longer than size, trying each
// separator in order before falling back to the next finer one. Separators
// are kept attached to the preceding piece so joining pieces reconstructs the
// original text.
func split(text string, seps []string, size int) []string {
	if utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	sep := seps[0]
	if sep == "" {
		return splitRunes(text, size)
	}

	parts := strings.SplitAfter(text, sep)

	var out []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if utf8.RuneCountInString(part) <= size {
			out = append(out, part)
			continue
		}
		out = append(out, split(part, seps[1:], size)...)
	}
	return out
}

// splitRunes is the character-level fallback for separator-free text.
func splitRunes(text string, size int) []string {
	runes := []rune(text)
	out := make([]string, 0, (len(runes)/size)+1)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}
