// Package extract pulls raw text out of stored files based on their declared
// content type.
//
// Extraction failures are never fatal: unsupported types, corrupt files and
// I/O errors all produce an empty string plus a logged warning, and the
// pipeline treats empty text as "nothing to index" (the document fails with
// zero chunks instead of crashing the process).
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Content types the extractor understands.
const (
	TypePlainText = "text/plain"
	TypeMarkdown  = "text/markdown"
	TypePDF       = "application/pdf"
	TypeDOCX      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// TypeFromPath guesses the content type from a file extension. Unknown
// extensions map to plain text, which downstream extraction will reject if
// the bytes are not valid text.
func TypeFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return TypeMarkdown
	case ".pdf":
		return TypePDF
	case ".docx":
		return TypeDOCX
	default:
		return TypePlainText
	}
}

// Extractor converts stored files to plain text.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Supported reports whether the extractor can handle a content type.
func (e *Extractor) Supported(contentType string) bool {
	switch normalizeType(contentType) {
	case TypePlainText, TypeMarkdown, TypePDF, TypeDOCX:
		return true
	}
	return false
}

// Text extracts the text content of the file at path. Returns an empty
// string for unsupported types or any read/parse failure.
func (e *Extractor) Text(path, contentType string) string {
	var (
		text string
		err  error
	)

	switch normalizeType(contentType) {
	case TypePlainText, TypeMarkdown:
		text, err = readPlainText(path)
	case TypePDF:
		text, err = readPDF(path)
	case TypeDOCX:
		text, err = readDOCX(path)
	default:
		e.logger.Warn("unsupported content type, skipping extraction",
			"path", path, "content_type", contentType)
		return ""
	}

	if err != nil {
		e.logger.Warn("text extraction failed",
			"path", path, "content_type", contentType, "error", err)
		return ""
	}

	return sanitize(text)
}

// normalizeType strips parameters like "; charset=utf-8".
func normalizeType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func readPlainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// readPDF concatenates the plain text of every page in order.
func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not discard the rest.
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// readDOCX extracts paragraph text from word/document.xml inside the
// OOXML zip container.
func readDOCX(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", err
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		return parseDocumentXML(content)
	}

	// No document.xml means an empty or non-Word container.
	return "", nil
}

// documentXML mirrors the parts of word/document.xml we care about:
// paragraphs and their text runs.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Texts []string `xml:"t"`
}

// parseDocumentXML joins each paragraph's runs and separates paragraphs with
// newlines, preserving document order.
func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, p := range doc.Body.Paragraphs {
		for _, r := range p.Runs {
			for _, t := range r.Texts {
				sb.WriteString(t)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// sanitize normalizes line endings, drops invalid UTF-8 and trims the ends.
func sanitize(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimSpace(text)
}
