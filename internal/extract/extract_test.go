package extract

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deskwise/deskwise/internal/log"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

// writeTempDOCX builds a minimal OOXML container with the given paragraphs.
func writeTempDOCX(t *testing.T, paragraphs []string) string {
	t.Helper()

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sb.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		sb.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	sb.WriteString(`</w:body></w:document>`)

	path := filepath.Join(t.TempDir(), "doc.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating docx: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("creating zip entry: %v", err)
	}
	if _, err := w.Write([]byte(sb.String())); err != nil {
		t.Fatalf("writing zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return path
}

func TestText_PlainText(t *testing.T) {
	e := New(log.NewNop())
	path := writeTempFile(t, "policy.txt", []byte("Employees must file expenses within 30 days.\r\n"))

	got := e.Text(path, "text/plain")
	want := "Employees must file expenses within 30 days."
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestText_ContentTypeParameters(t *testing.T) {
	e := New(log.NewNop())
	path := writeTempFile(t, "notes.md", []byte("# Remote Work\nPolicy body."))

	if got := e.Text(path, "text/markdown; charset=utf-8"); got == "" {
		t.Error("Text() ignored a parameterized content type it supports")
	}
}

func TestText_DOCX(t *testing.T) {
	e := New(log.NewNop())
	path := writeTempDOCX(t, []string{"Travel requests need manager approval.", "Bookings go through the portal."})

	got := e.Text(path, TypeDOCX)
	if !strings.Contains(got, "Travel requests need manager approval.") {
		t.Errorf("Text() missing first paragraph, got %q", got)
	}
	if !strings.Contains(got, "Bookings go through the portal.") {
		t.Errorf("Text() missing second paragraph, got %q", got)
	}
	// Paragraphs are newline-separated, in order.
	if strings.Index(got, "Travel requests") > strings.Index(got, "Bookings") {
		t.Errorf("Text() lost paragraph order: %q", got)
	}
}

func TestText_UnsupportedType(t *testing.T) {
	e := New(log.NewNop())
	path := writeTempFile(t, "img.png", []byte{0x89, 0x50, 0x4e, 0x47})

	if got := e.Text(path, "image/png"); got != "" {
		t.Errorf("Text() = %q for unsupported type, want empty", got)
	}
}

func TestText_MissingFile(t *testing.T) {
	e := New(log.NewNop())

	if got := e.Text("/nonexistent/policy.txt", "text/plain"); got != "" {
		t.Errorf("Text() = %q for missing file, want empty", got)
	}
}

func TestText_CorruptPDF(t *testing.T) {
	e := New(log.NewNop())
	path := writeTempFile(t, "broken.pdf", []byte("not a pdf at all"))

	if got := e.Text(path, "application/pdf"); got != "" {
		t.Errorf("Text() = %q for corrupt PDF, want empty", got)
	}
}

func TestText_EmptyFile(t *testing.T) {
	e := New(log.NewNop())
	path := writeTempFile(t, "empty.txt", nil)

	if got := e.Text(path, "text/plain"); got != "" {
		t.Errorf("Text() = %q for zero-byte file, want empty", got)
	}
}

func TestSupported(t *testing.T) {
	e := New(log.NewNop())

	for _, ct := range []string{TypePlainText, TypeMarkdown, TypePDF, TypeDOCX, "TEXT/PLAIN"} {
		if !e.Supported(ct) {
			t.Errorf("Supported(%q) = false, want true", ct)
		}
	}
	for _, ct := range []string{"image/png", "application/zip", ""} {
		if e.Supported(ct) {
			t.Errorf("Supported(%q) = true, want false", ct)
		}
	}
}

func TestTypeFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"policy.txt", TypePlainText},
		{"README.md", TypeMarkdown},
		{"notes.MARKDOWN", TypeMarkdown},
		{"handbook.pdf", TypePDF},
		{"contract.docx", TypeDOCX},
		{"no-extension", TypePlainText},
	}

	for _, tt := range tests {
		if got := TypeFromPath(tt.path); got != tt.want {
			t.Errorf("TypeFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
