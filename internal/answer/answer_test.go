package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/deskwise/deskwise/internal/log"
	"github.com/deskwise/deskwise/internal/retrieval"
	"github.com/deskwise/deskwise/internal/store"
)

// mockGenerator returns canned model output.
type mockGenerator struct {
	output     string
	err        error
	lastSystem string
	lastUser   string
	calls      int
}

func (g *mockGenerator) Generate(_ context.Context, system, user string) (string, error) {
	g.calls++
	g.lastSystem = system
	g.lastUser = user
	if g.err != nil {
		return "", g.err
	}
	return g.output, nil
}

func retrieved() *retrieval.Result {
	return &retrieval.Result{
		Context: "[From Travel Policy.pdf]:\nEmployees book economy flights through the portal.",
		Sources: []string{"Travel Policy.pdf"},
		Results: []store.SearchResult{
			{DocumentName: "Travel Policy.pdf", Similarity: 0.91},
		},
	}
}

const validPayload = `{
	"summary": "Book economy flights through the travel portal.",
	"details": {
		"requirements": ["Manager approval for trips over 3 days"],
		"procedures": ["Submit the request in the portal"],
		"exceptions": []
	},
	"action_required": "Submit your travel request at least 5 days in advance.",
	"contact_info": "travel@example.com",
	"related_policies": ["Expense Policy"]
}`

func TestSynthesize_Structured(t *testing.T) {
	gen := &mockGenerator{output: validPayload}
	s := New(gen, "it-support@example.com", log.NewNop())

	ans := s.Synthesize(context.Background(), "how do I book flights", retrieved())

	if ans.Outcome != OutcomeStructured {
		t.Fatalf("outcome = %s, want %s", ans.Outcome, OutcomeStructured)
	}
	if ans.Summary != "Book economy flights through the travel portal." {
		t.Errorf("summary = %q", ans.Summary)
	}
	if len(ans.Details.Requirements) != 1 || len(ans.Details.Procedures) != 1 {
		t.Errorf("details = %+v", ans.Details)
	}
	if ans.Details.Exceptions == nil {
		t.Error("exceptions is nil, want empty slice")
	}
	if len(ans.Sources) != 1 || ans.Sources[0] != "Travel Policy.pdf" {
		t.Errorf("sources = %v", ans.Sources)
	}
	if ans.SuggestTicket {
		t.Error("ticket suggested without a ticket mention")
	}
	if !strings.Contains(gen.lastUser, "how do I book flights") {
		t.Error("query missing from user message")
	}
	if !strings.Contains(gen.lastUser, "[From Travel Policy.pdf]:") {
		t.Error("context missing from user message")
	}
}

func TestSynthesize_TicketSuggestion(t *testing.T) {
	tests := []struct {
		name   string
		action string
		want   bool
	}{
		{"lowercase", "please open a ticket with IT", true},
		{"uppercase", "File a TICKET before proceeding", true},
		{"mixed case", "Submit a Ticket through the portal", true},
		{"no mention", "submit the form to your manager", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := strings.Replace(validPayload,
				"Submit your travel request at least 5 days in advance.", tt.action, 1)
			s := New(&mockGenerator{output: output}, "", log.NewNop())

			ans := s.Synthesize(context.Background(), "q", retrieved())
			if ans.SuggestTicket != tt.want {
				t.Errorf("SuggestTicket = %v, want %v", ans.SuggestTicket, tt.want)
			}
		})
	}
}

func TestSynthesize_StripsFences(t *testing.T) {
	gen := &mockGenerator{output: "```json\n" + validPayload + "\n```"}
	s := New(gen, "", log.NewNop())

	ans := s.Synthesize(context.Background(), "q", retrieved())
	if ans.Outcome != OutcomeStructured {
		t.Errorf("outcome = %s, want %s for fenced JSON", ans.Outcome, OutcomeStructured)
	}
}

func TestSynthesize_FallbackOnNonJSON(t *testing.T) {
	raw := "You should book economy flights through the portal and get approval first."
	s := New(&mockGenerator{output: raw}, "it-support@example.com", log.NewNop())

	ans := s.Synthesize(context.Background(), "q", retrieved())

	if ans.Outcome != OutcomeFallback {
		t.Fatalf("outcome = %s, want %s", ans.Outcome, OutcomeFallback)
	}
	if ans.Summary != raw {
		t.Errorf("summary = %q, want raw text", ans.Summary)
	}
	// Sources stay attached even when the payload was unusable.
	if len(ans.Sources) != 1 {
		t.Errorf("sources = %v, want retrieved sources", ans.Sources)
	}
}

func TestSynthesize_FallbackOnMissingKey(t *testing.T) {
	missingContact := `{
		"summary": "ok",
		"details": {"requirements": [], "procedures": [], "exceptions": []},
		"action_required": "",
		"related_policies": []
	}`
	s := New(&mockGenerator{output: missingContact}, "", log.NewNop())

	ans := s.Synthesize(context.Background(), "q", retrieved())
	if ans.Outcome != OutcomeFallback {
		t.Errorf("outcome = %s, want %s when a key is missing", ans.Outcome, OutcomeFallback)
	}
}

func TestSynthesize_FallbackTruncatesLongOutput(t *testing.T) {
	raw := strings.Repeat("a", fallbackSummaryLimit+200)
	s := New(&mockGenerator{output: raw}, "", log.NewNop())

	ans := s.Synthesize(context.Background(), "q", retrieved())
	if ans.Outcome != OutcomeFallback {
		t.Fatalf("outcome = %s, want %s", ans.Outcome, OutcomeFallback)
	}
	if len(ans.Summary) != fallbackSummaryLimit+len("...") {
		t.Errorf("summary length = %d, want %d", len(ans.Summary), fallbackSummaryLimit+3)
	}
}

func TestSynthesize_FallbackTruncationKeepsValidUTF8(t *testing.T) {
	// A two-byte rune straddling the limit must be dropped whole, never cut
	// into an orphaned lead byte.
	raw := strings.Repeat("a", fallbackSummaryLimit-1) + "é" + strings.Repeat("b", 50)
	s := New(&mockGenerator{output: raw}, "", log.NewNop())

	ans := s.Synthesize(context.Background(), "q", retrieved())
	if ans.Outcome != OutcomeFallback {
		t.Fatalf("outcome = %s, want %s", ans.Outcome, OutcomeFallback)
	}
	if !utf8.ValidString(ans.Summary) {
		t.Fatalf("summary is not valid UTF-8: %q", ans.Summary[fallbackSummaryLimit-4:])
	}
	want := strings.Repeat("a", fallbackSummaryLimit-1) + "..."
	if ans.Summary != want {
		t.Errorf("summary = ...%q, want straddling rune dropped whole", ans.Summary[fallbackSummaryLimit-4:])
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"shorter than limit", "abc", 10, "abc"},
		{"exact limit", "abcde", 5, "abcde"},
		{"ascii cut", "abcdef", 3, "abc"},
		{"rune straddles limit", "abéf", 3, "ab"},
		{"rune ends at limit", "abé", 4, "abé"},
		{"multi-byte only", "ééé", 3, "é"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.limit)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) = %q is not valid UTF-8", tt.in, tt.limit, got)
			}
		})
	}
}

func TestSynthesize_ErrorOutcome(t *testing.T) {
	s := New(&mockGenerator{err: errors.New("model timeout")}, "it-support@example.com", log.NewNop())

	ans := s.Synthesize(context.Background(), "q", retrieved())

	if ans.Outcome != OutcomeError {
		t.Fatalf("outcome = %s, want %s", ans.Outcome, OutcomeError)
	}
	if ans.ContactInfo != "it-support@example.com" {
		t.Errorf("contact info = %q, want support contact", ans.ContactInfo)
	}
	if len(ans.Sources) != 1 {
		t.Errorf("sources = %v, want retrieved sources attached", ans.Sources)
	}
	if ans.Summary == "" {
		t.Error("error answer has empty summary")
	}
}

func TestSynthesize_NoKnowledge(t *testing.T) {
	gen := &mockGenerator{output: validPayload}
	s := New(gen, "it-support@example.com", log.NewNop())

	ans := s.Synthesize(context.Background(), "q", &retrieval.Result{})

	if ans.Outcome != OutcomeNoKnowledge {
		t.Fatalf("outcome = %s, want %s", ans.Outcome, OutcomeNoKnowledge)
	}
	if gen.calls != 0 {
		t.Error("model called despite empty retrieval")
	}
	if len(ans.Sources) != 0 {
		t.Errorf("sources = %v, want empty", ans.Sources)
	}
	if ans.Sources == nil || ans.RelatedPolicies == nil {
		t.Error("answer fields must be non-nil for JSON rendering")
	}
}

func TestSynthesize_NilRetrieval(t *testing.T) {
	s := New(&mockGenerator{}, "", log.NewNop())

	ans := s.Synthesize(context.Background(), "q", nil)
	if ans.Outcome != OutcomeNoKnowledge {
		t.Errorf("outcome = %s, want %s", ans.Outcome, OutcomeNoKnowledge)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripFences(tt.in); got != tt.want {
				t.Errorf("stripFences() = %q, want %q", got, tt.want)
			}
		})
	}
}
