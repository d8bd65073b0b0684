// Package answer synthesizes structured answers from retrieved policy
// context.
//
// Synthesis is a terminal-state machine: every query ends in exactly one of
// four outcomes and every outcome produces a well-formed Answer. A raw model
// failure or malformed payload is never surfaced to the caller.
package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/deskwise/deskwise/internal/retrieval"
)

// Outcome is the terminal state of one synthesis run.
type Outcome string

const (
	// OutcomeNoKnowledge means no relevant chunks survived retrieval; the
	// answer is a fixed static response with no sources.
	OutcomeNoKnowledge Outcome = "no_knowledge"

	// OutcomeStructured means the model returned a schema-valid payload.
	OutcomeStructured Outcome = "structured"

	// OutcomeFallback means the model returned text that failed schema
	// validation; the raw text is wrapped into the summary.
	OutcomeFallback Outcome = "fallback"

	// OutcomeError means generation itself failed; the answer is a static
	// apology pointing at the support contact.
	OutcomeError Outcome = "error"
)

// Details carries the structured body of an answer.
type Details struct {
	Requirements []string `json:"requirements"`
	Procedures   []string `json:"procedures"`
	Exceptions   []string `json:"exceptions"`
}

// Answer is the synthesized response for one query. All fields are populated
// for every outcome, so callers can render it without checking Outcome first.
type Answer struct {
	Outcome         Outcome  `json:"outcome"`
	Summary         string   `json:"summary"`
	Details         Details  `json:"details"`
	ActionRequired  string   `json:"action_required"`
	ContactInfo     string   `json:"contact_info"`
	RelatedPolicies []string `json:"related_policies"`

	// Sources lists the documents that informed the answer, attached for
	// every outcome that had retrieved context.
	Sources []string `json:"sources"`

	// SuggestTicket is set when the required action mentions filing a
	// ticket, so the caller can offer its ticketing integration.
	SuggestTicket bool `json:"suggest_ticket"`
}

// Generator produces free text from a system instruction and a user message.
// The output is expected, but not guaranteed, to be JSON.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// fallbackSummaryLimit caps how much raw model text is carried into a
// fallback summary.
const fallbackSummaryLimit = 500

const systemPrompt = `You are a helpdesk assistant answering questions about internal company policies.
Answer ONLY from the provided policy context. If the context does not cover the question, say so.

Respond with a single JSON object and nothing else. The object must have exactly these five keys:
  "summary": one or two sentences answering the question directly
  "details": an object with three string arrays: "requirements", "procedures", "exceptions"
  "action_required": what the employee must do next, or an empty string
  "contact_info": who to contact for follow-up, or an empty string
  "related_policies": an array of related policy names mentioned in the context

Do not invent policies that are not in the context. Do not wrap the JSON in markdown fences.`

const noKnowledgeSummary = "I could not find any approved policy documents related to your question. " +
	"Please rephrase it, or ask the policy team to upload the relevant document."

// Synthesizer drives the answer state machine.
type Synthesizer struct {
	gen            Generator
	supportContact string
	logger         *slog.Logger
}

// New creates a Synthesizer. supportContact is included in error answers so
// the user always has somewhere to turn.
func New(gen Generator, supportContact string, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		gen:            gen,
		supportContact: supportContact,
		logger:         logger,
	}
}

// Synthesize produces the answer for a query given its retrieval result.
// It never returns an error: every failure mode maps to a terminal outcome
// with a well-formed Answer.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, retrieved *retrieval.Result) *Answer {
	if retrieved == nil || retrieved.Empty() {
		return &Answer{
			Outcome: OutcomeNoKnowledge,
			Summary: noKnowledgeSummary,
			Details: Details{
				Requirements: []string{},
				Procedures:   []string{},
				Exceptions:   []string{},
			},
			ContactInfo:     s.supportContact,
			RelatedPolicies: []string{},
			Sources:         []string{},
		}
	}

	user := fmt.Sprintf("Question: %s\n\nPolicy context:\n%s", query, retrieved.Context)

	raw, err := s.gen.Generate(ctx, systemPrompt, user)
	if err != nil {
		s.logger.Error("answer generation failed", "error", err)
		return s.ErrorAnswer(retrieved.Sources)
	}

	parsed, ok := parsePayload(raw)
	if !ok {
		s.logger.Warn("model output failed schema validation", "output_len", len(raw))
		return s.fallbackAnswer(raw, retrieved.Sources)
	}

	ans := &Answer{
		Outcome:         OutcomeStructured,
		Summary:         parsed.Summary,
		Details:         parsed.Details,
		ActionRequired:  parsed.ActionRequired,
		ContactInfo:     parsed.ContactInfo,
		RelatedPolicies: parsed.RelatedPolicies,
		Sources:         retrieved.Sources,
	}
	if ans.Details.Requirements == nil {
		ans.Details.Requirements = []string{}
	}
	if ans.Details.Procedures == nil {
		ans.Details.Procedures = []string{}
	}
	if ans.Details.Exceptions == nil {
		ans.Details.Exceptions = []string{}
	}
	if ans.RelatedPolicies == nil {
		ans.RelatedPolicies = []string{}
	}
	if strings.Contains(strings.ToLower(ans.ActionRequired), "ticket") {
		ans.SuggestTicket = true
	}
	return ans
}

func (s *Synthesizer) fallbackAnswer(raw string, sources []string) *Answer {
	summary := strings.TrimSpace(raw)
	if len(summary) > fallbackSummaryLimit {
		summary = truncate(summary, fallbackSummaryLimit) + "..."
	}
	return &Answer{
		Outcome: OutcomeFallback,
		Summary: summary,
		Details: Details{
			Requirements: []string{},
			Procedures:   []string{},
			Exceptions:   []string{},
		},
		ContactInfo:     s.supportContact,
		RelatedPolicies: []string{},
		Sources:         sources,
	}
}

// truncate cuts s to at most limit bytes without splitting a rune, so the
// result is always valid UTF-8.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ErrorAnswer builds the static apology answer. Used internally when
// generation fails, and by callers whose own upstream step broke before
// generation could start.
func (s *Synthesizer) ErrorAnswer(sources []string) *Answer {
	if sources == nil {
		sources = []string{}
	}
	return &Answer{
		Outcome: OutcomeError,
		Summary: "Sorry, something went wrong while preparing your answer. Please try again in a moment.",
		Details: Details{
			Requirements: []string{},
			Procedures:   []string{},
			Exceptions:   []string{},
		},
		ActionRequired:  "If the problem persists, contact support.",
		ContactInfo:     s.supportContact,
		RelatedPolicies: []string{},
		Sources:         sources,
	}
}

// payload mirrors the JSON object the model is instructed to produce.
type payload struct {
	Summary         string   `json:"summary"`
	Details         Details  `json:"details"`
	ActionRequired  string   `json:"action_required"`
	ContactInfo     string   `json:"contact_info"`
	RelatedPolicies []string `json:"related_policies"`
}

// requiredKeys are the top-level keys a structured payload must carry.
var requiredKeys = []string{"summary", "details", "action_required", "contact_info", "related_policies"}

// parsePayload validates raw model output against the answer schema. All
// five top-level keys must be present and the values must decode into the
// payload types; anything less routes to the fallback outcome.
func parsePayload(raw string) (*payload, bool) {
	cleaned := stripFences(raw)

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &keys); err != nil {
		return nil, false
	}
	for _, k := range requiredKeys {
		if _, present := keys[k]; !present {
			return nil, false
		}
	}

	var p payload
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
		return nil, false
	}
	return &p, true
}

// stripFences removes a surrounding markdown code fence if the model added
// one despite instructions.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
