package answer

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ModelGenerator implements Generator on a Genkit model.
type ModelGenerator struct {
	g     *genkit.Genkit
	model string
}

// NewModelGenerator creates a generator bound to one model name, e.g.
// "googleai/gemini-2.5-flash" or "ollama/llama3.2".
func NewModelGenerator(g *genkit.Genkit, model string) *ModelGenerator {
	return &ModelGenerator{g: g, model: model}
}

// Generate sends the system instruction and user message to the model and
// returns its raw text output.
func (m *ModelGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	resp, err := genkit.Generate(ctx, m.g,
		ai.WithModelName(m.model),
		ai.WithSystem(system),
		ai.WithPrompt(user),
	)
	if err != nil {
		return "", fmt.Errorf("generating with %s: %w", m.model, err)
	}
	return resp.Text(), nil
}
