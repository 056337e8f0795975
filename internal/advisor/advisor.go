package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-reconciler/internal/domain"
	"google.golang.org/genai"
)

// DefaultModelName is the default Gemini model used for advisory matching.
const DefaultModelName = "gemini-2.5-flash"

// maxRecordsPerSide bounds the prompt size.
const maxRecordsPerSide = 200

// Suggestion is a possible pairing the deterministic matcher rejected.
// It is advisory only and never moves records between buckets.
type Suggestion struct {
	A          domain.Record `json:"a"`
	B          domain.Record `json:"b"`
	Reason     string        `json:"reason"`
	Confidence float64       `json:"confidence"`
}

// Generator sends a prompt to a language model and returns its raw text reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator is the Generator backed by the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini client using the environment's credentials.
func NewGeminiGenerator(ctx context.Context, model string) (*GeminiGenerator, error) {
	if model == "" {
		model = DefaultModelName
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGenerator: create genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Generate: generate content: %w", err)
	}
	return resp.Text(), nil
}

// Advisor asks a model for likely pairings among unmatched records.
type Advisor struct {
	gen Generator
}

// New creates an Advisor.
func New(gen Generator) *Advisor {
	return &Advisor{gen: gen}
}

type rawSuggestion struct {
	AIndex     int     `json:"a_index"`
	BIndex     int     `json:"b_index"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Suggest returns model-proposed pairs between unmatchedA and unmatchedB.
// Pairs that reference unknown indexes, or reuse a record, are dropped.
func (a *Advisor) Suggest(ctx context.Context, unmatchedA, unmatchedB domain.RecordSet) ([]Suggestion, error) {
	if len(unmatchedA) == 0 || len(unmatchedB) == 0 {
		return nil, nil
	}
	if len(unmatchedA) > maxRecordsPerSide {
		unmatchedA = unmatchedA[:maxRecordsPerSide]
	}
	if len(unmatchedB) > maxRecordsPerSide {
		unmatchedB = unmatchedB[:maxRecordsPerSide]
	}

	raw, err := a.gen.Generate(ctx, buildPrompt(unmatchedA, unmatchedB))
	if err != nil {
		return nil, fmt.Errorf("Suggest: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("Suggest: empty response from model")
	}

	var parsed []rawSuggestion
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("Suggest: unmarshal JSON: %w", err)
	}

	usedA := make(map[int]bool)
	usedB := make(map[int]bool)
	var out []Suggestion
	for _, p := range parsed {
		if p.AIndex < 0 || p.AIndex >= len(unmatchedA) || p.BIndex < 0 || p.BIndex >= len(unmatchedB) {
			continue
		}
		if usedA[p.AIndex] || usedB[p.BIndex] {
			continue
		}
		usedA[p.AIndex], usedB[p.BIndex] = true, true
		out = append(out, Suggestion{
			A:          unmatchedA[p.AIndex],
			B:          unmatchedB[p.BIndex],
			Reason:     p.Reason,
			Confidence: p.Confidence,
		})
	}
	return out, nil
}

func buildPrompt(a, b domain.RecordSet) string {
	var sb strings.Builder
	sb.WriteString("You review a financial reconciliation.\n\n")
	sb.WriteString("Task:\n")
	sb.WriteString("- Below are expense or invoice records (list A) and bank records (list B) that did not match exactly.\n")
	sb.WriteString("- Propose pairs that most likely describe the same transaction.\n")
	sb.WriteString("- Each record may appear in at most one pair. Leave records unpaired when unsure.\n\n")
	sb.WriteString("List A:\n")
	writeRecords(&sb, a)
	sb.WriteString("\nList B:\n")
	writeRecords(&sb, b)
	sb.WriteString("\nReturn ONLY a raw JSON array of objects with fields\n")
	sb.WriteString("\"a_index\" (number), \"b_index\" (number), \"reason\" (string), \"confidence\" (number 0..1).\n")
	sb.WriteString("Do NOT wrap the response in code fences.\n")
	sb.WriteString("Output must begin with \"[\" and end with \"]\".\n")
	return sb.String()
}

func writeRecords(sb *strings.Builder, recs domain.RecordSet) {
	for i, r := range recs {
		fmt.Fprintf(sb, "%d. %s | %s | %s\n", i, r.DateString(), r.AmountString(), r.Description)
	}
}

// cleanModelJSON strips Markdown fences and any text around the JSON array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
