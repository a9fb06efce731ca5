// Package ai implements the Gemini-backed suggestion collaborator used as
// the last resolution layer for columns and categories. Callers treat every
// failure mode here (no key, timeout, API error, unparseable response) as an
// empty suggestion set; nothing in this package may take the pipeline down.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"google.golang.org/genai"

	"royaltydesk/internal/mapping"
	"royaltydesk/internal/model"
)

const defaultModel = "gemini-2.0-flash"

// Suggester calls the Gemini API for column and category suggestions.
type Suggester struct {
	apiKey  string
	model   string
	timeout time.Duration
}

var (
	_ mapping.ColumnSuggester   = (*Suggester)(nil)
	_ mapping.CategorySuggester = (*Suggester)(nil)
)

// NewSuggester creates a Suggester. An empty model falls back to the
// default; a zero timeout falls back to 20s.
func NewSuggester(apiKey, modelName string, timeout time.Duration) *Suggester {
	if modelName == "" {
		modelName = defaultModel
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Suggester{apiKey: apiKey, model: modelName, timeout: timeout}
}

// SuggestColumns asks the model to map unresolved report columns to
// canonical fields. Field names outside the canonical set are discarded.
func (s *Suggester) SuggestColumns(ctx context.Context, columns []mapping.ColumnSample, contractContext string) (map[string]model.CanonicalField, error) {
	if len(columns) == 0 {
		return map[string]model.CanonicalField{}, nil
	}

	var b strings.Builder
	b.WriteString("Map each spreadsheet column from a licensee royalty report to one of these canonical fields: ")
	for i, f := range model.CanonicalFields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(f))
	}
	b.WriteString(".\nContract context: ")
	b.WriteString(contractContext)
	b.WriteString("\nColumns:\n")
	for _, col := range columns {
		fmt.Fprintf(&b, "- %q (sample values: %s)\n", col.Name, strings.Join(col.SampleValues, ", "))
	}
	b.WriteString("\nRespond with a JSON object mapping each column name to a canonical field. Use \"ignore\" when unsure.")

	raw, err := s.generate(ctx, b.String())
	if err != nil {
		return map[string]model.CanonicalField{}, err
	}

	parsed := map[string]string{}
	if err := decodeLenient(raw, &parsed); err != nil {
		return map[string]model.CanonicalField{}, err
	}

	result := make(map[string]model.CanonicalField, len(parsed))
	for name, field := range parsed {
		f := model.CanonicalField(strings.ToLower(strings.TrimSpace(field)))
		if f.Valid() {
			result[name] = f
		}
	}
	return result, nil
}

// SuggestCategories asks the model to map unresolved report categories to
// the contract's rate-table categories. Returns immediately without a call
// when there is nothing to resolve.
func (s *Suggester) SuggestCategories(ctx context.Context, reportCategories, contractCategories []string) (map[string]string, error) {
	if len(reportCategories) == 0 {
		return map[string]string{}, nil
	}

	var b strings.Builder
	b.WriteString("A licensing contract defines these product categories: ")
	b.WriteString(strings.Join(contractCategories, ", "))
	b.WriteString(".\nA licensee's royalty report uses these category labels: ")
	b.WriteString(strings.Join(reportCategories, ", "))
	b.WriteString(".\nRespond with a JSON object mapping each report label to the contract category it belongs to. Omit labels that match no contract category.")

	raw, err := s.generate(ctx, b.String())
	if err != nil {
		return map[string]string{}, err
	}

	parsed := map[string]string{}
	if err := decodeLenient(raw, &parsed); err != nil {
		return map[string]string{}, err
	}
	return parsed, nil
}

func (s *Suggester) generate(ctx context.Context, prompt string) (string, error) {
	if s.apiKey == "" {
		return "", fmt.Errorf("no API key configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("create genai client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0)),
		ResponseMIMEType: "application/json",
	}

	result, err := client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return result.Text(), nil
}

// decodeLenient parses model output into v, tolerating markdown fences,
// trailing commas and the other malformations LLMs produce.
func decodeLenient(raw string, v interface{}) error {
	raw = stripFences(raw)
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}
	repaired, err := jsonrepair.RepairJSON(raw)
	if err != nil {
		return fmt.Errorf("repair model output: %w", err)
	}
	return json.Unmarshal([]byte(repaired), v)
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}
