// Package mapping resolves detected columns and report categories against
// the canonical vocabulary and applies the result to parsed rows.
package mapping

import (
	"context"
	"strings"

	"royaltydesk/internal/model"
)

// ColumnSample is what the AI collaborator sees for one unresolved column.
type ColumnSample struct {
	Name         string   `json:"name"`
	SampleValues []string `json:"sample_values"`
}

// ColumnSuggester is the AI column-suggestion collaborator. Implementations
// must return an empty map rather than failing hard; any error returned here
// is swallowed by the classifier.
type ColumnSuggester interface {
	SuggestColumns(ctx context.Context, columns []ColumnSample, contractContext string) (map[string]model.CanonicalField, error)
}

// ClassifyOptions carries the optional inputs of column classification.
type ClassifyOptions struct {
	// Saved is a previously confirmed per-licensee mapping; entries win
	// verbatim over every other layer.
	Saved model.ColumnMapping
	// ContractContext describes the contract for the AI collaborator. When
	// empty the AI layer is skipped entirely (legacy mode).
	ContractContext string
	// Suggester is the AI collaborator; nil disables the AI layer.
	Suggester ColumnSuggester
	// SampleRows provides cell samples for unresolved columns.
	SampleRows []map[string]string
}

// fieldSynonyms is the ordered keyword table: the first field whose synonym
// list contains a substring of the normalized column name wins. The " ns"
// entry keeps its leading space so it can only match after a word break,
// never inside words like "Units".
var fieldSynonyms = []struct {
	field    model.CanonicalField
	synonyms []string
}{
	{model.FieldNetSales, []string{"net sales", "net sale", "net revenue", "net receipts", "net amount", " ns"}},
	{model.FieldGrossSales, []string{"gross sales", "gross sale", "gross revenue", "gross amount", "total sales", "invoiced", "sales amount"}},
	{model.FieldReturns, []string{"returns", "refunds", "allowances", "credits", "chargebacks"}},
	{model.FieldProductCategory, []string{"product category", "category", "product line", "product type", "item type", "class"}},
	{model.FieldLicenseeReportedRoyalty, []string{"royalty due", "royalties due", "royalty amount", "royalty owed", "royalties", "royalty", "amount due"}},
	{model.FieldTerritory, []string{"territory", "region", "country", "market"}},
}

// maxSampleValues bounds how many cell values accompany each column sent to
// the AI collaborator.
const maxSampleValues = 3

// ClassifyColumns maps each column name to a canonical field using the
// layered strategy saved → keyword → AI, and reports per-column sources.
// Columns no layer resolves map to ignore with source none. The AI layer
// never propagates a failure; it degrades to an empty suggestion set.
func ClassifyColumns(ctx context.Context, columnNames []string, opts ClassifyOptions) (model.ColumnMapping, map[string]model.MappingSource) {
	result := make(model.ColumnMapping, len(columnNames))
	sources := make(map[string]model.MappingSource, len(columnNames))

	var unresolved []string
	for _, name := range columnNames {
		if field, ok := opts.Saved[name]; ok && field.Valid() {
			result[name] = field
			sources[name] = model.SourceSaved
			continue
		}
		if field, ok := matchKeyword(name); ok {
			result[name] = field
			sources[name] = model.SourceKeyword
			continue
		}
		result[name] = model.FieldIgnore
		sources[name] = model.SourceNone
		unresolved = append(unresolved, name)
	}

	if len(unresolved) == 0 || opts.ContractContext == "" || opts.Suggester == nil {
		return result, sources
	}

	samples := make([]ColumnSample, 0, len(unresolved))
	for _, name := range unresolved {
		samples = append(samples, ColumnSample{
			Name:         name,
			SampleValues: sampleValues(opts.SampleRows, name),
		})
	}

	suggested, err := opts.Suggester.SuggestColumns(ctx, samples, opts.ContractContext)
	if err != nil {
		// Degraded AI is not an error condition for classification; the
		// deterministic layers already produced a usable mapping.
		return result, sources
	}
	for _, name := range unresolved {
		field, ok := suggested[name]
		if !ok || !field.Valid() {
			continue
		}
		result[name] = field
		sources[name] = model.SourceAI
	}
	return result, sources
}

// matchKeyword tests the lower-cased column name against the synonym table.
// The name is deliberately not trimmed: the " ns" synonym relies on a
// literal preceding space in the column name.
func matchKeyword(name string) (model.CanonicalField, bool) {
	normalized := strings.ToLower(name)
	for _, entry := range fieldSynonyms {
		for _, syn := range entry.synonyms {
			if strings.Contains(normalized, syn) {
				return entry.field, true
			}
		}
	}
	return "", false
}

func sampleValues(rows []map[string]string, column string) []string {
	var values []string
	for _, row := range rows {
		if v := strings.TrimSpace(row[column]); v != "" {
			values = append(values, v)
			if len(values) == maxSampleValues {
				break
			}
		}
	}
	return values
}
