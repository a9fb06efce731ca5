package mapping

import (
	"context"
	"strings"

	"royaltydesk/internal/model"
)

// CategorySuggester is the AI category-suggestion collaborator. The same
// failure contract as ColumnSuggester applies: errors are swallowed here.
type CategorySuggester interface {
	SuggestCategories(ctx context.Context, reportCategories, contractCategories []string) (map[string]string, error)
}

// ResolveOptions carries the optional inputs of category resolution.
type ResolveOptions struct {
	// Saved maps report-category strings to contract categories from earlier
	// manual resolutions. A saved alias wins even over an exact match.
	// Aliases for categories not present in the current report are ignored.
	Saved map[string]string
	// Suggester is the AI collaborator; nil disables the AI layer.
	Suggester CategorySuggester
}

// ResolveCategories maps free-text report categories to the contract's
// canonical categories through the layered strategy saved → exact →
// substring → AI. Categories no layer resolves are absent from the mapping
// and tagged with source none; callers must treat those as requiring manual
// resolution before category-rate royalties can be computed.
//
// Substring matching is bidirectional and tries contract categories in
// declared order, first match wins, so resolution is deterministic for a
// given contract.
func ResolveCategories(ctx context.Context, reportCategories, contractCategories []string, opts ResolveOptions) (map[string]string, map[string]model.MappingSource) {
	result := make(map[string]string, len(reportCategories))
	sources := make(map[string]model.MappingSource, len(reportCategories))

	var unresolved []string
	for _, rc := range reportCategories {
		if alias, ok := opts.Saved[rc]; ok && alias != "" {
			result[rc] = alias
			sources[rc] = model.SourceSaved
			continue
		}
		if match, ok := exactCategoryMatch(rc, contractCategories); ok {
			result[rc] = match
			sources[rc] = model.SourceExact
			continue
		}
		if match, ok := substringCategoryMatch(rc, contractCategories); ok {
			result[rc] = match
			sources[rc] = model.SourceFuzzy
			continue
		}
		sources[rc] = model.SourceNone
		unresolved = append(unresolved, rc)
	}

	if len(unresolved) == 0 || opts.Suggester == nil {
		return result, sources
	}

	suggested, err := opts.Suggester.SuggestCategories(ctx, unresolved, contractCategories)
	if err != nil {
		return result, sources
	}
	for _, rc := range unresolved {
		match, ok := suggested[rc]
		if !ok {
			continue
		}
		// AI suggestions naming a category outside the contract's set are
		// discarded.
		if canonical, valid := exactCategoryMatch(match, contractCategories); valid {
			result[rc] = canonical
			sources[rc] = model.SourceAI
		}
	}
	return result, sources
}

// UnresolvedCategories returns the report categories whose source is none,
// in the order they were given.
func UnresolvedCategories(reportCategories []string, sources map[string]model.MappingSource) []string {
	var out []string
	for _, rc := range reportCategories {
		if sources[rc] == model.SourceNone {
			out = append(out, rc)
		}
	}
	return out
}

func exactCategoryMatch(report string, contractCategories []string) (string, bool) {
	r := strings.ToLower(strings.TrimSpace(report))
	for _, cc := range contractCategories {
		if r == strings.ToLower(strings.TrimSpace(cc)) {
			return cc, true
		}
	}
	return "", false
}

func substringCategoryMatch(report string, contractCategories []string) (string, bool) {
	r := strings.ToLower(strings.TrimSpace(report))
	if r == "" {
		return "", false
	}
	for _, cc := range contractCategories {
		c := strings.ToLower(strings.TrimSpace(cc))
		if c == "" {
			continue
		}
		if strings.Contains(r, c) || strings.Contains(c, r) {
			return cc, true
		}
	}
	return "", false
}
