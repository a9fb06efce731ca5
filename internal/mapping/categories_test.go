package mapping

import (
	"context"
	"errors"
	"testing"

	"royaltydesk/internal/model"
)

type stubCategorySuggester struct {
	result map[string]string
	err    error
	called bool
}

func (s *stubCategorySuggester) SuggestCategories(_ context.Context, _, _ []string) (map[string]string, error) {
	s.called = true
	return s.result, s.err
}

func TestResolveCategories_Layers(t *testing.T) {
	t.Parallel()

	contract := []string{"Apparel", "Accessories", "Home Goods"}
	report := []string{"apparel", "Mens Apparel", "Accessories", "Misc"}
	result, sources := ResolveCategories(context.Background(), report, contract, ResolveOptions{})

	if result["apparel"] != "Apparel" || sources["apparel"] != model.SourceExact {
		t.Fatalf("case-insensitive exact match failed: %q/%s", result["apparel"], sources["apparel"])
	}
	if result["Mens Apparel"] != "Apparel" || sources["Mens Apparel"] != model.SourceFuzzy {
		t.Fatalf("substring match failed: %q/%s", result["Mens Apparel"], sources["Mens Apparel"])
	}
	if result["Accessories"] != "Accessories" {
		t.Fatalf("identity match failed: %q", result["Accessories"])
	}
	if _, ok := result["Misc"]; ok || sources["Misc"] != model.SourceNone {
		t.Fatalf("Misc should be unresolved, got %q/%s", result["Misc"], sources["Misc"])
	}

	unresolved := UnresolvedCategories(report, sources)
	if len(unresolved) != 1 || unresolved[0] != "Misc" {
		t.Fatalf("unexpected unresolved set: %v", unresolved)
	}
}

func TestResolveCategories_SavedWinsOverExact(t *testing.T) {
	t.Parallel()

	contract := []string{"Apparel", "Accessories"}
	saved := map[string]string{"Apparel": "Accessories"}
	result, sources := ResolveCategories(context.Background(), []string{"Apparel"}, contract, ResolveOptions{Saved: saved})
	if result["Apparel"] != "Accessories" || sources["Apparel"] != model.SourceSaved {
		t.Fatalf("saved alias must win over exact: %q/%s", result["Apparel"], sources["Apparel"])
	}
}

func TestResolveCategories_SubstringDeclaredOrder(t *testing.T) {
	t.Parallel()

	// "Goods" is a substring of both contract categories; declared order wins.
	contract := []string{"Home Goods", "Sporting Goods"}
	result, _ := ResolveCategories(context.Background(), []string{"Goods"}, contract, ResolveOptions{})
	if result["Goods"] != "Home Goods" {
		t.Fatalf("expected first declared category, got %q", result["Goods"])
	}
}

func TestResolveCategories_AILayer(t *testing.T) {
	t.Parallel()

	contract := []string{"Apparel", "Accessories"}
	stub := &stubCategorySuggester{result: map[string]string{
		"Tees":    "Apparel",
		"Posters": "Wall Art", // not a contract category; must be discarded
	}}
	result, sources := ResolveCategories(context.Background(), []string{"Tees", "Posters"}, contract, ResolveOptions{Suggester: stub})

	if !stub.called {
		t.Fatalf("suggester not called for unresolved categories")
	}
	if result["Tees"] != "Apparel" || sources["Tees"] != model.SourceAI {
		t.Fatalf("AI suggestion not applied: %q/%s", result["Tees"], sources["Tees"])
	}
	if _, ok := result["Posters"]; ok {
		t.Fatalf("suggestion outside contract set must be discarded")
	}
}

func TestResolveCategories_AIErrorLeavesUnresolved(t *testing.T) {
	t.Parallel()

	stub := &stubCategorySuggester{err: errors.New("quota exceeded")}
	result, sources := ResolveCategories(context.Background(), []string{"Tees"}, []string{"Apparel"}, ResolveOptions{Suggester: stub})
	if len(result) != 0 || sources["Tees"] != model.SourceNone {
		t.Fatalf("AI error must leave categories unresolved: %v/%s", result, sources["Tees"])
	}
}

func TestResolveCategories_AllResolvedSkipsAI(t *testing.T) {
	t.Parallel()

	stub := &stubCategorySuggester{}
	ResolveCategories(context.Background(), []string{"Apparel"}, []string{"Apparel"}, ResolveOptions{Suggester: stub})
	if stub.called {
		t.Fatalf("suggester must not be called when every category is resolved")
	}
}
