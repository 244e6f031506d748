package dedupe

import "testing"

func TestFilterParagraphs_RemovesNearDuplicates(t *testing.T) {
	paragraphs := []string{
		"The quick brown fox jumps over the lazy dog near the riverbank at dawn.",
		"The quick brown fox jumps over the lazy dog near the riverbank at sunrise.",
		"A completely unrelated paragraph about quantum computing and entanglement theory.",
	}
	out := FilterParagraphs(paragraphs, DefaultThreshold)
	if len(out) != 2 {
		t.Fatalf("expected 2 paragraphs after dedup, got %d: %v", len(out), out)
	}
}

func TestFilterParagraphs_KeepsShortParagraphs(t *testing.T) {
	paragraphs := []string{"short one", "short one"}
	out := FilterParagraphs(paragraphs, DefaultThreshold)
	if len(out) != 2 {
		t.Fatalf("expected short paragraphs to bypass dedup, got %d", len(out))
	}
}

func TestContainsAnyKeyword(t *testing.T) {
	if !ContainsAnyKeyword("Golang concurrency patterns", []string{"concurrency"}) {
		t.Fatal("expected match")
	}
	if ContainsAnyKeyword("Golang concurrency patterns", []string{"nonexistent"}) {
		t.Fatal("expected no match")
	}
	if !ContainsAnyKeyword("anything", nil) {
		t.Fatal("expected empty keyword list to match everything")
	}
}
