// Package dedupe provides near-duplicate paragraph filtering using Jaccard
// similarity over shingled word sets. No fuzzy-matching library appears in
// the retrieved example pack, so this is a small hand-rolled implementation
// over the standard library (see DESIGN.md).
package dedupe

import "strings"

// MinParagraphLength is the minimum paragraph length, in bytes, eligible
// for deduplication. Shorter paragraphs (headings, fragments) are always
// kept as-is.
const MinParagraphLength = 50

// DefaultThreshold is the similarity score at or above which two paragraphs
// are considered duplicates.
const DefaultThreshold = 0.85

// ShingleSize is the word n-gram size used to build comparison sets.
const ShingleSize = 3

// FilterParagraphs returns paragraphs with near-duplicates removed,
// preserving the order of first occurrence. Paragraphs shorter than
// MinParagraphLength are always kept.
func FilterParagraphs(paragraphs []string, threshold float64) []string {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	var kept []string
	var keptShingles []map[string]struct{}

	for _, p := range paragraphs {
		if len(p) < MinParagraphLength {
			kept = append(kept, p)
			continue
		}

		shingles := shingle(p, ShingleSize)
		duplicate := false
		for _, existing := range keptShingles {
			if jaccard(shingles, existing) >= threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, p)
		keptShingles = append(keptShingles, shingles)
	}
	return kept
}

// shingle splits text into lowercase words and builds the set of
// contiguous word n-grams of size n (or a set of individual words if the
// text is shorter than n words).
func shingle(text string, n int) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{})
	if len(words) < n {
		for _, w := range words {
			set[w] = struct{}{}
		}
		return set
	}
	for i := 0; i+n <= len(words); i++ {
		set[strings.Join(words[i:i+n], " ")] = struct{}{}
	}
	return set
}

// jaccard computes |A ∩ B| / |A ∪ B| for two shingle sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// ContainsAnyKeyword reports whether text contains any of the given
// keywords, case-insensitively. Used by tools to optionally filter
// paragraphs to those relevant to the original query.
func ContainsAnyKeyword(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
