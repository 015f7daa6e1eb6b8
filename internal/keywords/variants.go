package keywords

import (
	"strings"
	"unicode/utf8"
)

// stopWords are Spanish connectors that never help narrow a search.
var stopWords = map[string]struct{}{
	"de":   {},
	"la":   {},
	"el":   {},
	"los":  {},
	"las":  {},
	"con":  {},
	"para": {},
}

// Variants returns the ordered fallback queries for keyword. The first element
// is always keyword itself, unmodified; later elements are progressively
// shorter forms built from its significant tokens.
func Variants(keyword string) []string {
	variants := []string{keyword}

	significant := significantTokens(keyword)

	if len(significant) > 2 {
		variants = append(variants,
			strings.Join(significant[:3], " "),
			strings.Join(significant[:2], " "),
		)
	}

	if len(significant) > 1 && utf8.RuneCountInString(significant[0]) > 3 {
		variants = append(variants, significant[0])
	}

	return dedupe(variants)
}

// significantTokens lowercases and splits keyword, dropping short tokens and
// stop words.
func significantTokens(keyword string) []string {
	fields := strings.Fields(strings.ToLower(keyword))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) <= 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
