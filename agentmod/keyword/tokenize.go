// Text tokenization helpers for content analysis.
package keyword

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]`)

// Lower-cases text with full Unicode case mapping, so "İ" becomes "i" followed by a combining dot.
func Lower(text string) string {
	// casers are stateful and must not be shared between goroutines
	return cases.Lower(language.Und).String(text)
}

// Splits free-form text in to lower-case tokens. Text is lower-cased first, then any character
// which is not a letter, digit, or whitespace acts as a separator. Diacritics are significant:
// "café" and "cafe" are different tokens, and combining marks split a word.
func TokenizeText(text string) []string {
	return strings.Fields(nonTokenChars.ReplaceAllString(Lower(text), " "))
}

// Distinct tokens of at least "minLen" runes.
func TokenSet(text string, minLen int) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range TokenizeText(text) {
		if utf8.RuneCountInString(tok) >= minLen {
			out[tok] = true
		}
	}
	return out
}

// Fraction of tokens in "content" which also appear in "context".
//
// Returns 1 (full overlap) when there is too little text to judge: no content tokens, or fewer
// than "minContextTokens" context tokens.
func OverlapRatio(content, context string, minContextTokens int) float64 {
	contentTokens := TokenSet(content, 2)
	contextTokens := TokenSet(context, 2)
	if len(contentTokens) == 0 || len(contextTokens) < minContextTokens {
		return 1
	}
	overlap := 0
	for tok := range contentTokens {
		if contextTokens[tok] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(contentTokens))
}

// Returns the first keyword which appears as a substring of "lower" (already lower-cased text).
// Empty keywords never match.
func ContainsAny(lower string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}

// Lower-cases and trims a keyword list, dropping empty and duplicate entries.
func NormalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}
