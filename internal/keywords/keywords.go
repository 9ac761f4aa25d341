// Package keywords normalizes free-text captions and queries into tag sets.
package keywords

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxLength is the longest keyword, in characters, the file store holds
const MaxLength = 255

// Parse splits s on whitespace and commas, lower-cases every term and drops
// empties and duplicates. First-seen order is kept.
func Parse(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		term := Normalize(f)
		if term == "" {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}

// Normalize trims and lower-cases a single term
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Oversized returns the first term longer than MaxLength
func Oversized(terms []string) (string, bool) {
	for _, t := range terms {
		if utf8.RuneCountInString(t) > MaxLength {
			return t, true
		}
	}
	return "", false
}
