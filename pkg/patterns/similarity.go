package patterns

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
)

// NormalizeName lowercases an identifier and collapses punctuation and
// camelCase boundaries into single underscores. "Email-Address" and
// "emailAddress" both normalize to "email_address".
func NormalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)

	prevUnderscore := true // suppress a leading underscore
	prevLowerOrDigit := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
			prevLowerOrDigit = true
		case r >= 'A' && r <= 'Z':
			if prevLowerOrDigit {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			prevUnderscore = false
			prevLowerOrDigit = false
		default:
			if !prevUnderscore {
				b.WriteByte('_')
			}
			prevUnderscore = true
			prevLowerOrDigit = false
		}
	}

	return strings.TrimRight(b.String(), "_")
}

// Tokens splits a normalized identifier into singularized tokens with
// duplicates removed, preserving first-seen order.
func Tokens(name string) []string {
	parts := strings.Split(NormalizeName(name), "_")
	seen := make(map[string]bool, len(parts))
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		p = inflection.Singular(p)
		if seen[p] {
			continue
		}
		seen[p] = true
		tokens = append(tokens, p)
	}
	return tokens
}

// TokenSetRatio scores how well a pattern stem fits a column name, in
// [0,1], over singularized token sets. Identical sets score 1.0, and so
// does stem containment: pattern "email" fully covers "user_email_addr".
// The relation is deliberately one-way. A name whose tokens are a strict
// subset of the pattern's ("id" against "patient_id") scores by edit
// similarity instead, so generic names stay available for context rules
// rather than inheriting a compound stem's full score.
func TokenSetRatio(name, pattern string) float64 {
	nameTokens := Tokens(name)
	patternTokens := Tokens(pattern)
	if len(nameTokens) == 0 || len(patternTokens) == 0 {
		return 0
	}

	nameSet := make(map[string]bool, len(nameTokens))
	for _, t := range nameTokens {
		nameSet[t] = true
	}

	var inter, patternOnly []string
	interSet := make(map[string]bool)
	for _, t := range patternTokens {
		if nameSet[t] {
			inter = append(inter, t)
			interSet[t] = true
		} else {
			patternOnly = append(patternOnly, t)
		}
	}
	var nameOnly []string
	for _, t := range nameTokens {
		if !interSet[t] {
			nameOnly = append(nameOnly, t)
		}
	}

	if len(patternOnly) == 0 {
		return 1.0
	}

	sort.Strings(inter)
	sort.Strings(nameOnly)
	sort.Strings(patternOnly)

	base := strings.Join(inter, " ")
	nameFull := strings.TrimSpace(base + " " + strings.Join(nameOnly, " "))
	patternFull := strings.TrimSpace(base + " " + strings.Join(patternOnly, " "))

	return maxFloat(editRatio(base, patternFull), editRatio(nameFull, patternFull))
}

// editRatio converts edit distance into a [0,1] similarity score.
func editRatio(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	return 1.0 - float64(editDistance(a, b))/float64(maxLen)
}

// editDistance calculates the Levenshtein distance between two strings
// using a single pair of DP rows.
func editDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = minInt(
				curr[j-1]+1,    // insertion
				prev[j]+1,      // deletion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}

func minInt(a, b, c int) int {
	if a <= b && a <= c {
		return a
	}
	if b <= c {
		return b
	}
	return c
}

func maxFloat(a, b float64) float64 {
	if a >= b {
		return a
	}
	return b
}
