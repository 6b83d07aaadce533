package dedupe

import (
	"strings"
	"unicode"
)

// fillerWords are dropped during name normalization; they carry no signal
// for telling two exercise entries apart.
var fillerWords = map[string]bool{
	"workout":  true,
	"exercise": true,
	"training": true,
	"session":  true,
}

// NormalizeName lower-cases, strips punctuation, collapses whitespace, and
// removes common filler words from an exercise name.
func NormalizeName(name string) string {
	lowered := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			// Punctuation becomes a separator so "run/walk" splits cleanly.
			return ' '
		}
	}, name)

	fields := strings.Fields(lowered)
	kept := fields[:0]
	for _, f := range fields {
		if !fillerWords[f] {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

// NameSimilarity returns the normalized Levenshtein similarity of two
// already-normalized names: 1 - editDistance/maxLength, in [0,1].
// Symmetric by construction. Two empty strings compare as identical, so
// names made entirely of filler words ("Workout" vs "Session") still match.
func NameSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

// levenshtein computes the edit distance with a rolling two-row table.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
