// Package namematch scores how closely a submitted name matches a
// personnel record name. Pure functions, no I/O.
package namematch

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Normalize lowercases a name, trims it, and collapses internal runs of
// whitespace to single spaces
func Normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Similarity returns a 0-100 score for how closely two names match after
// normalization. Identical normalized names score 100; the score decays
// with edit distance relative to the longer name.
func Similarity(a, b string) int {
	na := Normalize(a)
	nb := Normalize(b)

	if na == nb {
		return 100
	}

	// Rune counts, matching the unit the edit distance is computed in
	longest := utf8.RuneCountInString(na)
	if l := utf8.RuneCountInString(nb); l > longest {
		longest = l
	}
	if longest == 0 {
		return 100
	}

	distance := levenshtein.ComputeDistance(na, nb)
	score := 100 * (longest - distance) / longest

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
