package textutil

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldAccents decomposes s (NFKD), strips combining marks, and collapses
// whitespace. "Amélie" becomes "Amelie".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, s)
	if err != nil {
		return CollapseSpaces(s)
	}
	return CollapseSpaces(folded)
}
