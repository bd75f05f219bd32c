// Package textutil holds the text normalization used across the
// conversational engine: keyword matching, dataset search and user reply
// parsing are all accent- and case-insensitive.
package textutil

import (
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldChain = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// The enye is a letter of its own in Spanish, not an accented n: "año"
// must never collapse into "ano". It is masked with private-use runes
// around the mark-stripping pass and restored afterwards.
var (
	enyeMask   = strings.NewReplacer("ñ", "\ue000", "Ñ", "\ue001")
	enyeUnmask = strings.NewReplacer("\ue000", "ñ", "\ue001", "ñ")
)

// Fold lowercases, trims and strips diacritics, keeping ñ:
// "  Búscar " -> "buscar", "Año" -> "año".
func Fold(s string) string {
	// Compose first so a decomposed n + combining tilde is masked too.
	s = enyeMask.Replace(norm.NFC.String(s))
	folded, _, err := transform.String(foldChain, s)
	if err != nil {
		folded = s
	}
	return enyeUnmask.Replace(strings.ToLower(strings.TrimSpace(folded)))
}

// ContainsFold reports whether either folded string contains the other.
// Dataset search matches both directions: a user may paste a longer code
// than the stored cell or a fragment of it.
func ContainsFold(cell, needle string) bool {
	c := Fold(cell)
	n := Fold(needle)
	if c == "" || n == "" {
		return false
	}
	return strings.Contains(c, n) || strings.Contains(n, c)
}

// ParseIndexList parses a comma/space-separated list of integers, e.g.
// "1,3" or "1 3 4". It returns nil unless every token parses, so ordinary
// sentences are never mistaken for a column selection.
func ParseIndexList(s string) []int {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return nil
	}
	indices := make([]int, 0, len(fields))
	for _, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil
		}
		indices = append(indices, n)
	}
	return indices
}

// Stem returns the filename without its extension, the default name for a
// saved dataset format.
func Stem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
