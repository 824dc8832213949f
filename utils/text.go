package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s, strips diacritics and collapses whitespace, so
// "Los Alcázares " and "los alcazares" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return NormaliseText(strings.ToLower(out))
}

// FoldKey is Fold with every run of non-alphanumerics reduced to one space,
// for building grouping keys from free-text names.
func FoldKey(s string) string {
	folded := Fold(s)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

// Slugify turns a display name into a URL slug: "Sunset Villas II" -> "sunset-villas-ii".
func Slugify(s string) string {
	return strings.ReplaceAll(FoldKey(s), " ", "-")
}

// NormaliseText strips leading/trailing whitespace and collapses internal whitespace.
func NormaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
