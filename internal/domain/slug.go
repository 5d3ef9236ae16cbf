package domain

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var nonSlugRunes = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// ToSlug builds the canonical product key: NFKD, "+" spelled out, combining
// marks dropped, lowercased, and every other non-alphanumeric run collapsed
// to a single hyphen.
func ToSlug(value string) string {
	s := norm.NFKD.String(strings.TrimSpace(value))
	s = strings.ReplaceAll(s, "+", " plus ")
	s = strings.Map(func(r rune) rune {
		if r >= 0x0300 && r <= 0x036F {
			return -1
		}
		return r
	}, s)
	s = strings.ToLower(s)
	s = nonSlugRunes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// SlugToProductName turns "redmi-note-15" into "Redmi Note 15".
func SlugToProductName(slug string) string {
	parts := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' })
	for i, part := range parts {
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}
