// internal/decide/normalize.go
package decide

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalize lowercases, strips diacritics and collapses whitespace, so the
// intent patterns can stay plain ASCII.
func normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	if out, _, err := transform.String(stripAccents, text); err == nil {
		text = out
	}
	return strings.Join(strings.Fields(text), " ")
}
