package embed

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns the content-address of a text: an xxhash of its
// normalized form. Two texts with identical normalized content always share a
// fingerprint, so they never produce two cache entries or two generator calls.
func Fingerprint(text string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(normalize(text)))
}

// normalize lowercases, collapses whitespace runs, and strips leading and
// trailing space. Deeper cleaning of raw bodies happens upstream.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
