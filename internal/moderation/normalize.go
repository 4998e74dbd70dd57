package moderation

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// fillers render as blank but sit outside the control/format/separator categories.
var fillers = map[rune]bool{
	'\u034F': true, // combining grapheme joiner
	'\u115F': true, // hangul choseong filler
	'\u1160': true, // hangul jungseong filler
	'\u17B4': true, // khmer vowel inherent aq
	'\u17B5': true, // khmer vowel inherent aa
	'\u2800': true, // braille pattern blank
	'\u3164': true, // hangul filler
	'\uFFA0': true, // halfwidth hangul filler
}

var invisible = runes.Predicate(func(r rune) bool {
	return unicode.In(r, unicode.Cc, unicode.Cf, unicode.Zs, unicode.Zl, unicode.Zp) || fillers[r]
})

// Normalize strips control, format, separator and known zero-width code
// points, so that visually identical messages compare equal.
func Normalize(content string) string {
	out, _, err := transform.String(runes.Remove(invisible), content)
	if err != nil {
		return content
	}
	return out
}
