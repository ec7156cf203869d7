package docindex

import "unicode/utf8"

// stripInvalidUnicode drops bytes that don't decode as valid UTF-8 runes,
// including unpaired surrogate halves smuggled in from upstream connectors.
// The engine's write path applies this to the chunk's text fields after any
// 400 response, then resubmits that single write once.
func stripInvalidUnicode(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	out := make([]rune, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r != utf8.RuneError || size != 1 {
			out = append(out, r)
		}
		i += size
	}
	return string(out)
}
