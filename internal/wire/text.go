package wire

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// Decode turns raw inbound bytes into a string, replacing invalid UTF-8
// sequences with U+FFFD so a corrupt frame never poisons later handlers.
func Decode(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		return string([]rune(string(raw)))
	}
	return string(out)
}
