package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain returns content as text, replacing invalid UTF-8 with U+FFFD.
func extractPlain(content []byte) (string, error) {
	s := string(content)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return s, nil
}
