package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

var (
	utf8BOM   = []byte{0xEF, 0xBB, 0xBF}
	crlfFixer = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// extractPlain decodes .txt and .md résumés. A leading BOM is dropped, line
// endings become \n and invalid UTF-8 is replaced with U+FFFD.
func extractPlain(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	s := string(content)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\ufffd")
	}
	return crlfFixer.Replace(s), nil
}
