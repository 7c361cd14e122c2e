package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Encoding names reported by DecodeText.
const (
	EncodingUTF8  = "utf-8"
	EncodingCP932 = "cp932"
)

// DecodeText returns content as UTF-8. UTF-8 (with or without BOM) is tried first; anything
// else is decoded as CP932 (Windows Shift_JIS), the encoding spreadsheets exported on Japanese
// Windows use. Bytes that are invalid in both become U+FFFD.
func DecodeText(content []byte) (string, string) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if utf8.Valid(content) {
		return string(content), EncodingUTF8
	}
	decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(content)
	if err != nil || !utf8.Valid(decoded) {
		return strings.ToValidUTF8(string(content), "\ufffd"), EncodingUTF8
	}
	return string(decoded), EncodingCP932
}

func extractPlain(content []byte) (string, error) {
	text, _ := DecodeText(content)
	return text, nil
}
