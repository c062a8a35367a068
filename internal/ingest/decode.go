package ingest

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode turns raw upload bytes into text. UTF-16 is recognised by its BOM;
// bytes that are not valid UTF-8 are read as Windows-1252, the usual encoding
// of spreadsheet exports on Swiss and German desktops.
func Decode(raw []byte) (string, error) {
	var dec *encoding.Decoder
	switch {
	case bytes.HasPrefix(raw, bomUTF8):
		return string(raw[len(bomUTF8):]), nil
	case bytes.HasPrefix(raw, bomUTF16LE):
		dec = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	case bytes.HasPrefix(raw, bomUTF16BE):
		dec = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
	case utf8.Valid(raw):
		return string(raw), nil
	default:
		dec = charmap.Windows1252.NewDecoder()
	}

	out, err := dec.Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decoding load profile: %w", err)
	}
	return string(out), nil
}
