package ingest

import (
	"strings"
)

// Load decodes an upload and parses it with the Parser that fits its first
// line: Home Assistant history exports get the dedicated parser, everything
// else the delimited one.
func Load(raw []byte, opts Options) (*Table, error) {
	text, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return parserFor(text, opts).Parse(strings.NewReader(text))
}

func parserFor(text string, opts Options) Parser {
	firstLine, _, _ := strings.Cut(strings.TrimLeft(text, "\r\n"), "\n")
	if IsHomeAssistantHeader(strings.TrimRight(firstLine, "\r")) {
		return NewHomeAssistantParser(opts)
	}
	return NewDelimitedParser(opts)
}
