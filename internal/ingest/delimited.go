package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"tariff_dashboard/internal/timestamp"
)

// DelimitedParser reads CSV-like exports without assuming a delimiter, a header
// row or a column order.
type DelimitedParser struct {
	Options Options
}

func NewDelimitedParser(opts Options) *DelimitedParser {
	return &DelimitedParser{Options: opts}
}

func (p *DelimitedParser) Parse(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading load profile: %w", err)
	}
	text, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return Ingest(text, p.Options)
}

type line struct {
	text string
	num  int
}

// Ingest detects the layout of raw and extracts every row with a valid
// timestamp and value. Malformed rows are skipped, not reported.
func Ingest(raw string, opts Options) (*Table, error) {
	lines := splitLines(raw)
	if len(lines) == 0 {
		return nil, ErrEmptyInput
	}

	delim := detectDelimiter(lines[0].text)
	first := splitCells(lines[0].text, delim)

	table := &Table{Source: SourceDelimited, Delimiter: delim}
	data := lines

	if _, ok := timestamp.Parse(first[0], opts.Location); ok {
		if len(first) < 2 {
			return nil, fmt.Errorf("%w: first data line has %d column(s)", ErrSchema, len(first))
		}
		table.TimeColumn, table.ValueColumn = 0, 1
	} else {
		header := make([]string, len(first))
		for i, cell := range first {
			header[i] = strings.ToLower(cell)
		}
		if len(header) < 2 {
			return nil, fmt.Errorf("%w: header %q has %d column(s)", ErrSchema, lines[0].text, len(header))
		}

		sel := selectColumns(header)
		table.HasHeader = true
		table.TimeColumn, table.ValueColumn = sel.time, sel.value
		table.ValueHeader = header[sel.value]
		table.ValuesArePower = isPowerHeader(table.ValueHeader)
		data = lines[1:]
	}

	need := max(table.TimeColumn, table.ValueColumn)
	for _, l := range data {
		cells := splitCells(l.text, delim)
		if len(cells) <= need {
			table.SkippedRows++
			continue
		}

		ts, ok := timestamp.Parse(cells[table.TimeColumn], opts.Location)
		if !ok {
			table.SkippedRows++
			continue
		}
		value, ok := parseValue(cells[table.ValueColumn])
		if !ok {
			table.SkippedRows++
			continue
		}

		var aux []string
		for i, cell := range cells {
			if i == table.TimeColumn || i == table.ValueColumn {
				continue
			}
			aux = append(aux, cell)
			power, watts := scanUnitToken(cell)
			table.ValuesArePower = table.ValuesArePower || power
			table.WattsAnnotated = table.WattsAnnotated || watts
		}

		table.Rows = append(table.Rows, Row{Time: ts, Value: value, Aux: aux, Line: l.num})
	}

	if len(table.Rows) == 0 {
		return nil, fmt.Errorf("%w: %d line(s) read, none had a valid timestamp and value", ErrNoData, len(data))
	}
	return table, nil
}

func splitLines(raw string) []line {
	raw = strings.TrimPrefix(raw, "\uFEFF")
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	var lines []line
	for i, text := range strings.Split(raw, "\n") {
		if strings.TrimSpace(text) == "" {
			continue
		}
		lines = append(lines, line{text: text, num: i + 1})
	}
	return lines
}

func detectDelimiter(first string) rune {
	switch {
	case strings.ContainsRune(first, ';'):
		return ';'
	case strings.ContainsRune(first, '\t'):
		return '\t'
	default:
		return ','
	}
}

// splitCells splits one line, honouring double quotes when they are well formed.
func splitCells(text string, delim rune) []string {
	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	record, err := cr.Read()
	if err != nil {
		record = strings.Split(text, string(delim))
	}
	for i := range record {
		record[i] = strings.Trim(strings.TrimSpace(record[i]), `"`)
	}
	return record
}

// parseValue keeps digits, separators and signs, reads a comma as the decimal
// separator and a Unicode minus as '-', and rejects anything that is not a
// finite number.
func parseValue(cell string) (float64, bool) {
	var b strings.Builder
	for _, r := range cell {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+':
			b.WriteRune(r)
		case r == ',':
			b.WriteRune('.')
		case r == '\u2212':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return 0, false
	}

	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
