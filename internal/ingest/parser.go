package ingest

import (
	"errors"
	"io"
	"time"
)

var (
	// ErrEmptyInput means the upload contained no non-blank lines.
	ErrEmptyInput = errors.New("load profile is empty")
	// ErrSchema means no time and value column could be resolved.
	ErrSchema = errors.New("load profile needs a time column and a value column")
	// ErrNoData means no row survived timestamp and value parsing.
	ErrNoData = errors.New("load profile contains no usable rows")
)

// Parser reads a load-profile export and returns the rows it could use.
type Parser interface {
	Parse(r io.Reader) (*Table, error)
}

// Options tune ingestion.
type Options struct {
	// Location applies to timestamps without an explicit zone. Nil means time.Local.
	Location *time.Location
}

// Row is one data line that carried a valid timestamp and value.
type Row struct {
	Time  time.Time
	Value float64
	// Aux holds the cells that are neither the time nor the value column.
	Aux  []string
	Line int
}

// Table is the result of ingesting one upload.
type Table struct {
	Rows []Row

	// ValuesArePower is true when values are kW readings rather than kWh.
	ValuesArePower bool
	// WattsAnnotated is true when auxiliary cells flagged the values as measured in W.
	WattsAnnotated bool

	Source      string
	Delimiter   rune
	HasHeader   bool
	TimeColumn  int
	ValueColumn int
	ValueHeader string
	SkippedRows int
}

const (
	SourceDelimited     = "delimited"
	SourceHomeAssistant = "homeassistant"
)
