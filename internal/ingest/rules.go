package ingest

import (
	"regexp"
	"strings"
)

// Keyword lists are evaluated in order; the first column whose lower-cased
// header contains any keyword wins. Reordering changes which column is picked.
var (
	timeKeywords  = []string{"timestamp", "zeitpunkt", "zeit", "datetime", "start", "von"}
	valueKeywords = []string{"value", "kwh", "kw", "verbrauch", "lastgang", "leistung"}
)

// powerHeaderPatterns mark a value header as a power (kW) column. The device
// code is the OBIS register for instantaneous active power.
var powerHeaderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bkw\b`),
	regexp.MustCompile(`\bleistung\b`),
	regexp.MustCompile(`(?:\b1-0:)?\b1\.7\.0\b`),
}

var auxUnitPattern = regexp.MustCompile(`(?i)\b(k?w)\b`)

type columnSelection struct {
	time  int
	value int
}

// selectColumns applies the header rule table. header must be lower-cased.
func selectColumns(header []string) columnSelection {
	sel := columnSelection{time: matchColumn(header, timeKeywords), value: matchColumn(header, valueKeywords)}

	if sel.time < 0 {
		sel.time = 0
	}
	if sel.value < 0 || sel.value == sel.time {
		sel.value = 1
		if sel.time == 1 {
			sel.value = 0
		}
	}
	return sel
}

func matchColumn(header []string, keywords []string) int {
	for i, cell := range header {
		for _, kw := range keywords {
			if strings.Contains(cell, kw) {
				return i
			}
		}
	}
	return -1
}

func isPowerHeader(header string) bool {
	for _, p := range powerHeaderPatterns {
		if p.MatchString(header) {
			return true
		}
	}
	return false
}

// scanUnitToken looks for a standalone "w" or "kw" token in auxiliary text.
func scanUnitToken(cell string) (power, watts bool) {
	for _, m := range auxUnitPattern.FindAllStringSubmatch(cell, -1) {
		power = true
		if strings.EqualFold(m[1], "w") {
			watts = true
		}
	}
	return power, watts
}
