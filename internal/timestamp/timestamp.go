// Package timestamp turns the loosely formatted timestamps found in tariff
// payloads and load-profile exports into time.Time values.
package timestamp

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// layouts are tried in order for the direct parse step. Layouts without a zone
// are interpreted in the caller's location.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.RFC822Z,
	time.RFC822,
	time.UnixDate,
	time.ANSIC,
}

// swissPattern matches D.M.YY[YY][ T]H:MM[:SS].
var swissPattern = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4}|\d{2})[ T](\d{1,2}):(\d{2})(?::(\d{2}))?$`)

// Parse converts text into an instant. It returns false when no supported
// format matches or a component is out of range; it never fails loudly.
// Strings without a zone are read in loc (time.Local when nil).
func Parse(text string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}

	s := strings.TrimSpace(strings.TrimLeft(text, "\uFEFF"))
	if s == "" {
		return time.Time{}, false
	}

	if t, ok := parseLayouts(s, loc); ok {
		return t, true
	}

	if i := strings.IndexByte(s, ' '); i > 0 {
		if t, ok := parseLayouts(s[:i]+"T"+s[i+1:], loc); ok {
			return t, true
		}
	}

	return parseSwiss(s, loc)
}

func parseLayouts(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseSwiss(s string, loc *time.Location) (time.Time, bool) {
	m := swissPattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	second := 0
	if m[6] != "" {
		second, _ = strconv.Atoi(m[6])
	}
	if len(m[3]) == 2 {
		year += 2000
	}

	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	// time.Date normalizes 31.2. into March; reject instead.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}
