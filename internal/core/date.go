// Package core holds the bookkeeping domain model: accounts, transactions,
// recurring templates and the derived balance computation.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date is a calendar date carried in its YYYY-MM-DD string form. Imported rows
// whose date could not be normalized keep their raw text verbatim, so a Date
// is not guaranteed to parse; Time reports whether it does.
type Date string

const dateLayout = "2006-01-02"

// NewDate builds a normalized Date from calendar components.
func NewDate(year, month, day int) Date {
	return Date(fmt.Sprintf("%04d-%02d-%02d", year, month, day))
}

// DateOf truncates a time.Time to its calendar date.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// Time parses the date. ok is false for raw strings preserved from imports.
func (d Date) Time() (time.Time, bool) {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// YearMonth returns the YYYY-MM prefix used as a spreadsheet sheet key, or ""
// when the date does not parse.
func (d Date) YearMonth() string {
	if _, ok := d.Time(); !ok {
		return ""
	}
	return string(d)[:7]
}

// NormalizeDate parses a raw date string accepting "-", "/", "." and "_" as
// separators. On failure it returns the input unchanged with ok=false; callers
// keep the raw text rather than fabricating a date.
func NormalizeDate(raw string) (Date, bool) {
	s := strings.TrimSpace(raw)
	for _, sep := range []string{"/", ".", "_"} {
		s = strings.ReplaceAll(s, sep, "-")
	}
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return Date(raw), false
	}
	year, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	day, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return Date(raw), false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return Date(raw), false
	}
	// Round-trip through time.Date to reject day overflow (e.g. Feb 30).
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return Date(raw), false
	}
	return DateOf(t), true
}
