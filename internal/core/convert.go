package core

// convert.go provides type coercion from raw source cells to property values.
//
// These functions handle the messy reality of exported feed data:
//   - Multiple date formats (GTFS YYYYMMDD, ISO, US, EU)
//   - Integers written as decimals ("3.0")
//   - Various boolean representations (yes/no, true/false, 1/0)
//   - List cells written as "a,b" or "['a', 'b']"
//   - Excel formula prefixes (="value")
//
// Every To* function reports ok=false for empty or malformed input so the
// caller decides between skipping the property and rejecting the row.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// DateLayout is the canonical form dates are stored in.
const DateLayout = "2006-01-02"

// Date layouts split by year format for proper 2-digit year handling
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"20060102",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		time.RFC3339,
		"2006-01-02T15:04:05-0700",
	}
)

// ToText trims the value. Empty strings are not ok.
func ToText(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}

// ToDate parses any supported layout and returns the date as YYYY-MM-DD.
func ToDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.Format(DateLayout), true
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	pivotYear := time.Now().Year() + TwoDigitYearPivot

	for _, layout := range twoDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t.Format(DateLayout), true
		}
	}

	return "", false
}

// ToFloat parses a decimal number. Thousands separators are removed.
func ToFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	s = strings.ReplaceAll(s, ",", "")
	if !numericRegex.MatchString(s) {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ToInt parses an integer. Decimal input with no fractional part ("3.0")
// is accepted; "3.5" is not.
func ToInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}

	f, ok := ToFloat(s)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// ToBool accepts various representations: true/false, yes/no, t/f, y/n, 1/0.
func ToBool(s string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// ToList splits a list cell. Both "a,b" and "['a', 'b']" forms are
// accepted; empty elements are dropped.
func ToList(s string) ([]string, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out, len(out) > 0
}

// Coerce converts a cleaned, non-empty raw value to the property value
// for the field type.
func Coerce(raw string, spec FieldSpec) (any, bool) {
	switch spec.Type {
	case FieldInt:
		if v, ok := ToInt(raw); ok {
			return v, true
		}
	case FieldFloat:
		if v, ok := ToFloat(raw); ok {
			return v, true
		}
	case FieldBool:
		if v, ok := ToBool(raw); ok {
			return v, true
		}
	case FieldDate:
		if v, ok := ToDate(raw); ok {
			return v, true
		}
	case FieldList:
		if v, ok := ToList(raw); ok {
			return v, true
		}
	case FieldEnum:
		if len(spec.EnumValues) == 0 {
			return raw, raw != ""
		}
		for _, ev := range spec.EnumValues {
			if strings.EqualFold(ev, raw) {
				return ev, true
			}
		}
	default:
		if v, ok := ToText(raw); ok {
			return v, true
		}
	}
	return nil, false
}

// CleanCell removes common export artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	// Remove leading '='
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	// Remove any surrounding quotes
	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}
