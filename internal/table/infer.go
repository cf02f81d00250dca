package table

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// InferOptions controls value parsing during type inference.
type InferOptions struct {
	// DecimalComma reads "1.234,5" style numbers. Off means strict Go syntax.
	DecimalComma bool
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006", "02.01.2006"}

var datetimeLayouts = []string{
	time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02 15:04:05",
	"2006/01/02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
}

func parseDate(s string) (time.Time, bool) {
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseDatetime(s string) (time.Time, bool) {
	for _, l := range datetimeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseTime reads s with any of the date or datetime layouts.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, ok := parseDate(s); ok {
		return t, true
	}
	return parseDatetime(s)
}

// ParseNumber reads a numeric cell. Percent signs and non-breaking spaces are
// stripped; with DecimalComma, '.' and ' ' are read as thousands separators.
func ParseNumber(s string, opt InferOptions) (float64, bool) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, false
	}
	if opt.DecimalComma {
		raw = strings.TrimSuffix(raw, "%")
		raw = strings.ReplaceAll(raw, "\u00A0", "")
		raw = strings.ReplaceAll(raw, " ", "")
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.ReplaceAll(raw, ",", ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	// inf, Infinity and nan parse but are not data values.
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return err == nil
}

func isBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "false":
		return true
	}
	return false
}

// inferKind picks the narrowest kind that reads every non-null cell. A column
// with no values at all is text.
func inferKind(cells []string, opt InferOptions) Kind {
	allInt, allNum, allBool, allDate, allTemporal := true, true, true, true, true
	seen := 0
	for _, c := range cells {
		if IsNull(c) {
			continue
		}
		seen++
		c = strings.TrimSpace(c)
		if allInt && !isInt(c) {
			allInt = false
		}
		if allNum {
			if _, ok := ParseNumber(c, opt); !ok {
				allNum = false
			}
		}
		if allBool && !isBool(c) {
			allBool = false
		}
		if allDate {
			if _, ok := parseDate(c); !ok {
				allDate = false
			}
		}
		if allTemporal {
			if _, ok := ParseTime(c); !ok {
				allTemporal = false
			}
		}
		if !allNum && !allBool && !allTemporal {
			return KindText
		}
	}
	switch {
	case seen == 0:
		return KindText
	case allInt && !opt.DecimalComma:
		return KindInt
	case allNum:
		return KindFloat
	case allBool:
		return KindBool
	case allDate:
		return KindDate
	case allTemporal:
		return KindDatetime
	default:
		return KindText
	}
}
