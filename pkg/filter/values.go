package filter

import (
	"cmp"
	"strconv"
	"strings"
	"time"
)

// Layouts accepted when a string literal is compared with a time value.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102",
}

// ParseTime parses s with the layouts accepted by comparisons. Values
// without a zone are taken as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Number converts the numeric kinds to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// CompareValues orders a before, equal to, or after b. ok is false when
// the two cannot be compared.
//
// Numbers compare numerically across integer and float kinds. A string
// meets a number, bool or time by parsing the string into the other kind.
// Strings compare byte-wise. false sorts before true.
func CompareValues(a, b any) (c int, ok bool) {
	if x, isNum := Number(a); isNum {
		if y, ok := toNumber(b); ok {
			return cmp.Compare(x, y), true
		}
		return 0, false
	}
	switch x := a.(type) {
	case string:
		switch y := b.(type) {
		case string:
			return strings.Compare(x, y), true
		case bool, time.Time:
			c, ok := CompareValues(b, a)
			return -c, ok
		}
		if _, isNum := Number(b); isNum {
			c, ok := CompareValues(b, a)
			return -c, ok
		}
	case bool:
		if y, ok := toBool(b); ok {
			return boolRank(x) - boolRank(y), true
		}
	case time.Time:
		if y, ok := toTime(b); ok {
			return x.Compare(y), true
		}
	}
	return 0, false
}

func toNumber(v any) (float64, bool) {
	if n, ok := Number(v); ok {
		return n, true
	}
	if s, ok := v.(string); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return n, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		p, err := strconv.ParseBool(strings.TrimSpace(b))
		return p, err == nil
	}
	return false, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		return ParseTime(t)
	}
	return time.Time{}, false
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}
