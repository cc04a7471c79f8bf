package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Operators recognized by ParseCondition, longest first.
var conditionOps = []struct {
	text string
	op   Op
	like bool
}{
	{">=", Ge, false},
	{"<=", Le, false},
	{"<>", Ne, false},
	{"!=", Ne, false},
	{"=", Eq, false},
	{"<", Lt, false},
	{">", Gt, false},
	{"~", Eq, true},
}

// ParseCondition parses a single command-line condition.
//
// Accepted forms are FIELD<op>VALUE with op one of = <> != < <= > >=,
// FIELD~PATTERN for a case-insensitive Like with % and _ wildcards, and
// "FIELD is null" / "FIELD is not null". Unquoted values that parse as
// numbers or booleans are typed accordingly; quote a value to keep it a
// string.
//
// Example:
//
//	f, err := filter.ParseCondition("DEPTH>=10")
func ParseCondition(s string) (Filter, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if name, ok := strings.CutSuffix(lower, " is not null"); ok {
		return Not{Filter: IsNull{Property: strings.TrimSpace(s[:len(name)])}}, nil
	}
	if name, ok := strings.CutSuffix(lower, " is null"); ok {
		return IsNull{Property: strings.TrimSpace(s[:len(name)])}, nil
	}

	pos, which := -1, -1
	for i, c := range conditionOps {
		if p := strings.Index(s, c.text); p > 0 && (pos < 0 || p < pos) {
			pos, which = p, i
		}
	}
	if pos < 0 {
		return nil, fmt.Errorf("filter: no operator in condition %q", s)
	}
	c := conditionOps[which]
	name := strings.TrimSpace(s[:pos])
	raw := strings.TrimSpace(s[pos+len(c.text):])
	if name == "" {
		return nil, fmt.Errorf("filter: missing property in condition %q", s)
	}

	if c.like {
		return Like{Property: name, Pattern: unquote(raw)}, nil
	}
	return Compare{Property: name, Op: c.op, Value: literal(raw)}, nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func literal(s string) any {
	if q := unquote(s); q != s {
		return q
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
