package attrindex

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/beetlebugorg/shapestore/internal/dbf"
	"github.com/beetlebugorg/shapestore/pkg/filter"
)

// Result is the outcome of Translate.
//
// A record matches the original filter exactly when it is in Candidates
// (or Candidates is nil) and Residual, if any, evaluates true on it.
type Result struct {
	// Candidates holds the records passing the translated part of the
	// filter. nil means nothing was narrowed.
	Candidates *roaring.Bitmap
	// Order lists records in the requested sort order when the whole sort
	// could be answered by the index.
	Order []uint32
	// Residual is the part of the filter left to evaluate in memory.
	Residual filter.Filter
	// ResidualSort is the sort left to apply in memory.
	ResidualSort []filter.SortBy
}

// Narrowed reports whether the index restricted the candidate records.
func (r Result) Narrowed() bool { return r.Candidates != nil }

// Translate answers as much of f and sort as the index can.
//
// Comparisons, Like, IsNull and Between over indexed columns translate.
// An And translates its translatable children and keeps the rest as
// residual; Or and Not translate only when all of their children do.
// Anything else is left entirely residual.
func (idx *Index) Translate(ctx context.Context, f filter.Filter, sort []filter.SortBy) (Result, error) {
	var (
		where    string
		args     []any
		residual filter.Filter
	)
	if f != nil {
		where, args, residual = idx.translate(f)
	}
	orderBy, sortable := idx.orderBy(sort)

	res := Result{Residual: residual, ResidualSort: sort}
	if where == "" {
		res.Residual = f
	}
	if where == "" && !sortable {
		return res, nil
	}

	q := `SELECT rec FROM records`
	if where != "" {
		q += ` WHERE ` + where
	}
	if sortable {
		q += ` ORDER BY ` + orderBy
	}
	rows, err := idx.db.QueryContext(ctx, q, args...)
	if err != nil {
		return Result{}, fmt.Errorf("attribute index query: %w", err)
	}
	defer rows.Close()

	bm := roaring.New()
	var order []uint32
	for rows.Next() {
		var rec uint32
		if err := rows.Scan(&rec); err != nil {
			return Result{}, fmt.Errorf("attribute index query: %w", err)
		}
		bm.Add(rec)
		if sortable {
			order = append(order, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("attribute index query: %w", err)
	}

	if where != "" {
		res.Candidates = bm
	}
	if sortable {
		res.Order = order
		res.ResidualSort = nil
	}
	return res, nil
}

// orderBy renders sort as an ORDER BY list. Absent values sort last in
// either direction and ties fall back to record order.
func (idx *Index) orderBy(sort []filter.SortBy) (string, bool) {
	if len(sort) == 0 {
		return "", false
	}
	var parts []string
	for _, s := range sort {
		c, ok := idx.columns[s.Property]
		if !ok {
			return "", false
		}
		dir := "ASC"
		if s.Descending {
			dir = "DESC"
		}
		parts = append(parts, c.ident+" IS NULL", c.ident+" "+dir)
	}
	parts = append(parts, "rec")
	return strings.Join(parts, ", "), true
}

// translate splits f into a SQL condition and a residual filter. where is
// empty when nothing translated. Every condition produced is two-valued:
// absent values make comparisons false rather than NULL, so NOT behaves
// as in memory.
func (idx *Index) translate(f filter.Filter) (where string, args []any, residual filter.Filter) {
	switch t := f.(type) {
	case filter.Compare:
		c, ok := idx.columns[t.Property]
		if !ok {
			break
		}
		v, ok := bind(c.typ, t.Value)
		if !ok {
			break
		}
		return fmt.Sprintf("(%s IS NOT NULL AND %s %s ?)", c.ident, c.ident, t.Op), []any{v}, nil

	case filter.Between:
		c, ok := idx.columns[t.Property]
		if !ok {
			break
		}
		lo, ok1 := bind(c.typ, t.Lower)
		hi, ok2 := bind(c.typ, t.Upper)
		if !ok1 || !ok2 {
			break
		}
		return fmt.Sprintf("(%s IS NOT NULL AND %s BETWEEN ? AND ?)", c.ident, c.ident), []any{lo, hi}, nil

	case filter.IsNull:
		if c, ok := idx.columns[t.Property]; ok {
			return c.ident + " IS NULL", nil, nil
		}

	case filter.Like:
		c, ok := idx.columns[t.Property]
		if !ok || c.typ != dbf.String {
			break
		}
		if t.MatchCase {
			return fmt.Sprintf("(%s IS NOT NULL AND %s GLOB ?)", c.ident, c.ident), []any{globPattern(t)}, nil
		}
		return fmt.Sprintf(`(%s IS NOT NULL AND %s LIKE ? ESCAPE '\')`, c.ident, c.ident), []any{likePattern(t)}, nil

	case filter.And:
		var parts []string
		var rest filter.And
		for _, child := range t {
			w, a, r := idx.translate(child)
			if w == "" {
				rest = append(rest, child)
				continue
			}
			parts = append(parts, w)
			args = append(args, a...)
			if r != nil {
				rest = append(rest, r)
			}
		}
		if len(parts) == 0 {
			break
		}
		switch len(rest) {
		case 0:
			residual = nil
		case 1:
			residual = rest[0]
		default:
			residual = rest
		}
		return "(" + strings.Join(parts, " AND ") + ")", args, residual

	case filter.Or:
		if len(t) == 0 {
			return "0", nil, nil
		}
		var parts []string
		for _, child := range t {
			w, a, r := idx.translate(child)
			if w == "" || r != nil {
				return "", nil, f
			}
			parts = append(parts, w)
			args = append(args, a...)
		}
		return "(" + strings.Join(parts, " OR ") + ")", args, nil

	case filter.Not:
		w, a, r := idx.translate(t.Filter)
		if w == "" || r != nil {
			break
		}
		return "NOT " + w, a, nil
	}
	return "", nil, f
}

// bind converts a filter literal to the column representation, matching
// the conversions filter.CompareValues applies in memory.
func bind(typ dbf.FieldType, v any) (any, bool) {
	switch typ {
	case dbf.String:
		s, ok := v.(string)
		return s, ok

	case dbf.Decimal, dbf.Integer:
		n, ok := filter.Number(v)
		if !ok {
			s, isStr := v.(string)
			if !isStr {
				return nil, false
			}
			p, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, false
			}
			n = p
		}
		if math.IsNaN(n) {
			return nil, false
		}
		return n, true

	case dbf.Boolean:
		switch b := v.(type) {
		case bool:
			return storeValue(b), true
		case string:
			p, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, false
			}
			return storeValue(p), true
		}

	case dbf.Date, dbf.DateTime:
		var tm time.Time
		switch x := v.(type) {
		case time.Time:
			tm = x
		case string:
			p, ok := filter.ParseTime(x)
			if !ok {
				return nil, false
			}
			tm = p
		default:
			return nil, false
		}
		if tm.Nanosecond()%int(time.Millisecond) != 0 {
			return nil, false
		}
		return tm.UnixMilli(), true
	}
	return nil, false
}

// likePattern rewrites a Like pattern with % and _ wildcards and \ as the
// escape character.
func likePattern(l filter.Like) string {
	var b strings.Builder
	for _, tok := range l.Tokens() {
		switch {
		case tok.IsAny():
			b.WriteByte('%')
		case tok.IsSingle():
			b.WriteByte('_')
		default:
			if tok.Char == '%' || tok.Char == '_' || tok.Char == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(tok.Char)
		}
	}
	return b.String()
}

// globPattern rewrites a Like pattern for the case-sensitive GLOB
// operator, which has no escape character: literal metacharacters are
// wrapped in brackets.
func globPattern(l filter.Like) string {
	var b strings.Builder
	for _, tok := range l.Tokens() {
		switch {
		case tok.IsAny():
			b.WriteByte('*')
		case tok.IsSingle():
			b.WriteByte('?')
		default:
			switch tok.Char {
			case '*', '?', '[':
				b.WriteByte('[')
				b.WriteRune(tok.Char)
				b.WriteByte(']')
			default:
				b.WriteRune(tok.Char)
			}
		}
	}
	return b.String()
}
