package filter_test

import (
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/shapestore/pkg/filter"
)

type feature struct {
	id    string
	props map[string]any
	geom  orb.Geometry
}

func (f feature) ID() string             { return f.id }
func (f feature) Geometry() orb.Geometry { return f.geom }

func (f feature) Property(name string) (any, bool) {
	v, ok := f.props[name]
	return v, ok
}

var harbour = feature{
	id: "PORTS_0",
	props: map[string]any{
		"NAME":   "Harbour",
		"DEPTH":  12.5,
		"BERTHS": int64(4),
		"OPEN":   true,
		"BUILT":  time.Date(1999, 1, 2, 0, 0, 0, 0, time.UTC),
	},
	geom: orb.Point{4.5, 51.9},
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		filter filter.Filter
		want   bool
	}{
		{"eq string", filter.Compare{Property: "NAME", Op: filter.Eq, Value: "Harbour"}, true},
		{"ne string", filter.Compare{Property: "NAME", Op: filter.Ne, Value: "Harbour"}, false},
		{"lt float", filter.Compare{Property: "DEPTH", Op: filter.Lt, Value: 20.0}, true},
		{"ge int vs float", filter.Compare{Property: "BERTHS", Op: filter.Ge, Value: 4.0}, true},
		{"gt int vs string", filter.Compare{Property: "BERTHS", Op: filter.Gt, Value: "3"}, true},
		{"bool", filter.Compare{Property: "OPEN", Op: filter.Eq, Value: true}, true},
		{"date vs string", filter.Compare{Property: "BUILT", Op: filter.Lt, Value: "2000-01-01"}, true},
		{"absent never matches", filter.Compare{Property: "NOPE", Op: filter.Ne, Value: "x"}, false},
		{"incomparable", filter.Compare{Property: "OPEN", Op: filter.Ne, Value: 3.0}, false},
		{"between inclusive", filter.Between{Property: "DEPTH", Lower: 12.5, Upper: 13.0}, true},
		{"between outside", filter.Between{Property: "DEPTH", Lower: 0.0, Upper: 12.0}, false},
		{"is null absent", filter.IsNull{Property: "NOPE"}, true},
		{"is null present", filter.IsNull{Property: "NAME"}, false},
		{"like", filter.Like{Property: "NAME", Pattern: "har%"}, true},
		{"like match case", filter.Like{Property: "NAME", Pattern: "har%", MatchCase: true}, false},
		{"like single", filter.Like{Property: "NAME", Pattern: "H_rbo_r"}, true},
		{"like non-string", filter.Like{Property: "DEPTH", Pattern: "%"}, false},
		{"and", filter.And{filter.IsNull{Property: "NOPE"}, filter.Compare{Property: "OPEN", Op: filter.Eq, Value: true}}, true},
		{"empty and", filter.And{}, true},
		{"or", filter.Or{filter.IsNull{Property: "NAME"}, filter.Compare{Property: "DEPTH", Op: filter.Gt, Value: 1.0}}, true},
		{"empty or", filter.Or{}, false},
		{"not absent compare", filter.Not{Filter: filter.Compare{Property: "NOPE", Op: filter.Eq, Value: 1.0}}, true},
		{"ids", filter.IDs{"PORTS_1", "PORTS_0"}, true},
		{"ids miss", filter.IDs{"PORTS_1"}, false},
		{"bbox touching", filter.BBox{Bound: orb.Bound{Min: orb.Point{4.5, 51.9}, Max: orb.Point{5, 52}}}, true},
		{"bbox miss", filter.BBox{Bound: orb.Bound{Min: orb.Point{5, 52}, Max: orb.Point{6, 53}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Evaluate(harbour))
		})
	}
}

func TestBBoxNaN(t *testing.T) {
	nan := math.NaN()
	world := filter.BBox{Bound: orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}}

	assert.False(t, world.Evaluate(feature{geom: orb.Point{nan, nan}}))
	assert.False(t, world.Evaluate(feature{geom: orb.Point{nan, 10}}))
	assert.True(t, world.Evaluate(harbour))

	broken := filter.BBox{Bound: orb.Bound{Min: orb.Point{nan, nan}, Max: orb.Point{nan, nan}}}
	assert.False(t, broken.Evaluate(harbour))
}

func TestLikePatterns(t *testing.T) {
	tests := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"%", "", true},
		{"a%c", "abbbc", true},
		{"a%c", "abbbd", false},
		{"%b%", "abc", true},
		{"_", "é", true},
		{"__", "é", false},
		{"100\\%", "100%", true},
		{"100\\%", "1000", false},
		{"a\\_b", "a_b", true},
		{"a\\_b", "axb", false},
		{"%%x", "yyx", true},
		{"ÉTÉ", "été", false},
		{"ABC", "abc", true},
	}
	for _, tt := range tests {
		f := feature{props: map[string]any{"V": tt.value}}
		got := filter.Like{Property: "V", Pattern: tt.pattern}.Evaluate(f)
		assert.Equal(t, tt.want, got, "%q like %q", tt.value, tt.pattern)
	}

	custom := filter.Like{Property: "V", Pattern: "a*b?!*", Wildcard: '*', Single: '?', Escape: '!'}
	assert.True(t, custom.Evaluate(feature{props: map[string]any{"V": "axxbz*"}}))
	assert.False(t, custom.Evaluate(feature{props: map[string]any{"V": "axxbzz"}}))
}

func TestCompareValues(t *testing.T) {
	stamp := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		a, b any
		want int
		ok   bool
	}{
		{int64(3), 3.0, 0, true},
		{2.5, int64(3), -1, true},
		{"b", "a", 1, true},
		{"10", 9.0, 1, true},
		{"x", 9.0, 0, false},
		{false, true, -1, true},
		{"true", false, 1, true},
		{stamp, "2020-05-01", 0, true},
		{"2021-01-01", stamp, 1, true},
		{stamp, 5.0, 0, false},
	}
	for _, tt := range tests {
		got, ok := filter.CompareValues(tt.a, tt.b)
		assert.Equal(t, tt.ok, ok, "%v vs %v", tt.a, tt.b)
		if ok {
			assert.Equal(t, tt.want, got, "%v vs %v", tt.a, tt.b)
		}
	}
}

func TestSplitBBox(t *testing.T) {
	name := filter.Compare{Property: "NAME", Op: filter.Eq, Value: "x"}
	a := filter.BBox{Bound: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}}
	b := filter.BBox{Bound: orb.Bound{Min: orb.Point{5, -5}, Max: orb.Point{20, 8}}}
	far := filter.BBox{Bound: orb.Bound{Min: orb.Point{50, 50}, Max: orb.Point{60, 60}}}

	bound, rest, ok, empty := filter.SplitBBox(a)
	assert.True(t, ok)
	assert.False(t, empty)
	assert.Nil(t, rest)
	assert.Equal(t, a.Bound, bound)

	bound, rest, ok, empty = filter.SplitBBox(filter.And{a, name, b})
	assert.True(t, ok)
	assert.False(t, empty)
	assert.Equal(t, name, rest)
	assert.Equal(t, orb.Bound{Min: orb.Point{5, 0}, Max: orb.Point{10, 8}}, bound)

	_, _, ok, empty = filter.SplitBBox(filter.And{a, far})
	assert.True(t, ok)
	assert.True(t, empty)

	_, rest, ok, _ = filter.SplitBBox(filter.Or{a, name})
	assert.False(t, ok)
	assert.Equal(t, filter.Or{a, name}, rest)
}

func TestCollectIDs(t *testing.T) {
	name := filter.Compare{Property: "NAME", Op: filter.Eq, Value: "x"}

	ids, rest, ok := filter.CollectIDs(filter.And{filter.IDs{"A", "B", "C"}, name, filter.IDs{"C", "A"}})
	assert.True(t, ok)
	assert.Equal(t, []string{"A", "C"}, ids)
	assert.Equal(t, name, rest)

	_, rest, ok = filter.CollectIDs(name)
	assert.False(t, ok)
	assert.Equal(t, name, rest)
}

func TestSort(t *testing.T) {
	fs := []feature{
		{id: "a", props: map[string]any{"N": 2.0, "S": "x"}},
		{id: "b", props: map[string]any{"S": "y"}},
		{id: "c", props: map[string]any{"N": 1.0, "S": "x"}},
		{id: "d", props: map[string]any{"N": 2.0, "S": "a"}},
	}
	ids := func() []string {
		var out []string
		for _, f := range fs {
			out = append(out, f.id)
		}
		return out
	}

	filter.Sort(fs, []filter.SortBy{{Property: "N"}})
	assert.Equal(t, []string{"c", "a", "d", "b"}, ids(), "stable, absent last")

	filter.Sort(fs, []filter.SortBy{{Property: "N", Descending: true}, {Property: "S"}})
	assert.Equal(t, []string{"d", "a", "c", "b"}, ids(), "absent last when descending too")
}

func TestParseSort(t *testing.T) {
	s, err := filter.ParseSort("NAME:desc")
	require.NoError(t, err)
	assert.Equal(t, filter.SortBy{Property: "NAME", Descending: true}, s)
	assert.Equal(t, "NAME:desc", s.String())

	s, err = filter.ParseSort("NAME")
	require.NoError(t, err)
	assert.False(t, s.Descending)

	_, err = filter.ParseSort("NAME:sideways")
	assert.Error(t, err)
	_, err = filter.ParseSort(":desc")
	assert.Error(t, err)
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		in   string
		want filter.Filter
	}{
		{"DEPTH>=10", filter.Compare{Property: "DEPTH", Op: filter.Ge, Value: 10.0}},
		{"NAME = 'Harbour'", filter.Compare{Property: "NAME", Op: filter.Eq, Value: "Harbour"}},
		{"NAME<>x", filter.Compare{Property: "NAME", Op: filter.Ne, Value: "x"}},
		{"CODE!='12'", filter.Compare{Property: "CODE", Op: filter.Ne, Value: "12"}},
		{"OPEN=true", filter.Compare{Property: "OPEN", Op: filter.Eq, Value: true}},
		{"NAME~har%", filter.Like{Property: "NAME", Pattern: "har%"}},
		{"NOTE is null", filter.IsNull{Property: "NOTE"}},
		{"NOTE IS NOT NULL", filter.Not{Filter: filter.IsNull{Property: "NOTE"}}},
	}
	for _, tt := range tests {
		got, err := filter.ParseCondition(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"DEPTH", "=5", ""} {
		_, err := filter.ParseCondition(bad)
		assert.Error(t, err, bad)
	}
}
