package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/shapestore/pkg/filter"
)

// parseBBox parses "minx,miny,maxx,maxy".
func parseBBox(s string) (*orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox %q: want minx,miny,maxx,maxy", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return nil, fmt.Errorf("bbox %q: minimum exceeds maximum", s)
	}
	return &orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

// parseWhere combines conditions with AND. No conditions yields nil.
func parseWhere(conds []string) (filter.Filter, error) {
	var and filter.And
	for _, c := range conds {
		f, err := filter.ParseCondition(c)
		if err != nil {
			return nil, err
		}
		and = append(and, f)
	}
	switch len(and) {
	case 0:
		return nil, nil
	case 1:
		return and[0], nil
	}
	return and, nil
}

// parseSort accepts repeated values as well as comma-separated lists.
func parseSort(keys []string) ([]filter.SortBy, error) {
	var out []filter.SortBy
	for _, k := range keys {
		for _, part := range strings.Split(k, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			s, err := filter.ParseSort(part)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
	}
	return out, nil
}
