package filter

import (
	"fmt"
	"slices"
	"strings"
)

// SortBy orders results by one property.
type SortBy struct {
	Property   string
	Descending bool
}

func (s SortBy) String() string {
	if s.Descending {
		return s.Property + ":desc"
	}
	return s.Property
}

// ParseSort parses "NAME" or "NAME:desc" / "NAME:asc".
func ParseSort(s string) (SortBy, error) {
	name, dir, found := strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return SortBy{}, fmt.Errorf("filter: empty sort property in %q", s)
	}
	if !found {
		return SortBy{Property: name}, nil
	}
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "asc":
		return SortBy{Property: name}, nil
	case "desc":
		return SortBy{Property: name, Descending: true}, nil
	}
	return SortBy{}, fmt.Errorf("filter: unknown sort direction %q", dir)
}

// CompareFeatures orders a and b by keys. Absent or incomparable values
// sort after present ones in either direction.
func CompareFeatures(a, b Feature, keys []SortBy) int {
	for _, k := range keys {
		va, okA := a.Property(k.Property)
		vb, okB := b.Property(k.Property)
		switch {
		case !okA && !okB:
			continue
		case !okA:
			return 1
		case !okB:
			return -1
		}
		c, ok := CompareValues(va, vb)
		if !ok || c == 0 {
			continue
		}
		if k.Descending {
			return -c
		}
		return c
	}
	return 0
}

// Sort orders features by keys. The sort is stable: ties keep their
// input order.
func Sort[F Feature](features []F, keys []SortBy) {
	if len(keys) == 0 {
		return
	}
	slices.SortStableFunc(features, func(a, b F) int {
		return CompareFeatures(a, b, keys)
	})
}
