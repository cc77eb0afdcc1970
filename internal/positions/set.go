package positions

import (
	"sort"

	"bioval/pkg/domain"
)

// Set is an unordered set of storage coordinates.
type Set map[domain.Coordinate]struct{}

// NewSet builds a set from the given coordinates.
func NewSet(coords ...domain.Coordinate) Set {
	s := make(Set, len(coords))
	for _, c := range coords {
		s[c] = struct{}{}
	}
	return s
}

// Add inserts a coordinate.
func (s Set) Add(c domain.Coordinate) { s[c] = struct{}{} }

// Contains reports membership.
func (s Set) Contains(c domain.Coordinate) bool {
	_, ok := s[c]
	return ok
}

// Len returns the number of coordinates.
func (s Set) Len() int { return len(s) }

// Minus returns the coordinates of s not present in other.
func (s Set) Minus(other Set) Set {
	out := make(Set, len(s))
	for c := range s {
		if !other.Contains(c) {
			out[c] = struct{}{}
		}
	}
	return out
}

// Natural returns the coordinates ordered by plain string comparison of
// (freezer, rack, box, position). Box grouping walks boxes in this order.
func (s Set) Natural() []domain.Coordinate {
	out := make([]domain.Coordinate, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return naturalLess(out[i], out[j]) })
	return out
}

func naturalLess(a, b domain.Coordinate) bool {
	if a.Freezer != b.Freezer {
		return a.Freezer < b.Freezer
	}
	if a.Rack != b.Rack {
		return a.Rack < b.Rack
	}
	if a.Box != b.Box {
		return a.Box < b.Box
	}
	return a.Position < b.Position
}
