package positions

import (
	"cmp"
	"sort"
	"strconv"

	"bioval/internal/grid"
	"bioval/pkg/domain"
)

// Compare orders two coordinates canonically: freezer rank, numeric rack,
// numeric box, row letter, numeric column. Values that are not numbers sort
// after numbers and compare as strings, which keeps the order total.
func Compare(c *grid.Catalog, a, b domain.Coordinate) int {
	if r := cmp.Compare(c.FreezerRank(a.Freezer), c.FreezerRank(b.Freezer)); r != 0 {
		return r
	}
	if r := cmp.Compare(a.Freezer, b.Freezer); r != 0 {
		return r
	}
	if r := compareNumeric(a.Rack, b.Rack); r != 0 {
		return r
	}
	if r := compareNumeric(a.Box, b.Box); r != 0 {
		return r
	}
	return ComparePosition(a.Position, b.Position)
}

// ComparePosition orders position codes by row letter then numeric column.
func ComparePosition(a, b string) int {
	ar, ac, aok := domain.SplitPosition(a)
	br, bc, bok := domain.SplitPosition(b)
	if aok && bok {
		if r := cmp.Compare(ar, br); r != 0 {
			return r
		}
		return cmp.Compare(ac, bc)
	}
	switch {
	case aok:
		return -1
	case bok:
		return 1
	}
	return cmp.Compare(a, b)
}

// SortCanonical sorts coordinates in place by Compare.
func SortCanonical(c *grid.Catalog, coords []domain.Coordinate) {
	sort.SliceStable(coords, func(i, j int) bool { return Compare(c, coords[i], coords[j]) < 0 })
}

func compareNumeric(a, b string) int {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return cmp.Compare(ai, bi)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return cmp.Compare(a, b)
}
