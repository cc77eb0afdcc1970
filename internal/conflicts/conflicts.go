// Package conflicts detects storage coordinates claimed more than once, either
// within one record set or by an import record against the reference data.
package conflicts

import (
	"bioval/internal/positions"
	"bioval/pkg/domain"
)

// CheckInternal groups records by coordinate and fails with a
// *domain.DuplicatePositionError naming every coordinate used by two or more
// rows. Records with a blank coordinate component are ignored. Conflicts are
// reported in order of first appearance.
func CheckInternal(records []domain.Record, label string) error {
	rows := make(map[domain.Coordinate][]int)
	var order []domain.Coordinate
	for i, rec := range records {
		c, ok := rec.Coordinate()
		if !ok {
			continue
		}
		if _, seen := rows[c]; !seen {
			order = append(order, c)
		}
		rows[c] = append(rows[c], domain.RowNumber(i))
	}
	var found []domain.PositionConflict
	for _, c := range order {
		if len(rows[c]) > 1 {
			found = append(found, domain.PositionConflict{Coordinate: c, Rows: rows[c]})
		}
	}
	if len(found) > 0 {
		return &domain.DuplicatePositionError{Label: label, Internal: true, Conflicts: found}
	}
	return nil
}

// CheckAgainst flags every import record whose coordinate is already in
// occupied. It returns the number of conflicts, which is zero on success.
func CheckAgainst(records []domain.Record, occupied positions.Set, label string) (int, error) {
	var found []domain.PositionConflict
	for i, rec := range records {
		c, ok := rec.Coordinate()
		if !ok || !occupied.Contains(c) {
			continue
		}
		found = append(found, domain.PositionConflict{Coordinate: c, Rows: []int{domain.RowNumber(i)}})
	}
	if len(found) > 0 {
		return len(found), &domain.DuplicatePositionError{Label: label, Conflicts: found}
	}
	return 0, nil
}
