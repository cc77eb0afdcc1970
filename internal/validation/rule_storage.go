package validation

import (
	"fmt"
	"strconv"

	"bioval/internal/grid"
	"bioval/pkg/domain"
)

const (
	ruleMaterialStorage = "material_storage"
	ruleStorageRange    = "storage_range"
)

// materialStorageRule checks that a tube sits in a position and freezer legal
// for its material class.
type materialStorageRule struct {
	catalog *grid.Catalog
}

func (materialStorageRule) Name() string { return ruleMaterialStorage }

func (r materialStorageRule) Evaluate(rec domain.Record, row int) domain.Result {
	raw := rec.Get(domain.FieldBiomaterial)
	material, ok := r.catalog.Classify(raw)
	if !ok {
		return blocked(row, domain.FieldBiomaterial, fmt.Sprintf("Row %d: Unknown or unsupported material '%s'", row, domain.CanonicalBiomaterial(raw)))
	}
	def, err := r.catalog.Lookup(string(material))
	if err != nil {
		return blocked(row, domain.FieldBiomaterial, fmt.Sprintf("Row %d: %v", row, err))
	}
	var res domain.Result
	if pos := rec.Get(domain.FieldTubePos); !def.AllowsPosition(pos) {
		res.Merge(blocked(row, domain.FieldTubePos, fmt.Sprintf("Row %d: Invalid tube-pos '%s' for %s (must be %s)", row, pos, raw, def.PositionRange())))
	}
	if freezer := rec.Get(domain.FieldFreezer); !def.AllowsFreezer(freezer) {
		res.Merge(blocked(row, domain.FieldFreezer, fmt.Sprintf("Row %d: %s must be stored in %s, not freezer '%s'.", row, raw, def.StorageLabel, freezer)))
	}
	return res
}

// storageRangeRule checks rack and box numbers. Blank values are left to the
// required-fields rule.
type storageRangeRule struct {
	limits Limits
}

func (storageRangeRule) Name() string { return ruleStorageRange }

func (r storageRangeRule) Evaluate(rec domain.Record, row int) domain.Result {
	var res domain.Result
	if rack := rec.Get(domain.FieldRack); rack != "" && !inRange(rack, r.limits.RackMin, r.limits.RackMax) {
		res.Merge(blocked(row, domain.FieldRack, fmt.Sprintf("Row %d: Invalid rack '%s'", row, rack)))
	}
	if box := rec.Get(domain.FieldBox); box != "" && !inRange(box, r.limits.BoxMin, r.limits.BoxMax) {
		res.Merge(blocked(row, domain.FieldBox, fmt.Sprintf("Row %d: Invalid box '%s'", row, box)))
	}
	return res
}

// inRange accepts only the plain decimal spelling of an integer in [lo, hi].
func inRange(s string, lo, hi int) bool {
	n, err := strconv.Atoi(s)
	if err != nil || strconv.Itoa(n) != s {
		return false
	}
	return n >= lo && n <= hi
}

func blocked(row int, field, msg string) domain.Result {
	return domain.Result{Violations: []domain.Violation{{
		Rule:     ruleFor(field),
		Severity: domain.SeverityBlock,
		Row:      row,
		Field:    field,
		Message:  msg,
	}}}
}

func ruleFor(field string) string {
	switch field {
	case domain.FieldRack, domain.FieldBox:
		return ruleStorageRange
	default:
		return ruleMaterialStorage
	}
}
