// Package validation checks biorepository record sets: the structural check
// that every required column exists, and per-row business rules for material
// specific storage positions, freezers, racks and boxes.
//
// All rows are evaluated; a record set is rejected once, after the scan, with
// every blocking violation attached.
package validation

import (
	"bioval/internal/grid"
	"bioval/internal/tabular"
	"bioval/pkg/domain"
)

// Limits holds the row-level rule parameters.
type Limits struct {
	RequiredFields []string `yaml:"required_fields" validate:"min=1,dive,required"`
	RackMin        int      `yaml:"rack_min" validate:"min=0"`
	RackMax        int      `yaml:"rack_max" validate:"gtefield=RackMin"`
	BoxMin         int      `yaml:"box_min" validate:"min=0"`
	BoxMax         int      `yaml:"box_max" validate:"gtefield=BoxMin"`
	// ValidEvents lists accepted REDCap event names; empty disables the check.
	ValidEvents []string `yaml:"valid_events"`
}

// DefaultLimits returns the repository's rack and box ranges and study arms.
func DefaultLimits() Limits {
	fields := make([]string, len(domain.RequiredFields))
	copy(fields, domain.RequiredFields)
	return Limits{
		RequiredFields: fields,
		RackMin:        1,
		RackMax:        100,
		BoxMin:         1,
		BoxMax:         42,
		ValidEvents:    []string{"baseline_arm_1", "screening_arm_1", "follow_up_arm_1"},
	}
}

// Validator applies the structural check and the row rules.
type Validator struct {
	limits Limits
	engine *RulesEngine
}

// New builds a validator with the default rule set over catalog.
func New(catalog *grid.Catalog, limits Limits) *Validator {
	engine := NewRulesEngine()
	engine.Register(requiredFieldsRule{fields: limits.RequiredFields})
	engine.Register(materialStorageRule{catalog: catalog})
	engine.Register(storageRangeRule{limits: limits})
	if len(limits.ValidEvents) > 0 {
		engine.Register(newEventNameRule(limits.ValidEvents))
	}
	return &Validator{limits: limits, engine: engine}
}

// Engine exposes the rules engine, e.g. to register site-specific rules.
func (v *Validator) Engine() *RulesEngine { return v.engine }

// CheckStructure returns every required field absent from headers.
func (v *Validator) CheckStructure(headers []string) []string {
	have := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		have[h] = struct{}{}
	}
	var missing []string
	for _, field := range v.limits.RequiredFields {
		if _, ok := have[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

// ValidateRow evaluates every rule against one record. row is the file line number.
func (v *Validator) ValidateRow(rec domain.Record, row int) domain.Result {
	return v.engine.Evaluate(rec, row)
}

// TableOption adjusts a single ValidateTable call.
type TableOption func(*tableOptions)

type tableOptions struct {
	deferred map[string]struct{}
}

// DeferFields reports blank values of the named required fields as warnings.
// Use it for fields a later stage fills in, such as lab_id on import rows.
// The columns themselves stay required.
func DeferFields(fields ...string) TableOption {
	return func(o *tableOptions) {
		for _, f := range fields {
			o.deferred[f] = struct{}{}
		}
	}
}

// ValidateTable checks structure, then every row. Missing columns yield a
// *domain.StructuralError before any row is examined; blocking row violations
// yield a *domain.ValidationError listing all of them. The returned result
// always carries every violation found, warnings included.
func (v *Validator) ValidateTable(label string, table tabular.Table, opts ...TableOption) (domain.Result, error) {
	o := tableOptions{deferred: make(map[string]struct{})}
	for _, opt := range opts {
		opt(&o)
	}
	if missing := v.CheckStructure(table.Headers); len(missing) > 0 {
		return domain.Result{}, &domain.StructuralError{Label: label, Missing: missing}
	}
	var res domain.Result
	for i, rec := range table.Rows {
		row := v.ValidateRow(rec, domain.RowNumber(i))
		for j, viol := range row.Violations {
			if _, ok := o.deferred[viol.Field]; ok && viol.Rule == ruleRequiredFields {
				row.Violations[j].Severity = domain.SeverityWarn
			}
		}
		res.Merge(row)
	}
	if res.HasBlocking() {
		return res, &domain.ValidationError{Label: label, Violations: res.Blocking()}
	}
	return res, nil
}

// ValidateFile reads the CSV at path and runs ValidateTable on it.
func (v *Validator) ValidateFile(path, label string) (tabular.Table, domain.Result, error) {
	table, err := tabular.ReadFile(path)
	if err != nil {
		return tabular.Table{}, domain.Result{}, err
	}
	res, err := v.ValidateTable(label, table)
	if err != nil {
		return tabular.Table{}, res, err
	}
	return table, res, nil
}
