package validation

import (
	"fmt"

	"bioval/pkg/domain"
)

const ruleRequiredFields = "required_fields"

type requiredFieldsRule struct {
	fields []string
}

func (requiredFieldsRule) Name() string { return ruleRequiredFields }

func (r requiredFieldsRule) Evaluate(rec domain.Record, row int) domain.Result {
	var res domain.Result
	for _, field := range r.fields {
		if rec.Get(field) != "" {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     ruleRequiredFields,
			Severity: domain.SeverityBlock,
			Row:      row,
			Field:    field,
			Message:  fmt.Sprintf("Row %d: Missing value in '%s'", row, field),
		})
	}
	return res
}
