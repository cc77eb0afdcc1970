package validation

import (
	"fmt"
	"strings"

	"bioval/pkg/domain"
)

const ruleEventName = "event_name"

// eventNameRule warns about REDCap events outside the study's arms.
type eventNameRule struct {
	events map[string]struct{}
}

func newEventNameRule(events []string) eventNameRule {
	r := eventNameRule{events: make(map[string]struct{}, len(events))}
	for _, e := range events {
		r.events[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	return r
}

func (eventNameRule) Name() string { return ruleEventName }

func (r eventNameRule) Evaluate(rec domain.Record, row int) domain.Result {
	event := rec.Get(domain.FieldEventName)
	if event == "" {
		return domain.Result{}
	}
	if _, ok := r.events[strings.ToLower(event)]; ok {
		return domain.Result{}
	}
	return domain.Result{Violations: []domain.Violation{{
		Rule:     ruleEventName,
		Severity: domain.SeverityWarn,
		Row:      row,
		Field:    domain.FieldEventName,
		Message:  fmt.Sprintf("Row %d: Unexpected REDCap event '%s'", row, event),
	}}}
}
