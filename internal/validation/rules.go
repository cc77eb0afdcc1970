package validation

import "bioval/pkg/domain"

// Rule evaluates one record and reports its violations.
type Rule interface {
	Name() string
	Evaluate(rec domain.Record, row int) domain.Result
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules in evaluation order.
func (e *RulesEngine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate executes every registered rule and aggregates their results.
// Evaluation never stops at the first violation.
func (e *RulesEngine) Evaluate(rec domain.Record, row int) domain.Result {
	var combined domain.Result
	for _, rule := range e.rules {
		combined.Merge(rule.Evaluate(rec, row))
	}
	return combined
}
