package domain

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities decide whether a record set is rejected.
const (
	// SeverityBlock rejects the record set.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported but never rejects.
	SeverityWarn Severity = "warn"
)

// Violation reports a failed rule evaluation on one row.
type Violation struct {
	Rule     string
	Severity Severity
	Row      int
	Field    string
	Message  string
}

func (v Violation) String() string {
	return v.Message
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Blocking returns only the blocking violations.
func (r Result) Blocking() []Violation {
	return r.filter(SeverityBlock)
}

// Warnings returns only the warn-severity violations.
func (r Result) Warnings() []Violation {
	return r.filter(SeverityWarn)
}

// Messages returns the message of every violation in evaluation order.
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, v.Message)
	}
	return out
}

func (r Result) filter(sev Severity) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == sev {
			out = append(out, v)
		}
	}
	return out
}
