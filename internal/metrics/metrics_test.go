package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"bioval/pkg/domain"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.Records("import", 3)
	r.Records("import", 2)
	r.Violations(domain.Result{Violations: []domain.Violation{
		{Rule: "required_fields", Severity: domain.SeverityBlock},
		{Rule: "required_fields", Severity: domain.SeverityBlock},
		{Rule: "event_name", Severity: domain.SeverityWarn},
	}})
	r.Positions("BIOFLUID", 120, 33)
	r.LabIDsAssigned(2)
	r.LabIDsAssigned(0)
	r.Conflicts(ScopeReference, 4)

	if got := testutil.ToFloat64(r.records.WithLabelValues("import")); got != 5 {
		t.Fatalf("records = %v", got)
	}
	if got := testutil.ToFloat64(r.violations.WithLabelValues("required_fields", "block")); got != 2 {
		t.Fatalf("block violations = %v", got)
	}
	if got := testutil.ToFloat64(r.violations.WithLabelValues("event_name", "warn")); got != 1 {
		t.Fatalf("warn violations = %v", got)
	}
	if got := testutil.ToFloat64(r.available.WithLabelValues("BIOFLUID")); got != 120 {
		t.Fatalf("available = %v", got)
	}
	if got := testutil.ToFloat64(r.selected.WithLabelValues("BIOFLUID")); got != 33 {
		t.Fatalf("selected = %v", got)
	}
	if got := testutil.ToFloat64(r.assigned); got != 2 {
		t.Fatalf("assigned = %v", got)
	}
	if got := testutil.ToFloat64(r.conflicts.WithLabelValues(ScopeReference)); got != 4 {
		t.Fatalf("conflicts = %v", got)
	}
}

func TestStageAndTextfile(t *testing.T) {
	r := New()
	done := r.Stage("validate")
	done()
	if n := testutil.CollectAndCount(r.stages); n != 1 {
		t.Fatalf("expected one stage series, got %d", n)
	}

	path := filepath.Join(t.TempDir(), "bioval.prom")
	if err := r.WriteFile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{"bioval_stage_duration_seconds", "bioval_lab_ids_assigned_total"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("textfile missing %s:\n%s", want, data)
		}
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Records("import", 1)
	r.Violations(domain.Result{})
	r.Positions("DNA", 1, 1)
	r.LabIDsAssigned(1)
	r.Conflicts(ScopeInternal, 1)
	r.Stage("x")()
	if r.Registry() != nil {
		t.Fatalf("nil recorder should have no registry")
	}
	if err := r.WriteFile("/nonexistent/dir/file"); err != nil {
		t.Fatalf("nil recorder write should be a no-op: %v", err)
	}
}
