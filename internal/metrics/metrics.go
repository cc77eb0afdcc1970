// Package metrics records the counters of a single run in a private
// Prometheus registry and can export them in the node-exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bioval/pkg/domain"
)

const namespace = "bioval"

// Conflict scopes.
const (
	ScopeInternal  = "internal"
	ScopeReference = "reference"
)

// Recorder holds the metrics of one run. A nil *Recorder discards everything.
type Recorder struct {
	reg        *prometheus.Registry
	records    *prometheus.CounterVec
	violations *prometheus.CounterVec
	available  *prometheus.GaugeVec
	selected   *prometheus.GaugeVec
	assigned   prometheus.Counter
	conflicts  *prometheus.CounterVec
	stages     *prometheus.HistogramVec
}

// New registers the run metrics on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		reg: reg,
		// Labels: source (import, reference)
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records read per source",
		}, []string{"source"}),
		// Labels: rule, severity (block, warn)
		violations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Rule violations found during row validation",
		}, []string{"rule", "severity"}),
		available: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "positions_available",
			Help:      "Free storage positions for a material",
		}, []string{"material"}),
		selected: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "positions_selected",
			Help:      "Positions proposed for the next storage batch",
		}, []string{"material"}),
		assigned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lab_ids_assigned_total",
			Help:      "Lab ids minted for new study ids",
		}),
		// Labels: scope (internal, reference)
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_conflicts_total",
			Help:      "Duplicate storage positions detected",
		}, []string{"scope"}),
		stages: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time per pipeline stage",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"stage"}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// Records counts rows read from source.
func (r *Recorder) Records(source string, n int) {
	if r == nil {
		return
	}
	r.records.WithLabelValues(source).Add(float64(n))
}

// Violations counts every violation of res by rule and severity.
func (r *Recorder) Violations(res domain.Result) {
	if r == nil {
		return
	}
	for _, v := range res.Violations {
		r.violations.WithLabelValues(v.Rule, string(v.Severity)).Inc()
	}
}

// Positions records availability and selection size for material.
func (r *Recorder) Positions(material string, available, selected int) {
	if r == nil {
		return
	}
	r.available.WithLabelValues(material).Set(float64(available))
	r.selected.WithLabelValues(material).Set(float64(selected))
}

// LabIDsAssigned counts newly minted lab ids.
func (r *Recorder) LabIDsAssigned(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.assigned.Add(float64(n))
}

// Conflicts counts duplicate positions found in scope.
func (r *Recorder) Conflicts(scope string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.conflicts.WithLabelValues(scope).Add(float64(n))
}

// Stage starts timing stage; call the returned func when it ends.
func (r *Recorder) Stage(stage string) func() {
	if r == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		r.stages.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// WriteFile exports the registry to path in textfile format.
func (r *Recorder) WriteFile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
