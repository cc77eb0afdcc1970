// Package pipeline runs the reconciliation stages in order: fetch the
// reference records, pick storage positions for a material, validate the
// import and reference files, detect position conflicts, assign lab ids, and
// finally persist every artifact of the run.
//
// Nothing is written until every check has passed. A failure in any stage
// aborts the run with the stage's typed error and leaves the artifact store
// untouched.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bioval/internal/blob"
	"bioval/internal/config"
	"bioval/internal/conflicts"
	"bioval/internal/identity"
	"bioval/internal/logging"
	"bioval/internal/metrics"
	"bioval/internal/positions"
	"bioval/internal/reference"
	"bioval/internal/report"
	"bioval/internal/tabular"
	"bioval/internal/validation"
	"bioval/pkg/domain"
)

// Record set labels used in errors, logs and metrics.
const (
	LabelImport    = "Import file"
	LabelReference = "Reference file"
	LabelCross     = "Import vs Reference"
)

// Artifact names inside a run prefix.
const (
	ArtifactReference = "reference.csv"
	ArtifactImport    = "import.csv"
	ArtifactReport    = "report.txt"
)

const (
	contentTypeCSV  = "text/csv"
	contentTypeText = "text/plain; charset=utf-8"
)

// PositionsArtifact names the available-positions file of a material.
func PositionsArtifact(material domain.Material) string {
	return fmt.Sprintf("available_positions_%s.csv", material)
}

// MaterialSelector asks the operator for a material when none was given.
// Returning an empty name or domain.ErrCancelled cancels the run.
type MaterialSelector interface {
	SelectMaterial(ctx context.Context, materials []domain.Material) (string, error)
}

// SelectorFunc adapts a function to MaterialSelector.
type SelectorFunc func(ctx context.Context, materials []domain.Material) (string, error)

// SelectMaterial calls f.
func (f SelectorFunc) SelectMaterial(ctx context.Context, materials []domain.Material) (string, error) {
	return f(ctx, materials)
}

// Options wires the collaborators of a pipeline. Runtime, Reference and Store
// are required.
type Options struct {
	Runtime   *config.Runtime
	Reference reference.Supplier
	Store     blob.Store
	Selector  MaterialSelector
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
	// Now and NewRunID default to time.Now and uuid.NewString.
	Now      func() time.Time
	NewRunID func() string
}

// Pipeline executes runs against one set of collaborators.
type Pipeline struct {
	rt       *config.Runtime
	ref      reference.Supplier
	store    blob.Store
	selector MaterialSelector
	log      *slog.Logger
	metrics  *metrics.Recorder
	now      func() time.Time
	newRunID func() string
}

// New validates opts and returns a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Runtime == nil {
		return nil, errors.New("pipeline: runtime required")
	}
	if opts.Reference == nil {
		return nil, errors.New("pipeline: reference supplier required")
	}
	if opts.Store == nil {
		return nil, errors.New("pipeline: artifact store required")
	}
	p := &Pipeline{
		rt:       opts.Runtime,
		ref:      opts.Reference,
		store:    opts.Store,
		selector: opts.Selector,
		log:      logging.OrDiscard(opts.Logger),
		metrics:  opts.Metrics,
		now:      opts.Now,
		newRunID: opts.NewRunID,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newRunID == nil {
		p.newRunID = uuid.NewString
	}
	return p, nil
}

// Request selects the inputs of a run.
type Request struct {
	// Material is the material key; blank asks the selector.
	Material string
	// ImportPath is the local CSV file to reconcile.
	ImportPath string
	// InPlace overwrites ImportPath with the updated rows once artifacts are stored.
	InPlace bool
}

// Selection is the outcome of the position stages.
type Selection struct {
	Material    domain.Material
	Strategy    positions.Strategy
	Available   int
	Coordinates []domain.Coordinate
}

// Reconciliation is the outcome of the validation and identifier stages.
type Reconciliation struct {
	Rows          []domain.Record
	Warnings      []domain.Violation
	LabIDMessages []string
	NewLabIDs     int
	Conflicts     int
}

// Outcome describes a finished run.
type Outcome struct {
	RunID          string
	Selection      *Selection
	Reconciliation *Reconciliation
	Report         *report.Report
	Artifacts      []blob.Info
}

type stages struct {
	positions bool
	reconcile bool
}

// Positions fetches the reference records and stores the positions offered
// for req.Material together with a reference snapshot.
func (p *Pipeline) Positions(ctx context.Context, req Request) (*Outcome, error) {
	return p.execute(ctx, req, stages{positions: true})
}

// Validate reconciles req.ImportPath against the reference records, assigns
// lab ids, and stores the updated import, the reference snapshot and the report.
func (p *Pipeline) Validate(ctx context.Context, req Request) (*Outcome, error) {
	if strings.TrimSpace(req.ImportPath) == "" {
		return nil, errors.New("import file required")
	}
	return p.execute(ctx, req, stages{reconcile: true})
}

// Run performs every stage.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Outcome, error) {
	if strings.TrimSpace(req.ImportPath) == "" {
		return nil, errors.New("import file required")
	}
	return p.execute(ctx, req, stages{positions: true, reconcile: true})
}

type artifact struct {
	name        string
	contentType string
	data        []byte
}

func (p *Pipeline) execute(ctx context.Context, req Request, st stages) (*Outcome, error) {
	out := &Outcome{RunID: p.newRunID()}
	log := p.log.With("run", out.RunID)

	refTable, err := p.fetchReference(ctx, log)
	if err != nil {
		return nil, err
	}
	var files []artifact
	snapshot, err := tabular.Encode(refTable.Rows)
	if err == nil {
		files = append(files, artifact{ArtifactReference, contentTypeCSV, snapshot})
	} else if !errors.Is(err, tabular.ErrNoRecords) {
		return nil, fmt.Errorf("encode reference snapshot: %w", err)
	}

	if st.positions {
		sel, err := p.selectPositions(ctx, log, req.Material, refTable.Rows)
		if err != nil {
			return nil, err
		}
		data, err := tabular.EncodePositions(sel.Coordinates)
		if err != nil {
			return nil, fmt.Errorf("encode positions: %w", err)
		}
		files = append(files, artifact{PositionsArtifact(sel.Material), contentTypeCSV, data})
		out.Selection = sel
	}

	if st.reconcile {
		rec, err := p.reconcile(ctx, log, req.ImportPath, refTable)
		if err != nil {
			return nil, err
		}
		data, err := tabular.Encode(rec.Rows)
		if err != nil {
			return nil, fmt.Errorf("encode import: %w", err)
		}
		files = append(files, artifact{ArtifactImport, contentTypeCSV, data})
		out.Reconciliation = rec
	}

	run, err := blob.NewRun(p.store, out.RunID)
	if err != nil {
		return nil, err
	}
	if st.reconcile {
		rep := p.buildReport(run, req.ImportPath, len(snapshot) > 0, out.Reconciliation, files)
		files = append(files, artifact{ArtifactReport, contentTypeText, rep.Bytes()})
		out.Report = rep
	}

	infos, err := p.commit(ctx, log, run, files)
	if err != nil {
		return nil, err
	}
	out.Artifacts = infos

	if st.reconcile && req.InPlace {
		if err := tabular.WriteFile(req.ImportPath, out.Reconciliation.Rows); err != nil {
			return nil, fmt.Errorf("update import file: %w", err)
		}
		log.Info("import file updated", "path", req.ImportPath)
	}
	return out, nil
}

func (p *Pipeline) fetchReference(ctx context.Context, log *slog.Logger) (tabular.Table, error) {
	defer p.metrics.Stage("fetch")()
	table, err := p.ref.Fetch(ctx)
	if err != nil {
		return tabular.Table{}, fmt.Errorf("fetch reference: %w", err)
	}
	p.metrics.Records("reference", len(table.Rows))
	log.Info("reference fetched", "stage", "fetch", "rows", len(table.Rows))
	return table, nil
}

func (p *Pipeline) chooseMaterial(ctx context.Context, material string) (domain.Material, error) {
	if strings.TrimSpace(material) == "" {
		if p.selector == nil {
			return "", errors.New("material required")
		}
		chosen, err := p.selector.SelectMaterial(ctx, p.rt.Catalog.Materials())
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(chosen) == "" {
			return "", domain.ErrCancelled
		}
		material = chosen
	}
	def, err := p.rt.Catalog.Lookup(material)
	if err != nil {
		return "", err
	}
	return def.Material, nil
}

func (p *Pipeline) selectPositions(ctx context.Context, log *slog.Logger, material string, refRows []domain.Record) (*Selection, error) {
	m, err := p.chooseMaterial(ctx, material)
	if err != nil {
		return nil, err
	}
	defer p.metrics.Stage("positions")()
	engine := p.rt.Positions
	available, err := engine.Available(string(m), refRows)
	if err != nil {
		return nil, err
	}
	strategy, err := engine.StrategyFor(string(m))
	if err != nil {
		return nil, err
	}
	coords, err := engine.Select(string(m), available)
	if err != nil {
		return nil, err
	}
	p.metrics.Positions(string(m), available.Len(), len(coords))
	log.Info("positions selected", "stage", "positions", "material", m,
		"strategy", strategy, "available", available.Len(), "selected", len(coords))
	return &Selection{Material: m, Strategy: strategy, Available: available.Len(), Coordinates: coords}, nil
}

func (p *Pipeline) reconcile(ctx context.Context, log *slog.Logger, importPath string, refTable tabular.Table) (*Reconciliation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := p.metrics.Stage("validate")
	importTable, err := tabular.ReadFile(importPath)
	if err != nil {
		stop()
		return nil, err
	}
	p.metrics.Records("import", len(importTable.Rows))
	rec := &Reconciliation{}
	for _, set := range []struct {
		label string
		table tabular.Table
		opts  []validation.TableOption
	}{
		// Lab ids of new study ids are minted below, so import rows may leave them blank.
		{LabelImport, importTable, []validation.TableOption{validation.DeferFields(domain.FieldLabID)}},
		{LabelReference, refTable, nil},
	} {
		res, err := p.rt.Validator.ValidateTable(set.label, set.table, set.opts...)
		p.metrics.Violations(res)
		if err != nil {
			stop()
			return nil, err
		}
		for _, w := range res.Warnings() {
			log.Warn("rule warning", "label", set.label, "row", w.Row, "rule", w.Rule, "msg", w.Message)
		}
		rec.Warnings = append(rec.Warnings, res.Warnings()...)
		log.Info("record set valid", "stage", "validate", "label", set.label, "rows", len(set.table.Rows))
	}
	stop()
	if len(importTable.Rows) == 0 {
		return nil, fmt.Errorf("%s %s: %w", LabelImport, importPath, tabular.ErrNoRecords)
	}

	n, err := p.checkConflicts(log, importTable.Rows, refTable.Rows)
	if err != nil {
		return nil, err
	}
	rec.Conflicts = n

	defer p.metrics.Stage("assign")()
	rows, msgs, err := identity.AssignLabIDs(importTable.Rows, refTable.Rows)
	if err != nil {
		return nil, err
	}
	rec.Rows = rows
	rec.LabIDMessages = msgs
	// The first message announces the next free id; each further one is a minted id.
	rec.NewLabIDs = len(msgs) - 1
	p.metrics.LabIDsAssigned(rec.NewLabIDs)
	log.Info("lab ids assigned", "stage", "assign", "rows", len(rows), "minted", rec.NewLabIDs)
	return rec, nil
}

// checkConflicts returns the number of import rows claiming a slot occupied
// in the reference data.
func (p *Pipeline) checkConflicts(log *slog.Logger, importRows, refRows []domain.Record) (int, error) {
	defer p.metrics.Stage("conflicts")()
	for _, set := range []struct {
		label string
		rows  []domain.Record
	}{{LabelImport, importRows}, {LabelReference, refRows}} {
		if err := conflicts.CheckInternal(set.rows, set.label); err != nil {
			var dup *domain.DuplicatePositionError
			if errors.As(err, &dup) {
				p.metrics.Conflicts(metrics.ScopeInternal, len(dup.Conflicts))
			}
			return 0, err
		}
	}
	occupied := p.rt.Positions.Occupancy(refRows)
	n, err := conflicts.CheckAgainst(importRows, occupied, LabelCross)
	p.metrics.Conflicts(metrics.ScopeReference, n)
	if err != nil {
		return n, err
	}
	log.Info("no position conflicts", "stage", "conflicts", "occupied", occupied.Len())
	return n, nil
}

func (p *Pipeline) buildReport(run *blob.Run, importPath string, haveSnapshot bool, rec *Reconciliation, files []artifact) *report.Report {
	rep := &report.Report{
		Generated:     p.now(),
		RunID:         run.ID(),
		ImportPath:    importPath,
		Rows:          len(rec.Rows),
		LabIDMessages: rec.LabIDMessages,
	}
	if haveSnapshot {
		rep.ReferencePath = run.Key(ArtifactReference)
	}
	rep.DuplicateConflicts = rec.Conflicts
	for _, w := range rec.Warnings {
		rep.Warnings = append(rep.Warnings, w.Message)
	}
	for _, f := range files {
		rep.Artifacts = append(rep.Artifacts, run.Key(f.name))
	}
	rep.Artifacts = append(rep.Artifacts, run.Key(ArtifactReport))
	return rep
}

// commit writes every artifact under the run prefix. A failed write removes
// the artifacts already stored for the run.
func (p *Pipeline) commit(ctx context.Context, log *slog.Logger, run *blob.Run, files []artifact) ([]blob.Info, error) {
	defer p.metrics.Stage("write")()
	for _, f := range files {
		if _, err := run.Put(ctx, f.name, f.contentType, f.data); err != nil {
			werr := fmt.Errorf("store %s: %w", run.Key(f.name), err)
			if rbErr := run.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				return nil, errors.Join(werr, fmt.Errorf("rollback: %w", rbErr))
			}
			return nil, werr
		}
	}
	log.Info("artifacts stored", "stage", "write", "prefix", run.Prefix(), "count", len(files))
	return run.Written(), nil
}

// StoredReport returns the report a finished run stored.
func (p *Pipeline) StoredReport(ctx context.Context, runID string) (blob.Info, []byte, error) {
	run, err := blob.NewRun(p.store, runID)
	if err != nil {
		return blob.Info{}, nil, err
	}
	return run.Open(ctx, ArtifactReport)
}
