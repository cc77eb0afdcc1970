package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"bioval/internal/blob"
	"bioval/internal/config"
	"bioval/internal/metrics"
	"bioval/internal/positions"
	"bioval/internal/reference"
	"bioval/internal/tabular"
	"bioval/pkg/domain"
)

const testRunID = "run-1"

func tube(study, lab, biomaterial, freezer, rack, box, pos string) domain.Record {
	return domain.Record{
		domain.FieldStudyID:          study,
		domain.FieldStudy:            "ALS",
		domain.FieldLabID:            lab,
		domain.FieldEventName:        "baseline_arm_1",
		domain.FieldSamplingDate:     "2024-03-01",
		domain.FieldBiomaterial:      biomaterial,
		domain.FieldTubePos:          pos,
		domain.FieldRepeatInstrument: "aliquots",
		domain.FieldRepeatInstance:   "1",
		domain.FieldTubeID:           "T-" + study + "-" + pos,
		domain.FieldBoxID:            "BX-" + box,
		domain.FieldFreezer:          freezer,
		domain.FieldRack:             rack,
		domain.FieldBox:              box,
		domain.FieldTubeStatus:       "1",
	}
}

func referenceRows() []domain.Record {
	return []domain.Record{
		tube("111-111-111", "00001", "Serum", "1", "1", "1", "A1"),
		tube("222-222-222", "00002", "Serum", "1", "1", "1", "A2"),
	}
}

func writeCSV(t *testing.T, name string, rows []domain.Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := tabular.WriteFile(path, rows); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

type fixture struct {
	store   blob.Store
	metrics *metrics.Recorder
	prompts int
}

func newPipeline(t *testing.T, refPath string, answer string) (*Pipeline, *fixture) {
	t.Helper()
	rt, err := config.DefaultRules().Build()
	if err != nil {
		t.Fatalf("build rules: %v", err)
	}
	fx := &fixture{store: blob.NewMemory(), metrics: metrics.New()}
	p, err := New(Options{
		Runtime:   rt,
		Reference: reference.CSVFile{Path: refPath},
		Store:     fx.store,
		Selector: SelectorFunc(func(_ context.Context, materials []domain.Material) (string, error) {
			fx.prompts++
			if len(materials) == 0 {
				t.Fatalf("selector offered no materials")
			}
			return answer, nil
		}),
		Metrics:  fx.metrics,
		Now:      func() time.Time { return time.Date(2024, 5, 6, 7, 8, 0, 0, time.UTC) },
		NewRunID: func() string { return testRunID },
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p, fx
}

func (fx *fixture) keys(t *testing.T) []string {
	t.Helper()
	infos, err := fx.store.List(context.Background(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Key)
	}
	return out
}

func TestNewRequiresCollaborators(t *testing.T) {
	rt, err := config.DefaultRules().Build()
	if err != nil {
		t.Fatalf("build rules: %v", err)
	}
	cases := []Options{
		{Reference: reference.CSVFile{}, Store: blob.NewMemory()},
		{Runtime: rt, Store: blob.NewMemory()},
		{Runtime: rt, Reference: reference.CSVFile{}},
	}
	for i, opts := range cases {
		if _, err := New(opts); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestRunStoresEveryArtifact(t *testing.T) {
	refPath := writeCSV(t, "reference.csv", referenceRows())
	importPath := writeCSV(t, "import.csv", []domain.Record{
		tube("111-111-111", "x", "Serum", "1", "1", "1", "B1"),
		tube("333-333-333", "", "EDTA Plasma", "1", "1", "1", "B2"),
	})
	p, fx := newPipeline(t, refPath, "")

	out, err := p.Run(context.Background(), Request{Material: "biofluid", ImportPath: importPath})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if fx.prompts != 0 {
		t.Fatalf("selector must not be asked when a material is given")
	}
	if out.RunID != testRunID {
		t.Fatalf("run id = %q", out.RunID)
	}

	sel := out.Selection
	if sel.Material != domain.MaterialBiofluid || sel.Strategy != positions.StrategyBatch {
		t.Fatalf("selection = %s/%s", sel.Material, sel.Strategy)
	}
	if sel.Available != 3*7*7*96-2 {
		t.Fatalf("available = %d", sel.Available)
	}
	if len(sel.Coordinates) != 40 || sel.Coordinates[0].Position != "A3" {
		t.Fatalf("selected %d coordinates starting at %v", len(sel.Coordinates), sel.Coordinates[0])
	}

	rec := out.Reconciliation
	if got := []string{rec.Rows[0][domain.FieldLabID], rec.Rows[1][domain.FieldLabID]}; got[0] != "00001" || got[1] != "00003" {
		t.Fatalf("lab ids = %v", got)
	}
	if rec.NewLabIDs != 1 || len(rec.LabIDMessages) != 2 {
		t.Fatalf("minted %d, messages %v", rec.NewLabIDs, rec.LabIDMessages)
	}
	if rec.Conflicts != 0 || out.Report.DuplicateConflicts != 0 {
		t.Fatalf("conflicts = %d, report %d", rec.Conflicts, out.Report.DuplicateConflicts)
	}

	want := []string{
		"runs/run-1/available_positions_BIOFLUID.csv",
		"runs/run-1/import.csv",
		"runs/run-1/reference.csv",
		"runs/run-1/report.txt",
	}
	if got := fx.keys(t); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("keys = %v", got)
	}
	if len(out.Artifacts) != len(want) {
		t.Fatalf("artifacts = %d", len(out.Artifacts))
	}

	data, err := blob.ReadAll(context.Background(), fx.store, "runs/run-1/report.txt")
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	text := string(data)
	for _, s := range []string{
		"Date: 2024-05-06 07:08",
		"Reference: runs/run-1/reference.csv",
		"Assigned lab patient ID 00003 to study ID 333-333-333",
		"Duplicate position conflicts: 0",
		"Import file passed all checks and may be uploaded.",
	} {
		if !strings.Contains(text, s) {
			t.Fatalf("report missing %q:\n%s", s, text)
		}
	}

	stored, err := blob.ReadAll(context.Background(), fx.store, "runs/run-1/available_positions_BIOFLUID.csv")
	if err != nil {
		t.Fatalf("read positions: %v", err)
	}
	coords, err := tabular.ReadPositions(strings.NewReader(string(stored)))
	if err != nil || len(coords) != 40 {
		t.Fatalf("stored positions = %d, %v", len(coords), err)
	}

	original, err := tabular.ReadFile(importPath)
	if err != nil {
		t.Fatalf("reread import: %v", err)
	}
	if original.Rows[1][domain.FieldLabID] != "" {
		t.Fatalf("import file changed without in-place flag")
	}

	expected := `
# HELP bioval_lab_ids_assigned_total Lab ids minted for new study ids
# TYPE bioval_lab_ids_assigned_total counter
bioval_lab_ids_assigned_total 1
`
	if err := testutil.GatherAndCompare(fx.metrics.Registry(), strings.NewReader(expected), "bioval_lab_ids_assigned_total"); err != nil {
		t.Fatalf("metrics: %v", err)
	}
}

func TestRunInPlaceUpdatesImportFile(t *testing.T) {
	refPath := writeCSV(t, "reference.csv", referenceRows())
	importPath := writeCSV(t, "import.csv", []domain.Record{
		tube("444-444-444", "", "DNA", "4deg", "2", "3", "J10"),
	})
	p, _ := newPipeline(t, refPath, "")

	if _, err := p.Validate(context.Background(), Request{ImportPath: importPath, InPlace: true}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	table, err := tabular.ReadFile(importPath)
	if err != nil {
		t.Fatalf("reread import: %v", err)
	}
	if got := table.Rows[0][domain.FieldLabID]; got != "00003" {
		t.Fatalf("lab id in file = %q", got)
	}
}

func TestValidateSkipsPositions(t *testing.T) {
	refPath := writeCSV(t, "reference.csv", referenceRows())
	importPath := writeCSV(t, "import.csv", []domain.Record{
		tube("222-222-222", "x", "Serum", "2", "1", "1", "A1"),
	})
	p, fx := newPipeline(t, refPath, "")

	out, err := p.Validate(context.Background(), Request{ImportPath: importPath})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if out.Selection != nil || fx.prompts != 0 {
		t.Fatalf("validate must not select positions")
	}
	if out.Reconciliation.NewLabIDs != 0 || out.Reconciliation.Rows[0][domain.FieldLabID] != "00002" {
		t.Fatalf("unexpected reconciliation %+v", out.Reconciliation)
	}
	if got := fx.keys(t); len(got) != 3 {
		t.Fatalf("keys = %v", got)
	}
}

func TestValidateRequiresImportPath(t *testing.T) {
	p, _ := newPipeline(t, writeCSV(t, "reference.csv", referenceRows()), "")
	if _, err := p.Validate(context.Background(), Request{}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := p.Run(context.Background(), Request{Material: "dna"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunAbortsBeforeWriting(t *testing.T) {
	cases := []struct {
		name   string
		rows   []domain.Record
		target any
	}{
		{
			name:   "reference conflict",
			rows:   []domain.Record{tube("333-333-333", "x", "Serum", "1", "1", "1", "A1")},
			target: new(*domain.DuplicatePositionError),
		},
		{
			name: "internal duplicate",
			rows: []domain.Record{
				tube("333-333-333", "x", "Serum", "1", "1", "1", "C1"),
				tube("444-444-444", "x", "Serum", "1", "1", "1", "C1"),
			},
			target: new(*domain.DuplicatePositionError),
		},
		{
			name:   "invalid row",
			rows:   []domain.Record{tube("333-333-333", "x", "Serum", "4deg", "1", "1", "Z9")},
			target: new(*domain.ValidationError),
		},
		{
			name:   "bad study id",
			rows:   []domain.Record{tube("33-333-333", "x", "Serum", "1", "1", "1", "C1")},
			target: new(*domain.FormatError),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			refPath := writeCSV(t, "reference.csv", referenceRows())
			importPath := writeCSV(t, "import.csv", tc.rows)
			p, fx := newPipeline(t, refPath, "")

			_, err := p.Run(context.Background(), Request{Material: "BIOFLUID", ImportPath: importPath, InPlace: true})
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.As(err, tc.target) {
				t.Fatalf("unexpected error type %T: %v", err, err)
			}
			if got := fx.keys(t); len(got) != 0 {
				t.Fatalf("artifacts written on failure: %v", got)
			}
			table, rerr := tabular.ReadFile(importPath)
			if rerr != nil || table.Rows[0][domain.FieldLabID] != "x" {
				t.Fatalf("import file modified on failure")
			}
		})
	}
}

func TestRunRejectsInvalidReference(t *testing.T) {
	bad := referenceRows()
	bad[1][domain.FieldTubePos] = "M1"
	refPath := writeCSV(t, "reference.csv", bad)
	importPath := writeCSV(t, "import.csv", []domain.Record{tube("333-333-333", "x", "Serum", "1", "1", "1", "C1")})
	p, _ := newPipeline(t, refPath, "")

	_, err := p.Validate(context.Background(), Request{ImportPath: importPath})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Label != LabelReference {
		t.Fatalf("expected reference validation error, got %v", err)
	}
}

func TestRunRejectsMissingColumns(t *testing.T) {
	refPath := writeCSV(t, "reference.csv", referenceRows())
	row := tube("333-333-333", "x", "Serum", "1", "1", "1", "C1")
	delete(row, domain.FieldTubeStatus)
	importPath := writeCSV(t, "import.csv", []domain.Record{row})
	p, _ := newPipeline(t, refPath, "")

	_, err := p.Validate(context.Background(), Request{ImportPath: importPath})
	var serr *domain.StructuralError
	if !errors.As(err, &serr) || serr.Missing[0] != domain.FieldTubeStatus {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestPositionsPromptsForMaterial(t *testing.T) {
	refPath := writeCSV(t, "reference.csv", referenceRows())
	p, fx := newPipeline(t, refPath, " dna ")

	out, err := p.Positions(context.Background(), Request{})
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if fx.prompts != 1 {
		t.Fatalf("prompts = %d", fx.prompts)
	}
	if out.Selection.Material != domain.MaterialDNA || out.Selection.Strategy != positions.StrategySingle {
		t.Fatalf("selection = %+v", out.Selection)
	}
	if len(out.Selection.Coordinates) != 20 || out.Report != nil || out.Reconciliation != nil {
		t.Fatalf("unexpected outcome %+v", out)
	}
	want := "runs/run-1/available_positions_DNA.csv,runs/run-1/reference.csv"
	if got := strings.Join(fx.keys(t), ","); got != want {
		t.Fatalf("keys = %s", got)
	}
}

func TestPositionsCancelled(t *testing.T) {
	p, fx := newPipeline(t, writeCSV(t, "reference.csv", referenceRows()), "  ")
	_, err := p.Positions(context.Background(), Request{})
	if !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if got := fx.keys(t); len(got) != 0 {
		t.Fatalf("artifacts written on cancel: %v", got)
	}
}

func TestPositionsSelectorError(t *testing.T) {
	rt, _ := config.DefaultRules().Build()
	p, err := New(Options{
		Runtime:   rt,
		Reference: reference.CSVFile{Path: writeCSV(t, "reference.csv", referenceRows())},
		Store:     blob.NewMemory(),
		Selector: SelectorFunc(func(context.Context, []domain.Material) (string, error) {
			return "", domain.ErrCancelled
		}),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := p.Positions(context.Background(), Request{}); !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	p.selector = nil
	if _, err := p.Positions(context.Background(), Request{}); err == nil || errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("expected missing material error, got %v", err)
	}
}

func TestPositionsUnknownMaterial(t *testing.T) {
	p, _ := newPipeline(t, writeCSV(t, "reference.csv", referenceRows()), "")
	_, err := p.Positions(context.Background(), Request{Material: "plasma"})
	var uerr *domain.UnknownMaterialError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected unknown material, got %v", err)
	}
}

func TestFetchFailureAborts(t *testing.T) {
	p, fx := newPipeline(t, filepath.Join(t.TempDir(), "missing.csv"), "")
	if _, err := p.Positions(context.Background(), Request{Material: "DNA"}); err == nil {
		t.Fatalf("expected fetch error")
	}
	if got := fx.keys(t); len(got) != 0 {
		t.Fatalf("artifacts written: %v", got)
	}
}

func TestCommitRollsBackOnWriteFailure(t *testing.T) {
	refPath := writeCSV(t, "reference.csv", referenceRows())
	importPath := writeCSV(t, "import.csv", []domain.Record{tube("333-333-333", "x", "Serum", "1", "1", "1", "C1")})
	p, fx := newPipeline(t, refPath, "")

	taken := "runs/run-1/import.csv"
	if _, err := fx.store.Put(context.Background(), taken, strings.NewReader("old"), blob.PutOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := p.Run(context.Background(), Request{Material: "BIOFLUID", ImportPath: importPath})
	if !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if got := fx.keys(t); len(got) != 1 || got[0] != taken {
		t.Fatalf("rollback left %v", got)
	}
}

func TestPositionsArtifact(t *testing.T) {
	if got := PositionsArtifact(domain.MaterialCells); got != "available_positions_CELLS.csv" {
		t.Fatalf("name = %s", got)
	}
}

func TestValidateMintsLabIDsForBlankImportRows(t *testing.T) {
	refPath := writeCSV(t, "reference.csv", referenceRows())
	importPath := writeCSV(t, "import.csv", []domain.Record{
		tube("333-333-333", "", "Serum", "1", "1", "1", "B1"),
		tube("111-111-111", "", "Serum", "1", "1", "1", "B2"),
		tube("444-444-444", "", "Serum", "1", "1", "1", "B3"),
	})
	p, fx := newPipeline(t, refPath, "")

	out, err := p.Validate(context.Background(), Request{ImportPath: importPath})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	rec := out.Reconciliation
	var got []string
	for _, row := range rec.Rows {
		got = append(got, row[domain.FieldLabID])
	}
	if strings.Join(got, ",") != "00003,00001,00004" {
		t.Fatalf("lab ids = %v", got)
	}
	if rec.NewLabIDs != 2 {
		t.Fatalf("minted = %d", rec.NewLabIDs)
	}
	if len(rec.Warnings) != 3 || rec.Warnings[0].Message != "Row 2: Missing value in 'lab_id'" {
		t.Fatalf("warnings = %+v", rec.Warnings)
	}

	data, err := blob.ReadAll(context.Background(), fx.store, "runs/run-1/report.txt")
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	for _, s := range []string{
		"Duplicate position conflicts: 0",
		"Row 2: Missing value in 'lab_id'",
		"Assigned lab patient ID 00004 to study ID 444-444-444",
	} {
		if !strings.Contains(string(data), s) {
			t.Fatalf("report missing %q:\n%s", s, data)
		}
	}
}

func TestReferenceBlankLabIDStillBlocks(t *testing.T) {
	ref := referenceRows()
	ref[1][domain.FieldLabID] = ""
	refPath := writeCSV(t, "reference.csv", ref)
	importPath := writeCSV(t, "import.csv", []domain.Record{tube("333-333-333", "", "Serum", "1", "1", "1", "B1")})
	p, _ := newPipeline(t, refPath, "")

	_, err := p.Validate(context.Background(), Request{ImportPath: importPath})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Label != LabelReference {
		t.Fatalf("expected reference validation error, got %v", err)
	}
}

func TestImportBlankTubeIDStillBlocks(t *testing.T) {
	row := tube("333-333-333", "", "Serum", "1", "1", "1", "B1")
	row[domain.FieldTubeID] = ""
	importPath := writeCSV(t, "import.csv", []domain.Record{row})
	p, fx := newPipeline(t, writeCSV(t, "reference.csv", referenceRows()), "")

	_, err := p.Validate(context.Background(), Request{ImportPath: importPath})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || len(verr.Violations) != 1 || verr.Violations[0].Field != domain.FieldTubeID {
		t.Fatalf("expected tube_id violation only, got %v", err)
	}
	if got := fx.keys(t); len(got) != 0 {
		t.Fatalf("artifacts written: %v", got)
	}
}

func TestBuildReportCarriesConflictCount(t *testing.T) {
	p, fx := newPipeline(t, writeCSV(t, "reference.csv", referenceRows()), "")
	run, err := blob.NewRun(fx.store, testRunID)
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	rep := p.buildReport(run, "import.csv", false, &Reconciliation{Conflicts: 2}, nil)
	if rep.DuplicateConflicts != 2 {
		t.Fatalf("conflicts = %d", rep.DuplicateConflicts)
	}
	if !strings.Contains(rep.Recommendation(), "unresolved issues") {
		t.Fatalf("recommendation = %q", rep.Recommendation())
	}
}
