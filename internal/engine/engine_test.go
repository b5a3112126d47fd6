package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/reframe-labs/reframe/internal/config"
	"github.com/reframe-labs/reframe/internal/source"
	"github.com/reframe-labs/reframe/internal/state"
	"github.com/reframe-labs/reframe/internal/testutil"
	"github.com/reframe-labs/reframe/pkg/frame"
)

// fakeSource serves a fixed dataset and captures what was written.
type fakeSource struct {
	data       *frame.Dataset
	loadErr    error
	writeErr   error
	wroteTable string
	wrote      *frame.Dataset
	closed     bool
}

func (f *fakeSource) Connect(context.Context, source.Config) error { return nil }
func (f *fakeSource) Close() error                                 { f.closed = true; return nil }
func (f *fakeSource) StageCSV(context.Context, string, string) error {
	return nil
}

func (f *fakeSource) Load(context.Context, string, *frame.Schema) (*frame.Dataset, error) {
	return f.data, f.loadErr
}

func (f *fakeSource) Write(_ context.Context, table string, ds *frame.Dataset) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.wroteTable, f.wrote = table, ds
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Source: config.SourceConfig{Type: "duckdb", Path: ":memory:"},
		Input: config.InputConfig{
			Table: "assessments",
			Fields: []config.FieldSpec{
				{Name: "student_id", Type: frame.TypeInt},
				{Name: "grade", Type: frame.TypeInt},
				{Name: "subject", Type: frame.TypeCode},
				{Name: "test_date", Type: frame.TypeDate, Nullable: true},
				{Name: "score", Type: frame.TypeFloat, Nullable: true},
			},
		},
		Pipeline: config.PipelineConfig{
			Seed: 1,
			Rules: []frame.Rule{
				{GroupBy: []string{"student_id", "subject"}, OrderBy: "score", Keep: frame.KeepMax},
			},
			TerminalKey: []string{"student_id", "subject"},
			Pivot: frame.PivotSpec{
				Identity:    []string{"student_id", "grade"},
				PivotField:  "subject",
				ValueFields: []string{"score", "test_date"},
				Suffixes:    map[string]string{"MA": "_m", "RD": "_r"},
			},
			Standardize: []frame.StandardizeSpec{
				{GroupBy: []string{"grade"}, Target: "score_m", As: "score_m_z"},
			},
		},
		Output:    config.OutputConfig{Table: "wide_scores"},
		StatePath: ":memory:",
	}
}

func testInput(t *testing.T, cfg *config.Config) *frame.Dataset {
	t.Helper()
	schema, err := cfg.InputSchema()
	if err != nil {
		t.Fatalf("InputSchema: %v", err)
	}
	ds := frame.NewDataset(schema)
	day := func(d int) frame.Value {
		return frame.Date(time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC))
	}
	rows := [][]frame.Value{
		{frame.Int(1), frame.Int(3), frame.Code("MA"), day(1), frame.Float(300)},
		{frame.Int(1), frame.Int(3), frame.Code("MA"), day(1), frame.Float(320)},
		{frame.Int(1), frame.Int(3), frame.Code("RD"), day(2), frame.Float(280)},
		{frame.Int(2), frame.Int(3), frame.Code("MA"), day(1), frame.Float(310)},
		{frame.Int(2), frame.Int(3), frame.Code("RD"), day(2), frame.Float(290)},
		{frame.Int(3), frame.Int(4), frame.Code("MA"), day(1), frame.Float(400)},
	}
	for _, row := range rows {
		if err := ds.Append(row...); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return ds
}

func newTestEngine(t *testing.T, cfg *config.Config, src source.Source) *Engine {
	t.Helper()
	store := state.NewSQLiteStore(testutil.NewDiscardLogger())
	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("Open state store: %v", err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatalf("Migrate state store: %v", err)
	}
	e, err := New(Config{Project: cfg, Logger: testutil.NewTestLogger(t), Source: src, Store: store})
	if err != nil {
		t.Fatalf("New engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := testConfig()
	src := &fakeSource{}
	src.data = testInput(t, cfg)
	e := newTestEngine(t, cfg, src)

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Run.Status != state.RunStatusCompleted {
		t.Fatalf("run status = %s, want completed", result.Run.Status)
	}
	if src.wroteTable != "wide_scores" {
		t.Fatalf("wrote to table %q, want wide_scores", src.wroteTable)
	}

	out := result.Output
	wantFields := []string{"student_id", "grade", "score_m", "score_r", "test_date_m", "test_date_r", "score_m_z"}
	if out.Schema().Len() != len(wantFields) {
		t.Fatalf("output has %d fields, want %d", out.Schema().Len(), len(wantFields))
	}
	for i, name := range wantFields {
		if got := out.Schema().Fields()[i].Name; got != name {
			t.Errorf("output field %d = %s, want %s", i, got, name)
		}
	}
	if out.Len() != 3 {
		t.Fatalf("output has %d rows, want 3", out.Len())
	}

	// Dedup kept the higher score for student 1 math.
	if got := out.Record(0).Values[2].Float(); got != 320 {
		t.Fatalf("student 1 score_m = %v, want 320", got)
	}
	// Student 3 took no reading test: padded with Missing, row kept.
	if !out.Record(2).Values[3].IsMissing() || !out.Record(2).Values[5].IsMissing() {
		t.Fatalf("absent pivot combination not padded: %v", out.Record(2).Values)
	}
	// z-scores within grade 3: mean 315, sample sd sqrt(50).
	wantZ := 5 / math.Sqrt(50)
	for i, want := range []float64{wantZ, -wantZ} {
		got := out.Record(i).Values[6].Float()
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("row %d z = %v, want %v", i, got, want)
		}
	}
	// Grade 4 is a singleton group: Missing output plus a warning.
	if !out.Record(2).Values[6].IsMissing() {
		t.Fatalf("singleton group z = %v, want Missing", out.Record(2).Values[6])
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(result.Warnings))
	}
	if result.Warnings[0].Reason != "fewer than two observations" {
		t.Fatalf("warning reason = %q", result.Warnings[0].Reason)
	}

	stageRuns, err := e.Store().ListStageRuns(result.Run.ID)
	if err != nil {
		t.Fatalf("ListStageRuns: %v", err)
	}
	wantStages := map[string][2]int{
		"select.01":             {6, 5},
		"check.terminal-key":    {5, 5},
		"pivot":                 {5, 3},
		"standardize.score_m_z": {3, 3},
	}
	if len(stageRuns) != len(wantStages) {
		t.Fatalf("got %d stage runs, want %d", len(stageRuns), len(wantStages))
	}
	for _, sr := range stageRuns {
		want, ok := wantStages[sr.StageID]
		if !ok {
			t.Errorf("unexpected stage %s", sr.StageID)
			continue
		}
		if sr.Status != state.StageStatusSuccess {
			t.Errorf("stage %s status = %s", sr.StageID, sr.Status)
		}
		if sr.RowsIn != want[0] || sr.RowsOut != want[1] {
			t.Errorf("stage %s rows = %d -> %d, want %d -> %d", sr.StageID, sr.RowsIn, sr.RowsOut, want[0], want[1])
		}
	}

	stored, err := e.Store().ListWarnings(result.Run.ID)
	if err != nil {
		t.Fatalf("ListWarnings: %v", err)
	}
	if len(stored) != 1 || stored[0].StageID != "standardize.score_m" {
		t.Fatalf("stored warnings = %+v", stored)
	}
}

func TestRun_TerminalKeyViolationFailsRun(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.Rules = nil // duplicates reach the uniqueness check
	src := &fakeSource{}
	src.data = testInput(t, cfg)
	e := newTestEngine(t, cfg, src)

	result, err := e.Run(context.Background())
	var dup *frame.DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("Run error = %v, want DuplicateKeyError", err)
	}
	if dup.Count != 2 {
		t.Fatalf("duplicate count = %d, want 2", dup.Count)
	}
	if result.Run.Status != state.RunStatusFailed {
		t.Fatalf("run status = %s, want failed", result.Run.Status)
	}
	if src.wroteTable != "" {
		t.Fatalf("output written despite failure: %q", src.wroteTable)
	}

	stageRuns, err := e.Store().ListStageRuns(result.Run.ID)
	if err != nil {
		t.Fatalf("ListStageRuns: %v", err)
	}
	wantStatus := map[string]state.StageStatus{
		"check.terminal-key":    state.StageStatusFailed,
		"pivot":                 state.StageStatusSkipped,
		"standardize.score_m_z": state.StageStatusSkipped,
	}
	for _, sr := range stageRuns {
		if want := wantStatus[sr.StageID]; sr.Status != want {
			t.Errorf("stage %s status = %s, want %s", sr.StageID, sr.Status, want)
		}
	}
}

func TestRun_FailedStandardizeKeepsSiblingResult(t *testing.T) {
	cfg := testConfig()
	// Two passes on one level: grouping on test_date_r hits a Missing key
	// at runtime (student 3 has no reading date), grouping on grade works.
	cfg.Pipeline.Standardize = []frame.StandardizeSpec{
		{GroupBy: []string{"test_date_r"}, Target: "score_m", As: "a_z"},
		{GroupBy: []string{"grade"}, Target: "score_m", As: "b_z"},
	}
	src := &fakeSource{}
	src.data = testInput(t, cfg)
	e := newTestEngine(t, cfg, src)

	result, err := e.Run(context.Background())
	var grouping *frame.GroupingError
	if !errors.As(err, &grouping) {
		t.Fatalf("Run error = %v, want GroupingError", err)
	}
	if result.Run.Status != state.RunStatusFailed {
		t.Fatalf("run status = %s, want failed", result.Run.Status)
	}

	stageRuns, err := e.Store().ListStageRuns(result.Run.ID)
	if err != nil {
		t.Fatalf("ListStageRuns: %v", err)
	}
	status := make(map[string]state.StageStatus, len(stageRuns))
	for _, sr := range stageRuns {
		status[sr.StageID] = sr.Status
	}
	if status["standardize.a_z"] != state.StageStatusFailed {
		t.Errorf("failed stage status = %s", status["standardize.a_z"])
	}
	// The concurrent sibling finished before the failure surfaced; its
	// recorded result must survive.
	if status["standardize.b_z"] != state.StageStatusSuccess {
		t.Errorf("sibling stage status = %s, want success", status["standardize.b_z"])
	}
}

func TestRun_ConfigErrorRecordsNoRun(t *testing.T) {
	cfg := testConfig()
	cfg.Output.Table = ""
	src := &fakeSource{}
	src.data = testInput(t, testConfig())
	e := newTestEngine(t, cfg, src)

	if _, err := e.Run(context.Background()); err == nil {
		t.Fatal("expected configuration error")
	}
	runs, err := e.Store().ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("config error recorded %d runs", len(runs))
	}
}

func TestPreview_NoSideEffects(t *testing.T) {
	cfg := testConfig()
	src := &fakeSource{}
	src.data = testInput(t, cfg)
	e := newTestEngine(t, cfg, src)

	out, warnings, err := e.Preview(context.Background())
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if out.Len() != 3 {
		t.Fatalf("preview has %d rows, want 3", out.Len())
	}
	if got := out.Schema().Fields()[out.Schema().Len()-1].Name; got != "score_m_z" {
		t.Fatalf("last preview field = %s", got)
	}
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warnings))
	}

	if src.wroteTable != "" {
		t.Fatalf("preview wrote table %q", src.wroteTable)
	}
	runs, err := e.Store().ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("preview recorded %d runs", len(runs))
	}
}

func TestRun_WriteFailureFailsRun(t *testing.T) {
	cfg := testConfig()
	src := &fakeSource{writeErr: errors.New("disk full")}
	src.data = testInput(t, cfg)
	e := newTestEngine(t, cfg, src)

	result, err := e.Run(context.Background())
	if err == nil {
		t.Fatal("expected write failure")
	}
	if result.Run.Status != state.RunStatusFailed {
		t.Fatalf("run status = %s, want failed", result.Run.Status)
	}
	if result.Run.Error != "disk full" {
		t.Fatalf("run error = %q", result.Run.Error)
	}
}
