package state

import (
	"testing"
	"time"

	"github.com/reframe-labs/reframe/internal/testutil"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s := NewSQLiteStore(testutil.NewDiscardLogger())
	if err := s.Open(":memory:"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)

	run, err := s.CreateRun()
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.ID == "" {
		t.Fatal("CreateRun assigned no ID")
	}
	if run.Status != RunStatusRunning {
		t.Fatalf("new run status = %q, want %q", run.Status, RunStatusRunning)
	}

	got, err := s.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunStatusRunning {
		t.Fatalf("stored status = %q, want running", got.Status)
	}
	if got.CompletedAt != nil {
		t.Fatal("running run has a completion time")
	}

	if err := s.CompleteRun(run.ID, RunStatusFailed, "pivot key collision"); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}
	got, err = s.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun after complete: %v", err)
	}
	if got.Status != RunStatusFailed {
		t.Fatalf("completed status = %q, want failed", got.Status)
	}
	if got.Error != "pivot key collision" {
		t.Fatalf("completed error = %q", got.Error)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed run has no completion time")
	}
}

func TestGetRun_Unknown(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetRun("no-such-run"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := newTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := s.CreateRun()
		if err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		ids = append(ids, run.ID)
		time.Sleep(5 * time.Millisecond)
	}

	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	for i, run := range runs {
		if want := ids[len(ids)-1-i]; run.ID != want {
			t.Errorf("runs[%d].ID = %s, want %s", i, run.ID, want)
		}
	}

	runs, err = s.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns limited: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs with limit 2", len(runs))
	}
}

func TestStageRuns(t *testing.T) {
	s := newTestStore(t)
	run, err := s.CreateRun()
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	stages := []string{"load.input", "select.00", "pivot"}
	for _, id := range stages {
		sr := &StageRun{RunID: run.ID, StageID: id, Kind: "stage", Status: StageStatusPending}
		if err := s.RecordStageRun(sr); err != nil {
			t.Fatalf("RecordStageRun(%s): %v", id, err)
		}
		if sr.ID == "" {
			t.Fatalf("RecordStageRun(%s) assigned no ID", id)
		}
	}

	listed, err := s.ListStageRuns(run.ID)
	if err != nil {
		t.Fatalf("ListStageRuns: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("got %d stage runs, want 3", len(listed))
	}
	for i, sr := range listed {
		if sr.StageID != stages[i] {
			t.Errorf("stage %d = %s, want %s", i, sr.StageID, stages[i])
		}
	}

	if err := s.UpdateStageRun(listed[1].ID, StageStatusSuccess, 120, 80, 7, ""); err != nil {
		t.Fatalf("UpdateStageRun: %v", err)
	}
	listed, err = s.ListStageRuns(run.ID)
	if err != nil {
		t.Fatalf("ListStageRuns after update: %v", err)
	}
	got := listed[1]
	if got.Status != StageStatusSuccess || got.RowsIn != 120 || got.RowsOut != 80 || got.DurationMS != 7 {
		t.Fatalf("updated stage run = %+v", got)
	}
}

func TestWarnings(t *testing.T) {
	s := newTestStore(t)
	run, err := s.CreateRun()
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	warnings := []Warning{
		{RunID: run.ID, StageID: "standardize.score_z", Message: "group 3: fewer than two observations"},
		{RunID: run.ID, StageID: "standardize.score_z", Message: "group 7: zero variance"},
	}
	if err := s.RecordWarnings(warnings); err != nil {
		t.Fatalf("RecordWarnings: %v", err)
	}

	listed, err := s.ListWarnings(run.ID)
	if err != nil {
		t.Fatalf("ListWarnings: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("got %d warnings, want 2", len(listed))
	}
	for i, w := range listed {
		if w.Message != warnings[i].Message {
			t.Errorf("warning %d = %q, want %q", i, w.Message, warnings[i].Message)
		}
	}

	other, err := s.ListWarnings("other-run")
	if err != nil {
		t.Fatalf("ListWarnings other run: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("got %d warnings for an unrelated run", len(other))
	}
}
