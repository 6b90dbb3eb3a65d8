package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rcliao/archive-sweep/internal/model"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
	s, err := Open(filepath.Join(t.TempDir(), "state.json"), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	return s, clock
}

func TestOpen_MissingFileStartsFresh(t *testing.T) {
	s, _ := newTestStore(t)
	rec := s.Record()
	if rec.Date != "2026-10-19" {
		t.Errorf("expected today's date, got %q", rec.Date)
	}
	if rec.ProcessedUnits == nil || len(rec.ProcessedUnits) != 0 {
		t.Errorf("expected empty processed set, got %v", rec.ProcessedUnits)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Errorf("expected no file before first save, got %v", err)
	}
}

func TestMarkProcessed_PersistsAndIsIdempotent(t *testing.T) {
	s, clock := newTestStore(t)

	if err := s.MarkProcessed("/arch/A", model.OutcomeRelocated); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := s.MarkProcessed("/arch/A", model.OutcomeRelocated); err != nil {
		t.Fatalf("mark again: %v", err)
	}
	if !s.IsProcessed("/arch/A") {
		t.Error("expected /arch/A processed")
	}
	if n := len(s.Record().ProcessedUnits); n != 1 {
		t.Errorf("expected 1 processed unit, got %d", n)
	}

	reopened, err := Open(s.Path(), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reopened.IsProcessed("/arch/A") {
		t.Error("expected processed unit to survive reopen")
	}
}

func TestMarkProcessed_InvalidOutcome(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.MarkProcessed("/arch/A", "bogus"); err == nil {
		t.Error("expected error for invalid outcome")
	}
	if s.IsProcessed("/arch/A") {
		t.Error("expected unit not to be marked")
	}
}

func TestLoad_NewDayResets(t *testing.T) {
	s, clock := newTestStore(t)
	s.RecordUploaded("/arch/A", 3)

	clock.t = clock.t.Add(24 * time.Hour)
	rec, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Date != "2026-10-20" {
		t.Errorf("expected new date, got %q", rec.Date)
	}
	if rec.UploadsToday != 0 || len(rec.ProcessedUnits) != 0 {
		t.Errorf("expected reset record, got %+v", rec)
	}
}

func TestRollover_DuringRun(t *testing.T) {
	s, clock := newTestStore(t)
	s.RecordUploaded("/arch/A", 5)

	clock.t = clock.t.Add(16 * time.Hour)
	if s.UploadsToday() != 0 {
		t.Errorf("expected cap counter reset after midnight, got %d", s.UploadsToday())
	}
	if s.IsProcessed("/arch/A") {
		t.Error("expected processed set reset after midnight")
	}
}

func TestLoad_CorruptFileTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	os.WriteFile(path, []byte("{not json"), 0o644)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("expected corrupt file to be tolerated, got %v", err)
	}
	if len(s.Record().ProcessedUnits) != 0 {
		t.Error("expected fresh record")
	}
}

func TestLoad_UnreadablePathTreatedAsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("expected unreadable state file to be tolerated, got %v", err)
	}
	if len(s.Record().ProcessedUnits) != 0 {
		t.Error("expected fresh record")
	}
	if err := s.MarkProcessed("/arch/A", model.OutcomeUploaded); err == nil {
		t.Error("expected save onto a directory to fail")
	}
}

func TestLoad_BackfillsMissingFields(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
	path := filepath.Join(t.TempDir(), "state.json")
	os.WriteFile(path, []byte(`{"date":"2026-10-19","uploadsToday":3,"futureField":true}`), 0o644)

	s, err := Open(path, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rec := s.Record()
	if rec.UploadsToday != 3 {
		t.Errorf("expected uploadsToday 3, got %d", rec.UploadsToday)
	}
	if rec.ProcessedUnits == nil || rec.DeletedUnits == nil || rec.MovedUnits == nil {
		t.Errorf("expected slices back-filled, got %+v", rec)
	}
}

func TestRecordDeletedAndMoved(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.RecordDeleted("/arch/A", "found on archive", 2048); err != nil {
		t.Fatalf("record deleted: %v", err)
	}
	if err := s.RecordMoved("/arch/B", "book.epub", 100); err != nil {
		t.Fatalf("record moved: %v", err)
	}

	rec := s.Record()
	if len(rec.DeletedUnits) != 1 || rec.DeletedUnits[0].SizeBytes != 2048 {
		t.Errorf("unexpected deleted entries: %+v", rec.DeletedUnits)
	}
	if len(rec.MovedUnits) != 1 || rec.UnitsMoved != 1 {
		t.Errorf("unexpected moved entries: %+v", rec.MovedUnits)
	}
	if rec.Stats.TotalDeleted != 1 || rec.Stats.BytesFreed != 2048 {
		t.Errorf("unexpected stats: %+v", rec.Stats)
	}
	if !s.IsProcessed("/arch/A") || !s.IsProcessed("/arch/B") {
		t.Error("expected both units processed")
	}
}

func TestSave_UsesDocumentedFieldNames(t *testing.T) {
	s, _ := newTestStore(t)
	s.RecordUploaded("/arch/A", 2)

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, key := range []string{`"date"`, `"processedUnits"`, `"uploadsToday": 2`, `"deletedUnits"`, `"movedUnits"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("expected %s in state file, got:\n%s", key, data)
		}
	}
}

func TestReset(t *testing.T) {
	s, _ := newTestStore(t)
	s.RecordUploaded("/arch/A", 4)

	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if s.UploadsToday() != 0 || s.IsProcessed("/arch/A") {
		t.Error("expected empty state after reset")
	}
	rec, err := ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if rec.UploadsToday != 0 {
		t.Errorf("expected reset persisted, got %d", rec.UploadsToday)
	}
}

func TestUnmark(t *testing.T) {
	s, _ := newTestStore(t)
	s.MarkProcessed("/arch/A", model.OutcomeRelocated)
	s.MarkProcessed("/arch/B", model.OutcomeDeleted)

	ok, err := s.Unmark("/arch/A")
	if err != nil {
		t.Fatalf("unmark: %v", err)
	}
	if !ok {
		t.Error("expected unmark to report a removal")
	}
	if s.IsProcessed("/arch/A") || !s.IsProcessed("/arch/B") {
		t.Errorf("unexpected processed set: %v", s.Record().ProcessedUnits)
	}

	reopened, err := Open(s.Path(), WithClock(func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Record().ProcessedUnits; len(got) != 1 || got[0] != "/arch/B" {
		t.Errorf("expected only /arch/B persisted, got %v", got)
	}

	ok, _ = s.Unmark("/arch/missing")
	if ok {
		t.Error("expected false for unknown path")
	}
}
