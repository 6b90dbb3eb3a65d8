package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rcliao/archive-sweep/internal/model"
	"github.com/rcliao/archive-sweep/internal/remote"
	"github.com/rcliao/archive-sweep/internal/scan"
	"github.com/rcliao/archive-sweep/internal/state"
	"github.com/rcliao/archive-sweep/internal/store"
)

type fakeChecker struct {
	found map[string]string // title -> identifier
	calls []string
	hook  func(title string)
}

func (c *fakeChecker) Exists(_ context.Context, t string) model.MatchResult {
	c.calls = append(c.calls, t)
	if c.hook != nil {
		c.hook(t)
	}
	if id, ok := c.found[t]; ok {
		return model.MatchResult{Found: true, MatchedIdentifier: id, MatchedTitle: t, Method: model.MethodTitleSearch}
	}
	return model.MatchResult{Method: model.MethodNone}
}

type fakeUploader struct {
	ok     bool
	calls  [][]string
	titles []string
}

func (u *fakeUploader) Upload(_ context.Context, files []string, t string) bool {
	u.calls = append(u.calls, files)
	u.titles = append(u.titles, t)
	return u.ok
}

type fakeJournal struct {
	entries []store.RecordParams
}

func (j *fakeJournal) Record(_ context.Context, p store.RecordParams) (*model.Action, error) {
	j.entries = append(j.entries, p)
	return &model.Action{UnitPath: p.UnitPath, Outcome: p.Outcome}, nil
}

type fakeValidator struct{ bad map[string]bool }

func (v fakeValidator) Validate(path string) (int, error) {
	if v.bad[filepath.Base(path)] {
		return 0, errors.New("not a pdf")
	}
	return 12, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

type harness struct {
	root     string
	staging  string
	engine   *Engine
	state    *state.Store
	checker  *fakeChecker
	uploader *fakeUploader
	journal  *fakeJournal
}

func newHarness(t *testing.T, root string) *harness {
	t.Helper()
	now := func() time.Time { return time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC) }
	st, err := state.Open(filepath.Join(t.TempDir(), "state.json"), state.WithClock(now))
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	h := &harness{
		root:     root,
		staging:  filepath.Join(t.TempDir(), "staging"),
		state:    st,
		checker:  &fakeChecker{found: map[string]string{}},
		uploader: &fakeUploader{ok: true},
		journal:  &fakeJournal{},
	}
	h.engine = h.newEngine()
	return h
}

// newEngine builds a fresh engine sharing the harness collaborators, the
// way a second process invocation would.
func (h *harness) newEngine() *Engine {
	return &Engine{
		Scanner:  scan.New(h.root, scan.DefaultOptions(), slog.Default()),
		Checker:  h.checker,
		Uploader: h.uploader,
		State:    h.state,
		Journal:  h.journal,
		Config: Config{
			Root:                h.root,
			StagingPath:         h.staging,
			DailyCap:            100,
			PriorityExts:        scan.DefaultPriorityExts,
			IgnoredExts:         scan.DefaultIgnoredExts,
			CleanupEmptyParents: true,
		},
	}
}

func TestRun_FoundUnitIsDeleted(t *testing.T) {
	root := t.TempDir()
	unit := filepath.Join(root, "Ionescu")
	writeFile(t, filepath.Join(unit, "Ionescu, Ion - Poarta (trad.) - retail_202508.pdf"), "pdf bytes")
	writeFile(t, filepath.Join(unit, "cover.jpg"), "img")

	h := newHarness(t, root)
	h.checker.found["Ionescu, Ion - Poarta"] = "poarta00ione"

	sum, err := h.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Deleted != 1 || sum.Uploaded != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if exists(unit) {
		t.Error("expected unit directory removed")
	}
	if !exists(root) {
		t.Error("root must survive")
	}
	if sum.BytesFreed != int64(len("pdf bytes")+len("img")) {
		t.Errorf("expected freed bytes to include every removed file, got %d", sum.BytesFreed)
	}
	if !h.state.IsProcessed(unit) {
		t.Error("expected unit marked processed")
	}
	rec := h.state.Record()
	if len(rec.DeletedUnits) != 1 || rec.DeletedUnits[0].Path != unit {
		t.Errorf("expected deletion audit entry, got %+v", rec.DeletedUnits)
	}
	if len(h.journal.entries) != 1 || h.journal.entries[0].MatchedIdentifier != "poarta00ione" {
		t.Errorf("unexpected journal: %+v", h.journal.entries)
	}
	if len(h.uploader.calls) != 0 {
		t.Error("uploader must not run for a found unit")
	}
}

func TestRun_RelocatesPriorityFileOverwriting(t *testing.T) {
	root := t.TempDir()
	unit := filepath.Join(root, "X")
	writeFile(t, filepath.Join(unit, "book.epub"), "new edition")
	writeFile(t, filepath.Join(unit, "book.rtf"), "rtf")

	h := newHarness(t, root)
	writeFile(t, filepath.Join(h.staging, "book.epub"), "old")

	sum, err := h.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Relocated != 1 {
		t.Fatalf("expected 1 relocation, got %+v", sum)
	}
	data, err := os.ReadFile(filepath.Join(h.staging, "book.epub"))
	if err != nil {
		t.Fatalf("read staged: %v", err)
	}
	if string(data) != "new edition" {
		t.Errorf("expected staged file overwritten, got %q", data)
	}
	if exists(filepath.Join(h.staging, "book.rtf")) {
		t.Error("only the highest priority file is relocated")
	}
	if !exists(filepath.Join(unit, "book.epub")) {
		t.Error("relocation copies; the source stays")
	}
	if !h.state.IsProcessed(unit) {
		t.Error("expected unit marked processed")
	}
	if rec := h.state.Record(); rec.UnitsMoved != 1 || len(rec.MovedUnits) != 1 {
		t.Errorf("expected move recorded, got %+v", rec)
	}
	if h.journal.entries[0].Outcome != model.OutcomeRelocated {
		t.Errorf("unexpected journal outcome %q", h.journal.entries[0].Outcome)
	}
}

func TestRun_UploadsPrimaryDocument(t *testing.T) {
	root := t.TempDir()
	unit := filepath.Join(root, "Kafka")
	writeFile(t, filepath.Join(unit, "Kafka - The Trial.pdf"), "pdf")
	writeFile(t, filepath.Join(unit, "Kafka - The Trial.epub"), "epub")

	h := newHarness(t, root)
	sum, err := h.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Uploaded != 1 || sum.FilesUploaded != 2 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if h.uploader.titles[0] != "Kafka - The Trial" {
		t.Errorf("unexpected upload title %q", h.uploader.titles[0])
	}
	if len(h.uploader.calls[0]) != 2 {
		t.Errorf("expected every unit file uploaded, got %v", h.uploader.calls[0])
	}
	if h.state.UploadsToday() != 2 {
		t.Errorf("expected 2 files counted, got %d", h.state.UploadsToday())
	}
	if !exists(unit) {
		t.Error("uploaded units stay on disk")
	}
}

func TestRun_SkipsUnitWithoutRelevantFiles(t *testing.T) {
	root := t.TempDir()
	unit := filepath.Join(root, "Notes")
	writeFile(t, filepath.Join(unit, "readme.txt"), "hi")

	h := newHarness(t, root)
	sum, _ := h.engine.Run(context.Background())
	if sum.Empty != 1 {
		t.Fatalf("expected skipped-empty, got %+v", sum)
	}
	if !h.state.IsProcessed(unit) {
		t.Error("expected unit marked processed")
	}
	if len(h.checker.calls) != 1 || h.checker.calls[0] != "Notes" {
		t.Errorf("expected directory name used as title, got %v", h.checker.calls)
	}
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	root := t.TempDir()
	names := []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf", "Hotel", "India", "Juliet"}
	for i, n := range names {
		dir := filepath.Join(root, n)
		switch {
		case i < 3:
			writeFile(t, filepath.Join(dir, n+" - Found.pdf"), "x")
		case i < 7:
			writeFile(t, filepath.Join(dir, n+" - New.pdf"), "x")
		case i < 9:
			writeFile(t, filepath.Join(dir, n+".epub"), "x")
		default:
			writeFile(t, filepath.Join(dir, n+".txt"), "x")
		}
	}

	h := newHarness(t, root)
	for _, n := range names[:3] {
		h.checker.found[n+" - Found"] = n
	}

	first, err := h.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Deleted != 3 || first.Uploaded != 4 || first.Relocated != 2 || first.Empty != 1 {
		t.Fatalf("unexpected first run: %+v", first)
	}
	processed := h.state.Record().ProcessedUnits
	if len(processed) != 10 {
		t.Fatalf("expected 10 processed, got %d", len(processed))
	}
	checks, uploads, journal := len(h.checker.calls), len(h.uploader.calls), len(h.journal.entries)

	second, err := h.newEngine().Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Deleted+second.Uploaded+second.Relocated+second.Empty+second.Failed != 0 {
		t.Errorf("expected no actions on second run, got %+v", second)
	}
	if second.Skipped != 7 {
		t.Errorf("expected 7 remaining units skipped, got %d", second.Skipped)
	}
	if len(h.checker.calls) != checks || len(h.uploader.calls) != uploads || len(h.journal.entries) != journal {
		t.Error("second run must not check, upload or journal anything")
	}
	again := h.state.Record().ProcessedUnits
	if len(again) != len(processed) {
		t.Fatalf("processed set changed: %v -> %v", processed, again)
	}
	for i := range again {
		if again[i] != processed[i] {
			t.Errorf("processed[%d] = %s, want %s", i, again[i], processed[i])
		}
	}
}

func TestRun_DailyCapHaltsBeforeUpload(t *testing.T) {
	root := t.TempDir()
	names := []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot"}
	for _, n := range names {
		writeFile(t, filepath.Join(root, n, n+".pdf"), "x")
	}

	h := newHarness(t, root)
	h.engine.Config.DailyCap = 5

	sum, err := h.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Uploaded != 5 || !sum.LimitReached {
		t.Fatalf("expected 5 uploads then limit, got %+v", sum)
	}
	if len(h.uploader.calls) != 5 {
		t.Errorf("uploader must not be called at the cap, got %d calls", len(h.uploader.calls))
	}
	last := filepath.Join(root, "Foxtrot")
	if h.state.IsProcessed(last) {
		t.Error("unit at the cap must stay unprocessed")
	}

	// a later run the same day stops at the first primary document
	eng := h.newEngine()
	eng.Config.DailyCap = 5
	sum, _ = eng.Run(context.Background())
	if !sum.LimitReached || sum.Uploaded != 0 {
		t.Errorf("expected immediate limit, got %+v", sum)
	}
	if h.state.UploadsToday() != 5 {
		t.Errorf("expected 5 counted, got %d", h.state.UploadsToday())
	}
}

func TestRun_InconclusiveCheckNeverDeletes(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	root := t.TempDir()
	unit := filepath.Join(root, "Kafka")
	writeFile(t, filepath.Join(unit, "Kafka - The Trial.pdf"), "pdf")

	h := newHarness(t, root)
	h.engine.Checker = remote.NewClient(
		remote.WithEndpoints(srv.URL+"/advancedsearch.php", srv.URL+"/details"),
		remote.WithRetry(3, time.Millisecond),
	)

	sum, err := h.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls.Load() == 0 {
		t.Fatal("expected remote calls")
	}
	if sum.Deleted != 0 || !exists(unit) {
		t.Fatal("an inconclusive check must never delete")
	}
	if sum.Uploaded != 1 {
		t.Errorf("expected the unit to fall through to upload, got %+v", sum)
	}
}

func TestRun_NoCrossUnitLeakage(t *testing.T) {
	root := t.TempDir()
	author := filepath.Join(root, "Kafka")
	child := filepath.Join(author, "Amerika")
	writeFile(t, filepath.Join(author, "Kafka - The Trial.pdf"), "trial")
	writeFile(t, filepath.Join(author, "covers", "trial.jpg"), "img")
	writeFile(t, filepath.Join(child, "Kafka - Amerika.pdf"), "amerika")

	h := newHarness(t, root)
	h.checker.found["Kafka - The Trial"] = "thetrial"

	sum, err := h.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Deleted != 1 || sum.Uploaded != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if exists(filepath.Join(author, "Kafka - The Trial.pdf")) {
		t.Error("expected the found unit's file removed")
	}
	if exists(filepath.Join(author, "covers")) {
		t.Error("expected image-only subdirectory removed with its unit")
	}
	if !exists(filepath.Join(child, "Kafka - Amerika.pdf")) {
		t.Fatal("a nested unit must survive its parent's deletion")
	}
	if h.uploader.titles[0] != "Kafka - Amerika" {
		t.Errorf("expected nested unit uploaded, got %v", h.uploader.titles)
	}
}

func TestRun_UploadFailureLeavesUnitForRetry(t *testing.T) {
	root := t.TempDir()
	unit := filepath.Join(root, "Kafka")
	writeFile(t, filepath.Join(unit, "Kafka - The Trial.pdf"), "pdf")

	h := newHarness(t, root)
	h.uploader.ok = false

	sum, _ := h.engine.Run(context.Background())
	if sum.Failed != 1 || sum.Uploaded != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if h.state.IsProcessed(unit) || h.state.UploadsToday() != 0 {
		t.Error("failed upload must not be recorded")
	}

	h.uploader.ok = true
	sum, _ = h.newEngine().Run(context.Background())
	if sum.Uploaded != 1 {
		t.Errorf("expected retry to upload, got %+v", sum)
	}
}

func TestRun_DeleteFailureLeavesUnitUnprocessed(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	root := t.TempDir()
	unit := filepath.Join(root, "Locked")
	writeFile(t, filepath.Join(unit, "Locked.pdf"), "pdf")
	if err := os.Chmod(unit, 0o555); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(unit, 0o755) })

	h := newHarness(t, root)
	h.checker.found["Locked"] = "locked"

	sum, err := h.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failed != 1 || sum.Deleted != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if h.state.IsProcessed(unit) {
		t.Error("failed delete must not be recorded")
	}
}

func TestRun_DryRunChangesNothing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Alpha", "Alpha.pdf"), "x")
	writeFile(t, filepath.Join(root, "Bravo", "Bravo.pdf"), "x")
	writeFile(t, filepath.Join(root, "Charlie", "Charlie.epub"), "x")

	h := newHarness(t, root)
	h.checker.found["Alpha"] = "alpha"
	h.engine.Config.DryRun = true

	sum, err := h.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Deleted != 1 || sum.Uploaded != 1 || sum.Relocated != 1 || !sum.DryRun {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if !exists(filepath.Join(root, "Alpha", "Alpha.pdf")) {
		t.Error("dry run must not delete")
	}
	if exists(filepath.Join(h.staging, "Charlie.epub")) {
		t.Error("dry run must not relocate")
	}
	if len(h.uploader.calls) != 0 || len(h.journal.entries) != 0 {
		t.Error("dry run must not upload or journal")
	}
	if rec := h.state.Record(); len(rec.ProcessedUnits) != 0 || rec.Stats.TotalChecked != 0 {
		t.Errorf("dry run must not touch state, got %+v", rec)
	}
}

func TestRun_DryRunStopsAtCap(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"Alpha", "Bravo", "Charlie"} {
		writeFile(t, filepath.Join(root, name, name+".pdf"), "x")
	}

	h := newHarness(t, root)
	h.engine.Config.DryRun = true
	h.engine.Config.DailyCap = 1

	sum, err := h.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Uploaded != 1 || sum.FilesUploaded != 1 || !sum.LimitReached {
		t.Errorf("dry run should stop at the cap like a real run, got %+v", sum)
	}
	if got := h.state.UploadsToday(); got != 0 {
		t.Errorf("dry run must not count uploads in state, got %d", got)
	}
}

func TestRun_CancelDuringCheckDoesNotAct(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Alpha", "Alpha.pdf"), "x")
	writeFile(t, filepath.Join(root, "Bravo", "Bravo.pdf"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, root)
	h.checker.hook = func(string) { cancel() }

	sum, err := h.engine.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !sum.Interrupted {
		t.Error("expected interrupted summary")
	}
	if len(h.uploader.calls) != 0 {
		t.Error("a check interrupted by cancellation must not lead to an upload")
	}
	if len(h.checker.calls) != 1 {
		t.Errorf("expected the loop to stop after one check, got %d", len(h.checker.calls))
	}
}

func TestRun_CleansUpEmptyParents(t *testing.T) {
	root := t.TempDir()
	shelf := filepath.Join(root, "Shelf")
	writeFile(t, filepath.Join(shelf, "Thumbs.db"), "junk")
	writeFile(t, filepath.Join(shelf, "Book", "Book.pdf"), "x")

	h := newHarness(t, root)
	h.checker.found["Book"] = "book"

	if _, err := h.engine.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if exists(shelf) {
		t.Error("expected clutter-only parent removed")
	}
	if !exists(root) {
		t.Error("root must survive cleanup")
	}
}

func TestRun_InvalidPrimaryDocumentIsNotUploaded(t *testing.T) {
	root := t.TempDir()
	unit := filepath.Join(root, "Broken")
	writeFile(t, filepath.Join(unit, "Broken.pdf"), "garbage")

	h := newHarness(t, root)
	h.engine.Validator = fakeValidator{bad: map[string]bool{"Broken.pdf": true}}

	sum, _ := h.engine.Run(context.Background())
	if sum.Failed != 1 || len(h.uploader.calls) != 0 {
		t.Errorf("expected validation failure without upload, got %+v", sum)
	}
	if h.state.IsProcessed(unit) {
		t.Error("invalid unit must stay unprocessed")
	}
}

func TestRun_DelayBetweenChecks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Alpha", "Alpha.txt"), "x")
	writeFile(t, filepath.Join(root, "Bravo", "Bravo.txt"), "x")

	h := newHarness(t, root)
	h.engine.Config.Delay = 20 * time.Millisecond

	start := time.Now()
	if _, err := h.engine.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("expected at least one delay, took %v", elapsed)
	}
}

func TestRun_MissingRoot(t *testing.T) {
	h := newHarness(t, filepath.Join(t.TempDir(), "gone"))
	if _, err := h.engine.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing root")
	}
}
