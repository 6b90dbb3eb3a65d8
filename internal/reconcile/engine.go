// Package reconcile drives the per-unit check-then-act loop: scan the
// local tree, ask the archive whether each unit already exists, then
// delete, upload, relocate or skip it and record the outcome.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rcliao/archive-sweep/internal/metrics"
	"github.com/rcliao/archive-sweep/internal/model"
	"github.com/rcliao/archive-sweep/internal/scan"
	"github.com/rcliao/archive-sweep/internal/store"
	"github.com/rcliao/archive-sweep/internal/title"
	"github.com/rcliao/archive-sweep/internal/upload"
)

// Scanner lists the units under the archive root.
type Scanner interface {
	Scan(ctx context.Context) (*scan.Result, error)
}

// Checker answers whether a normalized title already exists remotely.
type Checker interface {
	Exists(ctx context.Context, title string) model.MatchResult
}

// StateStore is the daily checkpoint the engine consults and updates.
// Every mutating call persists before returning.
type StateStore interface {
	IsProcessed(path string) bool
	UploadsToday() int
	MarkProcessed(path string, outcome model.Outcome) error
	RecordChecked() error
	RecordDeleted(path, reason string, sizeBytes int64) error
	RecordMoved(path, reason string, sizeBytes int64) error
	RecordUploaded(path string, files int) error
}

// Journal receives one entry per terminal outcome.
type Journal interface {
	Record(ctx context.Context, p store.RecordParams) (*model.Action, error)
}

// Validator checks a primary document before upload and returns its page
// count.
type Validator interface {
	Validate(path string) (int, error)
}

// Config holds the engine settings.
type Config struct {
	// Root bounds empty-parent cleanup; it is never removed itself.
	Root         string
	StagingPath  string
	DailyCap     int
	PriorityExts []string
	IgnoredExts  []string

	// DryRun checks every unit but changes nothing on disk or in state.
	DryRun bool

	// Delay is the pause between consecutive remote checks.
	Delay time.Duration

	CleanupEmptyParents bool
}

// Summary counts what one run did.
type Summary struct {
	Scanned       int   `json:"scanned"`
	Skipped       int   `json:"skipped"`
	Deleted       int   `json:"deleted"`
	Uploaded      int   `json:"uploaded"`
	Relocated     int   `json:"relocated"`
	Empty         int   `json:"skipped_empty"`
	Failed        int   `json:"failed"`
	Vanished      int   `json:"vanished"`
	ScanErrors    int   `json:"scan_errors"`
	BytesFreed    int64 `json:"bytes_freed"`
	FilesUploaded int   `json:"files_uploaded"`
	LimitReached  bool  `json:"limit_reached"`
	Interrupted   bool  `json:"interrupted"`
	DryRun        bool  `json:"dry_run,omitempty"`
}

// Engine processes units one at a time. It is not safe for concurrent use
// and two engines must not share a root.
type Engine struct {
	Scanner   Scanner
	Checker   Checker
	Uploader  upload.Uploader
	State     StateStore
	Journal   Journal   // optional
	Validator Validator // optional
	Logger    *slog.Logger
	Config    Config

	checks int
}

var errLimitReached = errors.New("daily upload limit reached")

// Run performs one reconciliation pass. Reaching the daily cap ends the
// pass early with Summary.LimitReached set and a nil error. Cancelling ctx
// stops before the next unit; every completed unit is already saved.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	logger := e.logger()
	sum := Summary{DryRun: e.Config.DryRun}
	e.checks = 0

	res, err := e.Scanner.Scan(ctx)
	if err != nil {
		if ctx.Err() != nil {
			sum.Interrupted = true
		}
		return sum, fmt.Errorf("scan: %w", err)
	}
	units := res.Units
	scan.SortUnits(units)
	sum.Scanned = len(units)
	sum.ScanErrors = len(res.Skipped)
	logger.Info("Scan complete", "units", len(units), "unreadable", len(res.Skipped), "dry_run", e.Config.DryRun)

	for _, u := range units {
		if err := ctx.Err(); err != nil {
			sum.Interrupted = true
			logger.Warn("Interrupted, state saved")
			return sum, err
		}
		if e.State.IsProcessed(u.Path) {
			sum.Skipped++
			continue
		}
		if _, err := os.Lstat(u.Path); errors.Is(err, fs.ErrNotExist) {
			logger.Info("Unit no longer on disk", "unit", u.DisplayName)
			sum.Vanished++
			continue
		}

		err := e.process(ctx, u, &sum)
		if errors.Is(err, errLimitReached) {
			sum.LimitReached = true
			logger.Info("Daily upload limit reached, stopping", "uploads_today", e.uploadsToday(&sum), "cap", e.Config.DailyCap)
			break
		}
		if err != nil {
			sum.Interrupted = true
			logger.Warn("Interrupted, state saved")
			return sum, err
		}
	}

	logger.Info("Run complete",
		"scanned", sum.Scanned,
		"skipped", sum.Skipped,
		"deleted", sum.Deleted,
		"uploaded", sum.Uploaded,
		"relocated", sum.Relocated,
		"empty", sum.Empty,
		"failed", sum.Failed,
		"freed", humanize.Bytes(uint64(sum.BytesFreed)),
	)
	return sum, nil
}

// process decides one unit. It returns errLimitReached or a context error
// to stop the run; every other failure is logged and counted.
func (e *Engine) process(ctx context.Context, u model.Unit, sum *Summary) error {
	logger := e.logger().With("unit", u.DisplayName)

	name := scan.RepresentativeName(u, e.Config.PriorityExts)
	t := title.Normalize(name)
	if t == "" {
		t = title.Normalize(filepath.Base(u.DisplayName))
	}

	if e.checks > 0 && e.Config.Delay > 0 {
		if err := sleep(ctx, e.Config.Delay); err != nil {
			return err
		}
	}
	e.checks++

	verdict := e.Checker.Exists(ctx, t)
	if err := ctx.Err(); err != nil {
		// a verdict reached while cancelling is never acted on
		return err
	}
	logger.Info("Checked", "title", t, "found", verdict.Found, "method", verdict.Method, "inconclusive", verdict.Inconclusive)
	if !e.Config.DryRun {
		if err := e.State.RecordChecked(); err != nil {
			logger.Error("Saving state failed", "error", err)
		}
	}

	switch {
	case verdict.Found:
		e.deleteUnit(ctx, logger, u, t, verdict, sum)
	case u.HasPrimaryDocument:
		return e.uploadUnit(ctx, logger, u, t, sum)
	default:
		e.relocateUnit(ctx, logger, u, t, sum)
	}
	return nil
}

func (e *Engine) deleteUnit(ctx context.Context, logger *slog.Logger, u model.Unit, t string, verdict model.MatchResult, sum *Summary) {
	reason := fmt.Sprintf("exists on archive (%s)", verdict.Method)
	if verdict.MatchedIdentifier != "" {
		reason = fmt.Sprintf("exists on archive as %s (%s)", verdict.MatchedIdentifier, verdict.Method)
	}

	if e.Config.DryRun {
		logger.Info("Dry run: would delete", "path", u.Path, "reason", reason, "size", humanize.Bytes(uint64(u.SizeBytes)))
		sum.Deleted++
		sum.BytesFreed += u.SizeBytes
		return
	}

	freed, err := RemoveUnit(u.Path, e.Config.Root, e.isUnitFile)
	if err != nil {
		metrics.FilesystemErrors.Add(1)
		sum.Failed++
		logger.Error("Delete failed, unit left unprocessed", "path", u.Path, "error", err)
		return
	}
	if err := e.State.RecordDeleted(u.Path, reason, freed); err != nil {
		logger.Error("Saving state failed", "error", err)
	}
	metrics.UnitsDeleted.Add(1)
	metrics.BytesFreed.Add(freed)
	sum.Deleted++
	sum.BytesFreed += freed
	logger.Info("Deleted", "path", u.Path, "reason", reason, "freed", humanize.Bytes(uint64(freed)))

	if e.Config.CleanupEmptyParents {
		for _, dir := range CleanupEmptyParents(u.Path, e.Config.Root) {
			logger.Info("Removed empty parent", "path", dir)
		}
	}

	e.journal(ctx, logger, store.RecordParams{
		UnitPath:          u.Path,
		DisplayName:       u.DisplayName,
		Title:             t,
		Outcome:           model.OutcomeDeleted,
		Method:            verdict.Method,
		MatchedIdentifier: verdict.MatchedIdentifier,
		SizeBytes:         freed,
		Files:             len(u.Files),
	})
}

// uploadsToday counts the files uploaded today. A dry run never writes
// state, so its would-be uploads are added from the summary.
func (e *Engine) uploadsToday(sum *Summary) int {
	n := e.State.UploadsToday()
	if e.Config.DryRun {
		n += sum.FilesUploaded
	}
	return n
}

func (e *Engine) uploadUnit(ctx context.Context, logger *slog.Logger, u model.Unit, t string, sum *Summary) error {
	if e.uploadsToday(sum) >= e.Config.DailyCap {
		return errLimitReached
	}

	if e.Validator != nil {
		for _, f := range u.PrimaryFiles {
			pages, err := e.Validator.Validate(f)
			if err != nil {
				sum.Failed++
				logger.Warn("Primary document failed validation, not uploading", "file", f, "error", err)
				return nil
			}
			logger.Debug("Validated", "file", filepath.Base(f), "pages", pages)
		}
	}

	if e.Config.DryRun {
		logger.Info("Dry run: would upload", "title", t, "files", len(u.Files))
		sum.Uploaded++
		sum.FilesUploaded += len(u.Files)
		return nil
	}

	if !e.Uploader.Upload(ctx, u.Files, t) {
		if err := ctx.Err(); err != nil {
			return err
		}
		metrics.UploadsFailed.Add(1)
		sum.Failed++
		logger.Warn("Upload failed, will retry next run", "title", t)
		return nil
	}
	if err := e.State.RecordUploaded(u.Path, len(u.Files)); err != nil {
		logger.Error("Saving state failed", "error", err)
	}
	metrics.UnitsUploaded.Add(1)
	sum.Uploaded++
	sum.FilesUploaded += len(u.Files)
	logger.Info("Uploaded", "title", t, "files", len(u.Files), "uploads_today", e.State.UploadsToday(), "cap", e.Config.DailyCap)

	e.journal(ctx, logger, store.RecordParams{
		UnitPath:    u.Path,
		DisplayName: u.DisplayName,
		Title:       t,
		Outcome:     model.OutcomeUploaded,
		Method:      model.MethodNone,
		SizeBytes:   u.SizeBytes,
		Files:       len(u.Files),
	})
	return nil
}

func (e *Engine) relocateUnit(ctx context.Context, logger *slog.Logger, u model.Unit, t string, sum *Summary) {
	src, ok := scan.PriorityFile(u.SecondaryFiles, e.Config.PriorityExts)
	if !ok {
		if e.Config.DryRun {
			logger.Info("Dry run: nothing relevant, would skip")
			sum.Empty++
			return
		}
		if err := e.State.MarkProcessed(u.Path, model.OutcomeSkippedEmpty); err != nil {
			logger.Error("Saving state failed", "error", err)
		}
		metrics.UnitsSkippedEmpty.Add(1)
		sum.Empty++
		logger.Info("No relevant files, skipped")
		e.journal(ctx, logger, store.RecordParams{
			UnitPath:    u.Path,
			DisplayName: u.DisplayName,
			Title:       t,
			Outcome:     model.OutcomeSkippedEmpty,
			Method:      model.MethodNone,
			Files:       len(u.Files),
		})
		return
	}

	dst := filepath.Join(e.Config.StagingPath, filepath.Base(src))
	if e.Config.DryRun {
		logger.Info("Dry run: would relocate", "file", src, "to", dst)
		sum.Relocated++
		return
	}

	n, err := Relocate(src, e.Config.StagingPath)
	if err != nil {
		metrics.FilesystemErrors.Add(1)
		sum.Failed++
		logger.Error("Relocate failed, unit left unprocessed", "file", src, "error", err)
		return
	}
	reason := fmt.Sprintf("no primary document; relocated %s to staging", filepath.Base(src))
	if err := e.State.RecordMoved(u.Path, reason, n); err != nil {
		logger.Error("Saving state failed", "error", err)
	}
	metrics.UnitsRelocated.Add(1)
	sum.Relocated++
	logger.Info("Relocated", "file", filepath.Base(src), "to", dst, "size", humanize.Bytes(uint64(n)))

	e.journal(ctx, logger, store.RecordParams{
		UnitPath:    u.Path,
		DisplayName: u.DisplayName,
		Title:       t,
		Outcome:     model.OutcomeRelocated,
		Method:      model.MethodNone,
		SizeBytes:   n,
		Files:       1,
	})
}

func (e *Engine) journal(ctx context.Context, logger *slog.Logger, p store.RecordParams) {
	if e.Journal == nil {
		return
	}
	if _, err := e.Journal.Record(ctx, p); err != nil {
		logger.Warn("Journal write failed", "error", err)
	}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// isUnitFile mirrors the scanner's membership rule: any file whose
// extension is not ignored.
func (e *Engine) isUnitFile(name string) bool {
	ignored := e.Config.IgnoredExts
	if ignored == nil {
		ignored = scan.DefaultIgnoredExts
	}
	return !scan.HasExt(name, ignored)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
