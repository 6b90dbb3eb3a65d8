// Package state persists the daily reconciliation checkpoint as a JSON file.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rcliao/archive-sweep/internal/model"
)

// DateLayout is the layout of StateRecord.Date.
const DateLayout = "2006-01-02"

// Store owns the checkpoint file. It is not safe for concurrent use; a
// single process drives it.
type Store struct {
	path      string
	now       func() time.Time
	logger    *slog.Logger
	rec       *model.StateRecord
	processed map[string]bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock used for the daily reset.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for non-fatal load problems.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open loads the checkpoint at path, creating a fresh record when the file
// is missing, unreadable, or from another day.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:   path,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the checkpoint file location.
func (s *Store) Path() string { return s.path }

func (s *Store) today() string {
	return s.now().Format(DateLayout)
}

func fresh(date string) *model.StateRecord {
	return &model.StateRecord{
		Date:           date,
		ProcessedUnits: []string{},
		DeletedUnits:   []model.AuditEntry{},
		MovedUnits:     []model.AuditEntry{},
	}
}

// Load re-reads the checkpoint from disk. A missing, corrupt or unreadable
// file is treated as absent; a path that cannot be written surfaces on the
// next Save.
func (s *Store) Load() (*model.StateRecord, error) {
	today := s.today()
	rec, err := ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		rec = fresh(today)
	case err != nil:
		s.logger.Warn("State file unreadable, starting fresh", "path", s.path, "error", err)
		rec = fresh(today)
	case rec.Date != today:
		s.logger.Info("New day, resetting state", "previous", rec.Date, "today", today)
		rec = fresh(today)
	}
	s.set(rec)
	return s.Record(), nil
}

// ErrCorrupt marks a checkpoint file that exists but cannot be decoded.
var ErrCorrupt = errors.New("corrupt state file")

// ReadFile decodes a checkpoint file without applying the daily reset.
// Missing slices are back-filled so callers never see nil.
func ReadFile(path string) (*model.StateRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	var rec model.StateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	backfill(&rec)
	return &rec, nil
}

func backfill(rec *model.StateRecord) {
	if rec.ProcessedUnits == nil {
		rec.ProcessedUnits = []string{}
	}
	if rec.DeletedUnits == nil {
		rec.DeletedUnits = []model.AuditEntry{}
	}
	if rec.MovedUnits == nil {
		rec.MovedUnits = []model.AuditEntry{}
	}
}

func (s *Store) set(rec *model.StateRecord) {
	s.rec = rec
	s.processed = make(map[string]bool, len(rec.ProcessedUnits))
	for _, p := range rec.ProcessedUnits {
		s.processed[p] = true
	}
}

// rollover starts a fresh record if the day changed during a run, so the
// upload cap never spans two days.
func (s *Store) rollover() {
	if today := s.today(); s.rec.Date != today {
		s.logger.Info("Day changed during run, resetting state", "previous", s.rec.Date, "today", today)
		s.set(fresh(today))
	}
}

// Record returns a copy of the current checkpoint.
func (s *Store) Record() *model.StateRecord {
	cp := *s.rec
	cp.ProcessedUnits = append([]string(nil), s.rec.ProcessedUnits...)
	cp.DeletedUnits = append([]model.AuditEntry(nil), s.rec.DeletedUnits...)
	cp.MovedUnits = append([]model.AuditEntry(nil), s.rec.MovedUnits...)
	backfill(&cp)
	return &cp
}

// Save writes the checkpoint atomically.
func (s *Store) Save() error {
	data, err := json.MarshalIndent(s.rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := writeFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// IsProcessed reports whether path already reached a terminal outcome today.
func (s *Store) IsProcessed(path string) bool {
	s.rollover()
	return s.processed[path]
}

// UploadsToday returns the number of files uploaded today.
func (s *Store) UploadsToday() int {
	s.rollover()
	return s.rec.UploadsToday
}

func (s *Store) mark(path string) {
	if !s.processed[path] {
		s.processed[path] = true
		s.rec.ProcessedUnits = append(s.rec.ProcessedUnits, path)
	}
	s.rec.LastProcessed = path
}

// MarkProcessed records a terminal outcome for path and saves. Marking a
// path twice leaves the membership set unchanged.
func (s *Store) MarkProcessed(path string, outcome model.Outcome) error {
	if !model.ValidOutcomes[outcome] {
		return fmt.Errorf("invalid outcome %q", outcome)
	}
	s.rollover()
	s.mark(path)
	return s.Save()
}

// RecordChecked counts one remote existence check.
func (s *Store) RecordChecked() error {
	s.rollover()
	s.rec.Stats.TotalChecked++
	return s.Save()
}

// RecordDeleted appends a deletion audit entry and marks path processed.
func (s *Store) RecordDeleted(path, reason string, sizeBytes int64) error {
	s.rollover()
	s.rec.DeletedUnits = append(s.rec.DeletedUnits, model.AuditEntry{
		Path:      path,
		Reason:    reason,
		Timestamp: s.now().UTC(),
		SizeBytes: sizeBytes,
	})
	s.rec.Stats.TotalDeleted++
	s.rec.Stats.BytesFreed += sizeBytes
	s.mark(path)
	return s.Save()
}

// RecordMoved appends a relocation audit entry and marks path processed.
func (s *Store) RecordMoved(path, reason string, sizeBytes int64) error {
	s.rollover()
	s.rec.MovedUnits = append(s.rec.MovedUnits, model.AuditEntry{
		Path:      path,
		Reason:    reason,
		Timestamp: s.now().UTC(),
		SizeBytes: sizeBytes,
	})
	s.rec.UnitsMoved++
	s.mark(path)
	return s.Save()
}

// RecordUploaded counts files toward today's cap and marks path processed
// in a single save, so a batch is counted entirely or not at all.
func (s *Store) RecordUploaded(path string, files int) error {
	s.rollover()
	s.rec.UploadsToday += files
	s.rec.TotalFilesUploaded += files
	s.mark(path)
	return s.Save()
}

// Unmark removes path from today's processed set so the next run checks
// it again. Reports whether the path was present.
func (s *Store) Unmark(path string) (bool, error) {
	s.rollover()
	if !s.processed[path] {
		return false, nil
	}
	delete(s.processed, path)
	kept := s.rec.ProcessedUnits[:0]
	for _, p := range s.rec.ProcessedUnits {
		if p != path {
			kept = append(kept, p)
		}
	}
	s.rec.ProcessedUnits = kept
	return true, s.Save()
}

// Reset discards all progress for today and saves the empty record.
func (s *Store) Reset() error {
	s.set(fresh(s.today()))
	return s.Save()
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
