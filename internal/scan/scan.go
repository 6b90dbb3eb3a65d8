// Package scan walks a local archive tree and groups files into units, one
// per directory.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rcliao/archive-sweep/internal/model"
	"github.com/rcliao/archive-sweep/internal/title"
)

const DefaultPrimaryExt = ".pdf"

var (
	// DefaultIgnoredExts are never part of a unit.
	DefaultIgnoredExts = []string{".jpg", ".png"}

	// DefaultPriorityExts is the preference order for relocating a
	// secondary file when a unit has no primary document.
	DefaultPriorityExts = []string{".mobi", ".epub", ".djvu", ".docx", ".doc", ".lit", ".rtf"}
)

// Options configures scanning.
type Options struct {
	PrimaryExt  string
	IgnoredExts []string
}

// DefaultOptions returns the e-book defaults.
func DefaultOptions() Options {
	return Options{
		PrimaryExt:  DefaultPrimaryExt,
		IgnoredExts: DefaultIgnoredExts,
	}
}

// Skip records a directory that could not be read.
type Skip struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Result is the outcome of one scan pass.
type Result struct {
	Units   []model.Unit `json:"units"`
	Skipped []Skip       `json:"skipped,omitempty"`
}

// Scanner builds units from a root directory.
type Scanner struct {
	root   string
	opts   Options
	logger *slog.Logger
}

// New creates a Scanner for root.
func New(root string, opts Options, logger *slog.Logger) *Scanner {
	if opts.PrimaryExt == "" {
		opts.PrimaryExt = DefaultPrimaryExt
	}
	if opts.IgnoredExts == nil {
		opts.IgnoredExts = DefaultIgnoredExts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{root: root, opts: opts, logger: logger}
}

// Root returns the scanned directory.
func (s *Scanner) Root() string { return s.root }

// Scan walks the tree eagerly. Units come back in traversal order. Symlinks
// are never followed, and unreadable directories are skipped and reported
// in Result.Skipped. Only a missing or unreadable root is an error.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", s.root)
	}

	res := &Result{}
	units := make(map[string]*model.Unit)
	var order []string

	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == s.root {
				return walkErr
			}
			s.logger.Warn("Skipping unreadable directory", "path", path, "error", walkErr)
			res.Skipped = append(res.Skipped, Skip{Path: path, Err: walkErr.Error()})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if _, ok := units[path]; !ok {
				units[path] = &model.Unit{Path: path, DisplayName: s.displayName(path)}
				order = append(order, path)
			}
			return nil
		}
		if !d.Type().IsRegular() || s.ignored(path) {
			return nil
		}
		u, ok := units[filepath.Dir(path)]
		if !ok {
			return nil
		}

		u.Files = append(u.Files, path)
		if s.isPrimary(path) {
			u.HasPrimaryDocument = true
			u.PrimaryFiles = append(u.PrimaryFiles, path)
		} else {
			u.SecondaryFiles = append(u.SecondaryFiles, path)
		}
		if fi, err := d.Info(); err == nil {
			u.SizeBytes += fi.Size()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}

	for _, dir := range order {
		if u := units[dir]; len(u.Files) > 0 {
			res.Units = append(res.Units, *u)
		}
	}

	s.logger.Debug("Scan complete", "root", s.root, "units", len(res.Units), "skipped", len(res.Skipped))
	return res, nil
}

func (s *Scanner) displayName(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." {
		return filepath.Base(path)
	}
	return rel
}

func (s *Scanner) ignored(path string) bool {
	return HasExt(path, s.opts.IgnoredExts)
}

// HasExt reports whether path ends in one of exts, ignoring case.
func HasExt(path string, exts []string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func (s *Scanner) isPrimary(path string) bool {
	return strings.EqualFold(filepath.Ext(path), s.opts.PrimaryExt)
}

// SortUnits orders units by the alphabetical key of their top-level
// directory. Units sharing a top-level directory keep traversal order, so a
// parent directory is always handled before its children.
func SortUnits(units []model.Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		return title.SortKey(topLevel(units[i].DisplayName)) < title.SortKey(topLevel(units[j].DisplayName))
	})
}

func topLevel(displayName string) string {
	if i := strings.IndexRune(displayName, filepath.Separator); i >= 0 {
		return displayName[:i]
	}
	return displayName
}

// PriorityFile returns the first file matching the earliest extension in
// priority.
func PriorityFile(files []string, priority []string) (string, bool) {
	for _, ext := range priority {
		for _, f := range files {
			if strings.EqualFold(filepath.Ext(f), ext) {
				return f, true
			}
		}
	}
	return "", false
}

// RepresentativeName picks the name a unit is searched under: its first
// primary document, else its first file in priority order, else the
// directory name.
func RepresentativeName(u model.Unit, priority []string) string {
	if len(u.PrimaryFiles) > 0 {
		return filepath.Base(u.PrimaryFiles[0])
	}
	if f, ok := PriorityFile(u.SecondaryFiles, priority); ok {
		return filepath.Base(f)
	}
	return filepath.Base(u.DisplayName)
}
