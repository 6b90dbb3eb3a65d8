package triage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rcliao/archive-sweep/internal/metrics"
	"github.com/rcliao/archive-sweep/internal/model"
	"github.com/rcliao/archive-sweep/internal/scan"
	"github.com/rcliao/archive-sweep/internal/title"
)

const DefaultMinRatio = 0.6

// DefaultExtensions are the document types considered when looking for the
// source of a failed upload.
var DefaultExtensions = []string{".pdf", ".epub", ".mobi", ".djvu", ".docx", ".doc"}

// Quarantine matches failures to local files and copies them aside.
type Quarantine struct {
	Dir         string
	SearchRoots []string
	Extensions  []string
	// MinRatio is the similarity a candidate must exceed.
	MinRatio float64
	Now      func() time.Time
	Logger   *slog.Logger
}

// Copied describes one quarantined file.
type Copied struct {
	Failure    model.Failure `json:"failure"`
	Original   string        `json:"original"`
	Copy       string        `json:"copy"`
	Info       string        `json:"info"`
	Similarity float64       `json:"similarity"`
	SizeBytes  int64         `json:"size_bytes"`
}

// Missed describes a failure that could not be quarantined.
type Missed struct {
	Failure  model.Failure `json:"failure"`
	Original string        `json:"original,omitempty"`
	Reason   string        `json:"reason"`
}

// Report is the outcome of one triage pass.
type Report struct {
	Copied     []Copied `json:"copied"`
	Missed     []Missed `json:"missed"`
	Skipped    int      `json:"skipped"`
	ReportPath string   `json:"report_path,omitempty"`
}

type candidate struct {
	path string
	key  string
}

// Process quarantines the source file of every failure. Unmatched files
// and copy errors are recorded in the report and never stop the pass. The
// error is reserved for an unusable quarantine directory or cancellation.
func (q *Quarantine) Process(ctx context.Context, failures []model.Failure) (*Report, error) {
	logger := q.logger()
	rep := &Report{Copied: []Copied{}, Missed: []Missed{}}

	var pending []model.Failure
	for _, f := range failures {
		if f.ErrorCode == CodeTabClosed {
			rep.Skipped++
			continue
		}
		pending = append(pending, f)
	}
	if len(pending) == 0 {
		logger.Info("No upload failures to quarantine", "skipped", rep.Skipped)
		return rep, nil
	}

	if err := os.MkdirAll(q.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create quarantine dir: %w", err)
	}
	candidates, err := q.index(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Indexed candidate files", "files", len(candidates), "roots", len(q.SearchRoots))

	for _, f := range pending {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		flog := logger.With("filename", f.Filename, "code", f.ErrorCode)

		src, ratio := q.bestMatch(f.Filename, candidates)
		if src == "" {
			flog.Warn("Original file not found")
			rep.Missed = append(rep.Missed, Missed{Failure: f, Reason: "original file not found"})
			continue
		}

		c, err := q.quarantine(f, src, ratio)
		if err != nil {
			flog.Error("Copy failed", "original", src, "error", err)
			rep.Missed = append(rep.Missed, Missed{Failure: f, Original: src, Reason: err.Error()})
			continue
		}
		metrics.FilesQuarantined.Add(1)
		flog.Info("Quarantined", "original", src, "copy", filepath.Base(c.Copy), "similarity", fmt.Sprintf("%.2f", ratio))
		rep.Copied = append(rep.Copied, c)
	}

	path, err := q.writeSummary(pending, rep)
	if err != nil {
		logger.Error("Writing summary report failed", "error", err)
	} else {
		rep.ReportPath = path
	}
	return rep, nil
}

// index lists every candidate document under the search roots, skipping
// the quarantine directory itself.
func (q *Quarantine) index(ctx context.Context) ([]candidate, error) {
	exts := q.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	qdir, _ := filepath.Abs(q.Dir)

	var out []candidate
	for _, root := range q.SearchRoots {
		if _, err := os.Stat(root); err != nil {
			q.logger().Warn("Skipping search root", "root", root, "error", err)
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if abs, _ := filepath.Abs(path); abs == qdir {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && scan.HasExt(path, exts) {
				out = append(out, candidate{path: path, key: title.MatchKey(path)})
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", root, err)
		}
	}
	return out, nil
}

func (q *Quarantine) bestMatch(name string, candidates []candidate) (string, float64) {
	threshold := q.MinRatio
	if threshold <= 0 {
		threshold = DefaultMinRatio
	}
	key := title.MatchKey(name)
	best, bestRatio := "", 0.0
	for _, c := range candidates {
		r := title.MatchRatio(key, c.key)
		if r > threshold && r > bestRatio {
			best, bestRatio = c.path, r
		}
	}
	return best, bestRatio
}

func (q *Quarantine) quarantine(f model.Failure, src string, ratio float64) (Copied, error) {
	ext := filepath.Ext(src)
	stem := strings.TrimSuffix(filepath.Base(src), ext)
	code := sanitizeCode(f.ErrorCode)
	base := fmt.Sprintf("%s_ERROR-%s_%s", stem, code, q.now().Format("150405"))

	// two failures can resolve to the same file within one second
	name := base
	for i := 2; ; i++ {
		if _, err := os.Lstat(filepath.Join(q.Dir, name+ext)); os.IsNotExist(err) {
			break
		}
		name = fmt.Sprintf("%s-%d", base, i)
	}

	dst := filepath.Join(q.Dir, name+ext)
	n, err := copyFile(src, dst)
	if err != nil {
		return Copied{}, err
	}

	info := filepath.Join(q.Dir, name+"_INFO.txt")
	if err := os.WriteFile(info, []byte(infoText(f, src, ratio, n)), 0o644); err != nil {
		return Copied{}, fmt.Errorf("write info: %w", err)
	}
	return Copied{Failure: f, Original: src, Copy: dst, Info: info, Similarity: ratio, SizeBytes: n}, nil
}

func infoText(f model.Failure, src string, ratio float64, size int64) string {
	details := f.Details
	if details == "" {
		details = "no details available"
	}
	var b strings.Builder
	b.WriteString("UPLOAD ERROR\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")
	fmt.Fprintf(&b, "Original file: %s\n", src)
	fmt.Fprintf(&b, "Reported name: %s\n", f.Filename)
	fmt.Fprintf(&b, "Error code: %s\n", f.ErrorCode)
	fmt.Fprintf(&b, "Error status: %s\n", f.ErrorStatus)
	fmt.Fprintf(&b, "Error timestamp: %s\n", f.Timestamp)
	fmt.Fprintf(&b, "Page title: %s\n", f.PageTitle)
	fmt.Fprintf(&b, "Similarity: %.2f\n", ratio)
	fmt.Fprintf(&b, "Size: %s\n\n", humanize.Bytes(uint64(size)))
	b.WriteString("ERROR DETAILS:\n")
	b.WriteString(strings.Repeat("-", 20) + "\n")
	b.WriteString(details)
	b.WriteString("\n")
	return b.String()
}

func (q *Quarantine) writeSummary(failures []model.Failure, rep *Report) (string, error) {
	now := q.now()
	var b strings.Builder
	fmt.Fprintf(&b, "UPLOAD ERRORS - %s\n", now.Format(time.RFC3339))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	for i, f := range failures {
		fmt.Fprintf(&b, "%d. %s (code: %s, status: %s)\n", i+1, f.Filename, f.ErrorCode, f.ErrorStatus)
	}

	if len(rep.Copied) > 0 {
		b.WriteString("\n" + strings.Repeat("=", 60) + "\n")
		fmt.Fprintf(&b, "COPIED TO %s:\n\n", q.Dir)
		for _, c := range rep.Copied {
			fmt.Fprintf(&b, "%s\n", filepath.Base(c.Original))
			fmt.Fprintf(&b, "   copy: %s\n", c.Copy)
			fmt.Fprintf(&b, "   info: %s\n", c.Info)
			fmt.Fprintf(&b, "   code: %s\n\n", c.Failure.ErrorCode)
		}
	}
	if len(rep.Missed) > 0 {
		b.WriteString("\n" + strings.Repeat("=", 60) + "\n")
		b.WriteString("NOT COPIED:\n\n")
		for _, m := range rep.Missed {
			fmt.Fprintf(&b, "%s\n   reason: %s\n\n", m.Failure.Filename, m.Reason)
		}
	}

	path := filepath.Join(q.Dir, fmt.Sprintf("upload_errors_%s.txt", now.Format("20060102_150405")))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return 0, fmt.Errorf("copy %s: %w", src, err)
	}
	os.Chtimes(dst, info.ModTime(), info.ModTime())
	return n, nil
}

func sanitizeCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, code)
}

func (q *Quarantine) now() time.Time {
	if q.Now == nil {
		return time.Now()
	}
	return q.Now()
}

func (q *Quarantine) logger() *slog.Logger {
	if q.Logger == nil {
		return slog.Default()
	}
	return q.Logger
}
