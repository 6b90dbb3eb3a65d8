package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/archive-sweep/internal/model"
)

// SQLiteStore implements Journal using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	entropy *rand.Rand
	now     func() time.Time
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS actions (
		id                 TEXT PRIMARY KEY,
		unit_path          TEXT NOT NULL,
		display_name       TEXT NOT NULL,
		title              TEXT NOT NULL DEFAULT '',
		outcome            TEXT NOT NULL,
		method             TEXT,
		matched_identifier TEXT,
		size_bytes         INTEGER NOT NULL DEFAULT 0,
		files              INTEGER NOT NULL DEFAULT 0,
		created_at         TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_actions_unit ON actions(unit_path);
	CREATE INDEX IF NOT EXISTS idx_actions_outcome ON actions(outcome);
	CREATE INDEX IF NOT EXISTS idx_actions_created ON actions(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Record(ctx context.Context, p RecordParams) (*model.Action, error) {
	if !model.ValidOutcomes[p.Outcome] {
		return nil, fmt.Errorf("invalid outcome %q", p.Outcome)
	}
	if p.UnitPath == "" {
		return nil, fmt.Errorf("unit path is required")
	}

	now := s.now().UTC()
	a := &model.Action{
		ID:                s.newID(now),
		UnitPath:          p.UnitPath,
		DisplayName:       p.DisplayName,
		Title:             p.Title,
		Outcome:           p.Outcome,
		Method:            p.Method,
		MatchedIdentifier: p.MatchedIdentifier,
		SizeBytes:         p.SizeBytes,
		Files:             p.Files,
		CreatedAt:         now.Truncate(time.Second),
	}
	if err := s.insert(ctx, s.db, a, false); err != nil {
		return nil, fmt.Errorf("insert action: %w", err)
	}
	return a, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *SQLiteStore) insert(ctx context.Context, db execer, a *model.Action, ignoreDup bool) error {
	verb := "INSERT"
	if ignoreDup {
		verb = "INSERT OR IGNORE"
	}
	var method, matched *string
	if a.Method != "" {
		m := string(a.Method)
		method = &m
	}
	if a.MatchedIdentifier != "" {
		matched = &a.MatchedIdentifier
	}
	res, err := db.ExecContext(ctx,
		verb+` INTO actions (id, unit_path, display_name, title, outcome, method, matched_identifier, size_bytes, files, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UnitPath, a.DisplayName, a.Title, string(a.Outcome), method, matched,
		a.SizeBytes, a.Files, a.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}
	if ignoreDup {
		if n, _ := res.RowsAffected(); n == 0 {
			return errDuplicate
		}
	}
	return nil
}

var errDuplicate = errors.New("duplicate action")

const actionColumns = `id, unit_path, display_name, title, outcome, method, matched_identifier, size_bytes, files, created_at`

func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]model.Action, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"1 = 1"}
	args := []interface{}{}
	if p.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(p.Outcome))
	}
	if !p.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, p.Since.UTC().Format(time.RFC3339))
	}

	query := fmt.Sprintf(`SELECT %s FROM actions WHERE %s ORDER BY created_at DESC, id DESC LIMIT ?`,
		actionColumns, strings.Join(where, " AND "))
	args = append(args, limit)

	return s.query(ctx, query, args...)
}

func (s *SQLiteStore) ForUnit(ctx context.Context, unitPath string) ([]model.Action, error) {
	actions, err := s.query(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE unit_path = ? ORDER BY created_at, id`, unitPath)
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("no actions recorded for %s", unitPath)
	}
	return actions, nil
}

// Prune hard-deletes actions recorded before the cutoff and returns how
// many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM actions WHERE created_at < ?`, before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...interface{}) ([]model.Action, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []model.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAction(row scanner) (model.Action, error) {
	var a model.Action
	var outcome, createdAt string
	var method, matched sql.NullString

	err := row.Scan(
		&a.ID, &a.UnitPath, &a.DisplayName, &a.Title, &outcome,
		&method, &matched, &a.SizeBytes, &a.Files, &createdAt,
	)
	if err != nil {
		return a, err
	}

	a.Outcome = model.Outcome(outcome)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if method.Valid {
		a.Method = model.Method(method.String)
	}
	if matched.Valid {
		a.MatchedIdentifier = matched.String
	}
	return a, nil
}

var ageRegex = regexp.MustCompile(`^(\d+)([dhms])$`)

// ParseAge parses an age like "30d", "12h" or "45m" into a duration.
func ParseAge(s string) (time.Duration, error) {
	m := ageRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid format %q (use e.g. 30d, 24h, 30m, 60s)", s)
	}
	n, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "s":
		return time.Duration(n) * time.Second, nil
	}
	return 0, fmt.Errorf("unknown unit %q", m[2])
}
