package store

import (
	"context"
	"os"
)

// Stats holds journal statistics.
type Stats struct {
	DBPath       string         `json:"db_path"`
	DBSizeBytes  int64          `json:"db_size_bytes"`
	TotalActions int            `json:"total_actions"`
	Units        int            `json:"units"`
	BytesFreed   int64          `json:"bytes_freed"`
	Outcomes     []OutcomeStats `json:"outcomes"`
}

// OutcomeStats holds per-outcome counts.
type OutcomeStats struct {
	Outcome string `json:"outcome"`
	Count   int    `json:"count"`
	Bytes   int64  `json:"bytes"`
	Files   int    `json:"files"`
}

// Stats returns journal statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT unit_path) FROM actions`).Scan(&st.TotalActions, &st.Units)
	s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM actions WHERE outcome = 'deleted'`).Scan(&st.BytesFreed)

	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*) AS cnt, COALESCE(SUM(size_bytes), 0), COALESCE(SUM(files), 0)
		FROM actions
		GROUP BY outcome ORDER BY cnt DESC, outcome`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var o OutcomeStats
		rows.Scan(&o.Outcome, &o.Count, &o.Bytes, &o.Files)
		st.Outcomes = append(st.Outcomes, o)
	}

	return st, rows.Err()
}
