package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcliao/archive-sweep/internal/model"
)

// ExportAll returns every action oldest first, optionally filtered by outcome.
func (s *SQLiteStore) ExportAll(ctx context.Context, outcome model.Outcome) ([]model.Action, error) {
	if outcome != "" {
		return s.query(ctx, `SELECT `+actionColumns+` FROM actions WHERE outcome = ? ORDER BY created_at, id`, string(outcome))
	}
	return s.query(ctx, `SELECT `+actionColumns+` FROM actions ORDER BY created_at, id`)
}

// Import stores actions from an export, keeping their IDs. Actions whose
// ID already exists are skipped. Returns the number inserted.
func (s *SQLiteStore) Import(ctx context.Context, actions []model.Action) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	imported := 0
	for i := range actions {
		a := actions[i]
		if !model.ValidOutcomes[a.Outcome] {
			return 0, fmt.Errorf("action %s: invalid outcome %q", a.ID, a.Outcome)
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = s.now().UTC()
		}
		if a.ID == "" {
			a.ID = s.newID(a.CreatedAt)
		}
		err := s.insert(ctx, tx, &a, true)
		if errors.Is(err, errDuplicate) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("action %s: %w", a.ID, err)
		}
		imported++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return imported, nil
}
