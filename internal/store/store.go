// Package store provides the reconciliation audit journal and its SQLite
// implementation. Unlike the daily state checkpoint, the journal is never
// reset.
package store

import (
	"context"
	"time"

	"github.com/rcliao/archive-sweep/internal/model"
)

// RecordParams holds parameters for journaling an action.
type RecordParams struct {
	UnitPath          string
	DisplayName       string
	Title             string
	Outcome           model.Outcome
	Method            model.Method
	MatchedIdentifier string
	SizeBytes         int64
	Files             int
}

// ListParams holds parameters for listing actions.
type ListParams struct {
	Outcome model.Outcome
	Since   time.Time
	Limit   int
}

// SearchParams holds parameters for searching actions.
type SearchParams struct {
	Query   string
	Outcome model.Outcome
	Limit   int
}

// Journal defines the audit journal interface.
type Journal interface {
	// Record appends an action. Returns the stored action.
	Record(ctx context.Context, p RecordParams) (*model.Action, error)

	// List lists actions newest first.
	List(ctx context.Context, p ListParams) ([]model.Action, error)

	// ForUnit returns every action recorded for a unit path, oldest first.
	ForUnit(ctx context.Context, unitPath string) ([]model.Action, error)

	// Close closes the journal.
	Close() error
}
