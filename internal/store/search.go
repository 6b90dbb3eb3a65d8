package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/archive-sweep/internal/model"
)

// Search finds actions whose title, display name, path or matched
// identifier contains the query substring. Newest first.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]model.Action, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	q := strings.TrimSpace(p.Query)
	if q == "" {
		return nil, fmt.Errorf("query is required")
	}
	like := "%" + escapeLike(q) + "%"

	where := []string{`(title LIKE ? ESCAPE '\' OR display_name LIKE ? ESCAPE '\' OR unit_path LIKE ? ESCAPE '\' OR matched_identifier LIKE ? ESCAPE '\')`}
	args := []interface{}{like, like, like, like}
	if p.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(p.Outcome))
	}
	args = append(args, limit)

	return s.query(ctx, fmt.Sprintf(`SELECT %s FROM actions WHERE %s ORDER BY created_at DESC, id DESC LIMIT ?`,
		actionColumns, strings.Join(where, " AND ")), args...)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
