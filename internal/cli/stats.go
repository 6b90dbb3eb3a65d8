package cli

import (
	"errors"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/rcliao/archive-sweep/internal/model"
	"github.com/rcliao/archive-sweep/internal/state"
	"github.com/rcliao/archive-sweep/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show journal and checkpoint statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	s, err := openJournal()
	if err != nil {
		exitErr("open journal", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context(), cfg.JournalPath)
	if err != nil {
		exitErr("stats", err)
	}

	out := struct {
		Journal *store.Stats    `json:"journal"`
		Today   *model.RunStats `json:"today,omitempty"`
		Date    string          `json:"date,omitempty"`
		Uploads int             `json:"uploads_today"`
		Cap     int             `json:"daily_upload_cap"`
	}{Journal: stats, Cap: cfg.DailyUploadCap}

	rec, err := state.ReadFile(cfg.StatePath)
	switch {
	case err == nil:
		out.Today = &rec.Stats
		out.Date = rec.Date
		out.Uploads = rec.UploadsToday
	case !errors.Is(err, fs.ErrNotExist):
		logger.Warn("Checkpoint unreadable", "path", cfg.StatePath, "error", err)
	}
	printJSON(out)
}
