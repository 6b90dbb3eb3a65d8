package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/archive-sweep/internal/model"
	"github.com/rcliao/archive-sweep/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search journaled actions",
		Long:  "Substring match over title, unit name, path and matched archive identifier.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().StringP("outcome", "o", "", "Filter by outcome")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	historyCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	outcome := outcomeFlag(cmd)

	s, err := openJournal()
	if err != nil {
		exitErr("open journal", err)
	}
	defer s.Close()

	actions, err := s.Search(cmd.Context(), store.SearchParams{
		Query:   strings.Join(args, " "),
		Outcome: outcome,
		Limit:   limit,
	})
	if err != nil {
		exitErr("search", err)
	}
	if actions == nil {
		actions = []model.Action{}
	}
	printJSON(actions)
}
