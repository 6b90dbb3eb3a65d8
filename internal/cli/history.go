package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/archive-sweep/internal/model"
	"github.com/rcliao/archive-sweep/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse the action journal",
	Long:  "Lists journaled actions, newest first. Unlike the daily checkpoint the journal is never reset.",
	Run:   runHistory,
}

func init() {
	historyCmd.Flags().StringP("outcome", "o", "", "Filter by outcome: deleted, uploaded, relocated, skipped-empty")
	historyCmd.Flags().String("since", "", "Only actions newer than this age (e.g. 7d, 12h)")
	historyCmd.Flags().IntP("limit", "l", 20, "Max results")
	historyCmd.Flags().Bool("paths-only", false, "Only output unit paths")

	RootCmd.AddCommand(historyCmd)
}

func outcomeFlag(cmd *cobra.Command) model.Outcome {
	o, _ := cmd.Flags().GetString("outcome")
	outcome := model.Outcome(o)
	if outcome != "" && !model.ValidOutcomes[outcome] {
		exitErr("outcome", fmt.Errorf("unknown outcome %q", o))
	}
	return outcome
}

func runHistory(cmd *cobra.Command, args []string) {
	since, _ := cmd.Flags().GetString("since")
	limit, _ := cmd.Flags().GetInt("limit")
	pathsOnly, _ := cmd.Flags().GetBool("paths-only")
	outcome := outcomeFlag(cmd)

	var after time.Time
	if since != "" {
		age, err := store.ParseAge(since)
		if err != nil {
			exitErr("since", err)
		}
		after = time.Now().Add(-age)
	}

	s, err := openJournal()
	if err != nil {
		exitErr("open journal", err)
	}
	defer s.Close()

	actions, err := s.List(cmd.Context(), store.ListParams{
		Outcome: outcome,
		Since:   after,
		Limit:   limit,
	})
	if err != nil {
		exitErr("history", err)
	}

	if pathsOnly {
		for _, a := range actions {
			fmt.Printf("%s\t%s\n", a.Outcome, a.UnitPath)
		}
		return
	}
	if actions == nil {
		actions = []model.Action{}
	}
	printJSON(actions)
}
