package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/archive-sweep/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old journal entries",
		Long:  "Permanently deletes journaled actions older than --older-than (irreversible).",
		Run:   runPrune,
	}

	cmd.Flags().String("older-than", "", "Age cutoff, e.g. 90d (required)")
	cmd.MarkFlagRequired("older-than")

	historyCmd.AddCommand(cmd)
}

func runPrune(cmd *cobra.Command, args []string) {
	olderThan, _ := cmd.Flags().GetString("older-than")
	age, err := store.ParseAge(olderThan)
	if err != nil {
		exitErr("older-than", err)
	}

	s, err := openJournal()
	if err != nil {
		exitErr("open journal", err)
	}
	defer s.Close()

	n, err := s.Prune(cmd.Context(), time.Now().Add(-age))
	if err != nil {
		exitErr("prune", err)
	}
	fmt.Printf(`{"ok":true,"pruned":%d}`+"\n", n)
}
