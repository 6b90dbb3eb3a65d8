package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "unit <path>",
		Short: "Show every action recorded for one unit",
		Args:  cobra.ExactArgs(1),
		Run:   runUnit,
	}

	historyCmd.AddCommand(cmd)
}

func runUnit(cmd *cobra.Command, args []string) {
	path, err := filepath.Abs(args[0])
	if err != nil {
		exitErr("unit", err)
	}

	s, err := openJournal()
	if err != nil {
		exitErr("open journal", err)
	}
	defer s.Close()

	actions, err := s.ForUnit(cmd.Context(), path)
	if err != nil {
		exitErr("unit", err)
	}
	printJSON(actions)
}
