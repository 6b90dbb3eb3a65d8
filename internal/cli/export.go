package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/archive-sweep/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the journal as JSON",
		Long:  "Export every journaled action, oldest first. Filter by outcome with -o.",
		Run:   runExport,
	}

	cmd.Flags().StringP("outcome", "o", "", "Filter by outcome")

	historyCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	outcome := outcomeFlag(cmd)

	s, err := openJournal()
	if err != nil {
		exitErr("open journal", err)
	}
	defer s.Close()

	actions, err := s.ExportAll(cmd.Context(), outcome)
	if err != nil {
		exitErr("export", err)
	}
	if actions == nil {
		actions = []model.Action{}
	}
	printJSON(actions)
}
