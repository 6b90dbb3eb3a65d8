package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/archive-sweep/internal/model"
	"github.com/rcliao/archive-sweep/internal/title"
)

func init() {
	cmd := &cobra.Command{
		Use:   "check <title>",
		Short: "Ask the web archive whether a title exists",
		Long:  "Runs the same existence check as run, without touching local files. The argument is normalized first unless --raw is given.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runCheck,
	}

	cmd.Flags().Bool("raw", false, "Search the title as given")

	RootCmd.AddCommand(cmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	raw, _ := cmd.Flags().GetBool("raw")

	query := strings.Join(args, " ")
	if !raw {
		query = title.Normalize(query)
	}

	res := newChecker().Exists(cmd.Context(), query)
	printJSON(struct {
		Title string `json:"title"`
		model.MatchResult
	}{query, res})
}
