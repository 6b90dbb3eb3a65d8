package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/archive-sweep/internal/title"
)

func init() {
	cmd := &cobra.Command{
		Use:   "normalize <filename>...",
		Short: "Show the search title derived from filenames",
		Args:  cobra.MinimumNArgs(1),
		Run:   runNormalize,
	}

	RootCmd.AddCommand(cmd)
}

func runNormalize(cmd *cobra.Command, args []string) {
	type result struct {
		Input       string   `json:"input"`
		Title       string   `json:"title"`
		Identifiers []string `json:"identifiers"`
		SortKey     string   `json:"sort_key"`
	}

	out := make([]result, 0, len(args))
	for _, a := range args {
		t := title.Normalize(a)
		out = append(out, result{
			Input:       a,
			Title:       t,
			Identifiers: title.IdentifierVariants(t),
			SortKey:     title.SortKey(a),
		})
	}
	printJSON(out)
}
