package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/archive-sweep/internal/triage"
)

func init() {
	cmd := &cobra.Command{
		Use:   "triage <failures.json>",
		Short: "Quarantine the sources of failed uploads",
		Long: "Reads the failure report written by the uploader, finds the local file behind each failure " +
			"by fuzzy name match and copies it, with an info file, into the quarantine directory.",
		Args: cobra.ExactArgs(1),
		Run:  runTriage,
	}

	cmd.Flags().String("quarantine", "", "Quarantine directory (default: ~/.archive-sweep/quarantine)")
	cmd.Flags().StringSlice("search-root", nil, "Directories to search (default: root and staging)")
	cmd.Flags().Float64("min-ratio", triage.DefaultMinRatio, "Similarity a file name must exceed")

	RootCmd.AddCommand(cmd)
}

func runTriage(cmd *cobra.Command, args []string) {
	dir, _ := cmd.Flags().GetString("quarantine")
	roots, _ := cmd.Flags().GetStringSlice("search-root")
	minRatio, _ := cmd.Flags().GetFloat64("min-ratio")

	if dir == "" {
		dir = cfg.QuarantinePath
	}
	if len(roots) == 0 {
		if cfg.RootPath != "" {
			roots = append(roots, cfg.RootPath)
		}
		roots = append(roots, cfg.StagingPath)
	}

	failures, err := triage.LoadFailures(args[0])
	if err != nil {
		exitErr("load failures", err)
	}

	q := &triage.Quarantine{
		Dir:         dir,
		SearchRoots: roots,
		MinRatio:    minRatio,
		Logger:      logger,
	}
	rep, err := q.Process(cmd.Context(), failures)
	if err != nil {
		exitErr("triage", err)
	}
	printJSON(rep)
}
