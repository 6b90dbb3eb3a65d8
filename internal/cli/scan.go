package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/archive-sweep/internal/scan"
	"github.com/rcliao/archive-sweep/internal/title"
)

type scannedUnit struct {
	Path               string `json:"path"`
	DisplayName        string `json:"display_name"`
	Title              string `json:"title"`
	Files              int    `json:"files"`
	HasPrimaryDocument bool   `json:"has_primary_document"`
	SizeBytes          int64  `json:"size_bytes"`
	Processed          bool   `json:"processed"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List units in processing order",
		Long:  "Lists every unit under the root in the order run would handle them, with the title each is searched under.",
		Run:   runScan,
	}

	cmd.Flags().Bool("pending", false, "Only units not yet processed today")
	cmd.Flags().Bool("names-only", false, "Only output display names")

	RootCmd.AddCommand(cmd)
}

func runScan(cmd *cobra.Command, args []string) {
	pending, _ := cmd.Flags().GetBool("pending")
	namesOnly, _ := cmd.Flags().GetBool("names-only")

	if cfg.RootPath == "" {
		exitErr("scan", fmt.Errorf("root path is required"))
	}
	res, err := newScanner().Scan(cmd.Context())
	if err != nil {
		exitErr("scan", err)
	}
	scan.SortUnits(res.Units)

	st, err := openState()
	if err != nil {
		exitErr("open state", err)
	}

	out := []scannedUnit{}
	for _, u := range res.Units {
		processed := st.IsProcessed(u.Path)
		if pending && processed {
			continue
		}
		out = append(out, scannedUnit{
			Path:               u.Path,
			DisplayName:        u.DisplayName,
			Title:              title.Normalize(scan.RepresentativeName(u, cfg.PriorityExtensions)),
			Files:              len(u.Files),
			HasPrimaryDocument: u.HasPrimaryDocument,
			SizeBytes:          u.SizeBytes,
			Processed:          processed,
		})
	}

	if namesOnly {
		for _, u := range out {
			fmt.Println(u.DisplayName)
		}
		return
	}
	printJSON(out)
}
