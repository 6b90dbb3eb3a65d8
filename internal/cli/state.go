package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rcliao/archive-sweep/internal/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset today's checkpoint",
}

func init() {
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the checkpoint file as stored",
		Run:   runStateShow,
	}
	show.Flags().Bool("summary", false, "One-line human summary instead of JSON")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Forget today's progress",
		Long:  "Empties today's processed set and upload count so the next run starts over. The journal is kept.",
		Run:   runStateReset,
	}
	reset.Flags().Bool("yes", false, "Confirm the reset")

	stateCmd.AddCommand(show, reset)
	RootCmd.AddCommand(stateCmd)
}

func runStateShow(cmd *cobra.Command, args []string) {
	summary, _ := cmd.Flags().GetBool("summary")

	rec, err := state.ReadFile(cfg.StatePath)
	if errors.Is(err, fs.ErrNotExist) {
		exitErr("state", fmt.Errorf("no checkpoint at %s", cfg.StatePath))
	}
	if err != nil {
		exitErr("state", err)
	}

	if summary {
		fmt.Printf("%s: %d processed, %d files uploaded (cap %d), %d deleted (%s freed), %d moved\n",
			rec.Date, len(rec.ProcessedUnits), rec.UploadsToday, cfg.DailyUploadCap,
			len(rec.DeletedUnits), humanize.Bytes(uint64(rec.Stats.BytesFreed)), len(rec.MovedUnits))
		return
	}
	printJSON(rec)
}

func runStateReset(cmd *cobra.Command, args []string) {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		exitErr("reset", fmt.Errorf("refusing to reset without --yes"))
	}

	st, err := openState()
	if err != nil {
		exitErr("open state", err)
	}
	if err := st.Reset(); err != nil {
		exitErr("reset", err)
	}
	fmt.Printf(`{"ok":true,"date":%q}`+"\n", st.Record().Date)
}
