package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "unmark <path>...",
		Short: "Make units eligible again today",
		Long:  "Removes unit paths from today's processed set so the next run checks them again.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runUnmark,
	}

	stateCmd.AddCommand(cmd)
}

func runUnmark(cmd *cobra.Command, args []string) {
	st, err := openState()
	if err != nil {
		exitErr("open state", err)
	}

	removed := []string{}
	for _, a := range args {
		p, err := filepath.Abs(a)
		if err != nil {
			exitErr("unmark", err)
		}
		ok, err := st.Unmark(p)
		if err != nil {
			exitErr("unmark", err)
		}
		if ok {
			removed = append(removed, p)
		}
	}

	if len(removed) == 0 {
		exitErr("unmark", fmt.Errorf("none of the paths were processed today"))
	}
	printJSON(map[string]any{"ok": true, "unmarked": removed})
}
