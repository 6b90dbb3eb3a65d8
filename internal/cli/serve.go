package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/archive-sweep/internal/status"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only status endpoint",
		Long:  "Serves /healthz, /state, /history, /stats and /debug/vars until interrupted.",
		Run:   runServe,
	}

	cmd.Flags().String("listen", "", "Listen address (default: $ARCHIVE_SWEEP_LISTEN or 127.0.0.1:8765)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("listen")
	if addr == "" {
		addr = cfg.ListenAddr
	}

	s, err := openJournal()
	if err != nil {
		exitErr("open journal", err)
	}
	defer s.Close()

	e := status.New(status.NewHandler(cfg.StatePath, s, cfg.JournalPath))
	if err := status.Serve(cmd.Context(), e, addr, logger); err != nil {
		exitErr("serve", err)
	}
}
