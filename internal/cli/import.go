package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/archive-sweep/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import journal actions from JSON",
		Long:  "Import actions from a file or stdin. Expects the format produced by export; actions already present are skipped.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}

	historyCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	var r io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("open", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		exitErr("read", err)
	}

	var actions []model.Action
	if err := json.Unmarshal(data, &actions); err != nil {
		exitErr("parse json", err)
	}

	s, err := openJournal()
	if err != nil {
		exitErr("open journal", err)
	}
	defer s.Close()

	imported, err := s.Import(cmd.Context(), actions)
	if err != nil {
		exitErr("import", err)
	}

	fmt.Printf(`{"ok":true,"imported":%d,"skipped":%d}`+"\n", imported, len(actions)-imported)
}
