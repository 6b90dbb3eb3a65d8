// Package cli implements the archive-sweep CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/archive-sweep/internal/config"
	"github.com/rcliao/archive-sweep/internal/remote"
	"github.com/rcliao/archive-sweep/internal/scan"
	"github.com/rcliao/archive-sweep/internal/state"
	"github.com/rcliao/archive-sweep/internal/store"
)

var (
	envFile     string
	rootPath    string
	stagingPath string
	statePath   string
	journalPath string
	logFormat   string
	verbose     bool

	cfg    config.Config
	logger *slog.Logger
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "archive-sweep",
	Short: "Reconcile a local e-book archive with the web archive",
	Long: "Walks a local archive tree, checks every book against the web archive, " +
		"deletes local copies that already exist remotely and hands the rest to an uploader. " +
		"Progress is checkpointed daily; every action is kept in a SQLite journal.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger(cmd)
		slog.SetDefault(logger)

		c, err := config.Load(envFile)
		if err != nil {
			exitErr("load config", err)
		}
		applyFlags(&c)
		cfg = c
	},
	SilenceUsage: true,
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", "", "Settings file (default: ./.env when present)")
	pf.StringVarP(&rootPath, "root", "r", "", "Archive root (default: $ARCHIVE_SWEEP_ROOT)")
	pf.StringVar(&stagingPath, "staging", "", "Staging directory for relocated files (default: ~/.archive-sweep/staging)")
	pf.StringVar(&statePath, "state", "", "Checkpoint file (default: ~/.archive-sweep/state.json)")
	pf.StringVarP(&journalPath, "db", "d", "", "Journal database (default: ~/.archive-sweep/journal.db)")
	pf.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

// applyFlags gives explicitly set flags precedence over the environment.
func applyFlags(c *config.Config) {
	if rootPath != "" {
		c.RootPath = rootPath
	}
	if stagingPath != "" {
		c.StagingPath = stagingPath
	}
	if statePath != "" {
		c.StatePath = statePath
	}
	if journalPath != "" {
		c.JournalPath = journalPath
	}
	// unit paths in the checkpoint are absolute
	if c.RootPath != "" {
		if abs, err := filepath.Abs(c.RootPath); err == nil {
			c.RootPath = abs
		}
	}
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	w := cmd.ErrOrStderr()
	if strings.EqualFold(logFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func openJournal() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.JournalPath)
}

func openState() (*state.Store, error) {
	return state.Open(cfg.StatePath, state.WithLogger(logger))
}

func newChecker() *remote.Client {
	return remote.NewClient(
		remote.WithEndpoints(cfg.SearchURL, cfg.DetailsURL),
		remote.WithTimeout(cfg.RequestTimeout),
		remote.WithRetry(cfg.MaxAttempts, cfg.BaseDelay),
		remote.WithSearchRows(cfg.SearchRows),
		remote.WithDuplicateSuffixes(cfg.DuplicateSuffixes...),
		remote.WithLogger(logger),
	)
}

func newScanner() *scan.Scanner {
	return scan.New(cfg.RootPath, scan.Options{
		PrimaryExt:  cfg.PrimaryExtension,
		IgnoredExts: cfg.IgnoredExtensions,
	}, logger)
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
