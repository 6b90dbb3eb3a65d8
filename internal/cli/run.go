package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/archive-sweep/internal/reconcile"
	"github.com/rcliao/archive-sweep/internal/scan"
	"github.com/rcliao/archive-sweep/internal/status"
	"github.com/rcliao/archive-sweep/internal/upload"
	"github.com/rcliao/archive-sweep/internal/watch"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile the archive root",
		Long: "Checks every unprocessed unit against the web archive. Units that already exist remotely " +
			"are deleted, units with a primary document are uploaded until the daily cap, and the rest " +
			"have their best secondary file copied to staging.",
		Run: runRun,
	}

	cmd.Flags().Bool("dry-run", false, "Check and log decisions without changing anything")
	cmd.Flags().Bool("watch", false, "Keep running and reconcile again when the tree changes")
	cmd.Flags().Int("cap", -1, "Daily upload cap in files (default: $ARCHIVE_SWEEP_DAILY_CAP or 9999)")
	cmd.Flags().Duration("delay", -1, "Pause between remote checks (default: $ARCHIVE_SWEEP_CHECK_DELAY or 1s)")
	cmd.Flags().Bool("validate-pdf", false, "Validate primary documents before uploading")
	cmd.Flags().String("upload-cmd", "", "Upload program (default: $ARCHIVE_SWEEP_UPLOAD_COMMAND)")
	cmd.Flags().Bool("keep-parents", false, "Do not remove parent directories left empty by a deletion")
	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before a watch pass")
	cmd.Flags().String("status-addr", "", "Also serve the status endpoint on this address while running")

	RootCmd.AddCommand(cmd)
}

func runRun(cmd *cobra.Command, args []string) {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	watchMode, _ := cmd.Flags().GetBool("watch")
	capFlag, _ := cmd.Flags().GetInt("cap")
	delay, _ := cmd.Flags().GetDuration("delay")
	validate, _ := cmd.Flags().GetBool("validate-pdf")
	uploadCmd, _ := cmd.Flags().GetString("upload-cmd")
	keepParents, _ := cmd.Flags().GetBool("keep-parents")
	debounce, _ := cmd.Flags().GetDuration("debounce")
	statusAddr, _ := cmd.Flags().GetString("status-addr")

	if capFlag >= 0 {
		cfg.DailyUploadCap = capFlag
	}
	if delay >= 0 {
		cfg.CheckDelay = delay
	}
	if validate {
		cfg.ValidatePDF = true
	}
	if uploadCmd != "" {
		cfg.UploadCommand = uploadCmd
	}
	if keepParents {
		cfg.CleanupEmptyParents = false
	}
	if err := cfg.Validate(); err != nil {
		exitErr("config", err)
	}

	st, err := openState()
	if err != nil {
		exitErr("open state", err)
	}
	journal, err := openJournal()
	if err != nil {
		exitErr("open journal", err)
	}
	defer journal.Close()

	var uploader upload.Uploader = upload.NewCommandUploader(cfg.UploadCommand, cfg.UploadArgs, logger)
	if dryRun {
		uploader = upload.DryRunUploader{Logger: logger}
	} else if cfg.UploadCommand == "" {
		logger.Warn("No upload command configured; uploads will fail and be retried next run")
	}

	engine := &reconcile.Engine{
		Scanner:  newScanner(),
		Checker:  newChecker(),
		Uploader: uploader,
		State:    st,
		Journal:  journal,
		Logger:   logger,
		Config: reconcile.Config{
			Root:                cfg.RootPath,
			StagingPath:         cfg.StagingPath,
			DailyCap:            cfg.DailyUploadCap,
			PriorityExts:        cfg.PriorityExtensions,
			IgnoredExts:         cfg.IgnoredExtensions,
			DryRun:              dryRun,
			Delay:               cfg.CheckDelay,
			CleanupEmptyParents: cfg.CleanupEmptyParents,
		},
	}
	if cfg.ValidatePDF {
		engine.Validator = scan.NewPDFValidator()
	}

	ctx := cmd.Context()
	if statusAddr != "" {
		e := status.New(status.NewHandler(cfg.StatePath, journal, cfg.JournalPath))
		go func() {
			if err := status.Serve(ctx, e, statusAddr, logger); err != nil {
				logger.Error("Status server failed", "error", err)
			}
		}()
	}

	if !watchMode {
		sum, err := engine.Run(ctx)
		printJSON(sum)
		if err != nil && !errors.Is(err, context.Canceled) {
			exitErr("run", err)
		}
		return
	}

	w := &watch.Watcher{Root: cfg.RootPath, Debounce: debounce, Logger: logger}
	err = w.Run(ctx, func(ctx context.Context) error {
		start := time.Now()
		sum, err := engine.Run(ctx)
		printJSON(sum)
		logger.Debug("Pass finished", "took", time.Since(start).Round(time.Millisecond))
		return err
	})
	if err != nil {
		exitErr("watch", err)
	}
}
