// Package upload hands units to the external submission program.
package upload

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"
)

// Uploader submits a batch of files under one title. It reports failure
// as false; ordinary remote-side failures are never errors.
type Uploader interface {
	Upload(ctx context.Context, files []string, title string) bool
}

// CommandUploader runs an external program once per unit as
//
//	<command> [args...] --title <title> -- <file>...
//
// Exit status 0 means success. No timeout is applied; large uploads can
// legitimately take a long time.
type CommandUploader struct {
	Command string
	Args    []string
	Logger  *slog.Logger
}

// NewCommandUploader returns an uploader for command.
func NewCommandUploader(command string, args []string, logger *slog.Logger) *CommandUploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandUploader{Command: command, Args: args, Logger: logger}
}

func (u *CommandUploader) Upload(ctx context.Context, files []string, title string) bool {
	logger := u.Logger.With("title", title, "files", len(files))
	if u.Command == "" {
		logger.Error("No upload command configured")
		return false
	}
	if len(files) == 0 {
		logger.Warn("Nothing to upload")
		return false
	}

	args := append([]string{}, u.Args...)
	args = append(args, "--title", title, "--")
	args = append(args, files...)

	cmd := exec.CommandContext(ctx, u.Command, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		logger.Error("Upload command pipe failed", "error", err)
		return false
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		logger.Error("Upload command pipe failed", "error", err)
		return false
	}

	logger.Info("Starting upload", "command", u.Command)
	if err := cmd.Start(); err != nil {
		logger.Error("Upload command failed to start", "command", u.Command, "error", err)
		return false
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(&wg, stdout, logger, slog.LevelInfo)
	go streamLines(&wg, stderr, logger, slog.LevelWarn)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Warn("Upload reported failure", "exit_code", exitErr.ExitCode())
		} else {
			logger.Error("Upload command failed", "error", err)
		}
		return false
	}
	logger.Info("Upload finished")
	return true
}

func streamLines(wg *sync.WaitGroup, r io.Reader, logger *slog.Logger, level slog.Level) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		logger.Log(context.Background(), level, sc.Text(), "source", "uploader")
	}
}

// DryRunUploader accepts every batch without doing anything.
type DryRunUploader struct {
	Logger *slog.Logger
}

func (u DryRunUploader) Upload(_ context.Context, files []string, title string) bool {
	if u.Logger != nil {
		u.Logger.Info("Dry run: would upload", "title", title, "files", len(files))
	}
	return true
}
