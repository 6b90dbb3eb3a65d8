package upload

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "uploader.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestCommandUploader_Success(t *testing.T) {
	out := filepath.Join(t.TempDir(), "args.txt")
	script := writeScript(t, `printf '%s\n' "$@" > `+out+"\necho uploaded ok\n")

	var logs bytes.Buffer
	u := NewCommandUploader(script, []string{"--profile", "main"}, newLogger(&logs))
	if !u.Upload(context.Background(), []string{"/a/book.pdf", "/a/cover.epub"}, "Kafka - The Trial") {
		t.Fatalf("expected success, logs:\n%s", logs.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	want := "--profile\nmain\n--title\nKafka - The Trial\n--\n/a/book.pdf\n/a/cover.epub\n"
	if string(data) != want {
		t.Errorf("args = %q, want %q", data, want)
	}
	if !strings.Contains(logs.String(), "uploaded ok") {
		t.Errorf("expected streamed stdout in logs, got:\n%s", logs.String())
	}
}

func TestCommandUploader_NonZeroExit(t *testing.T) {
	script := writeScript(t, "echo 'quota exceeded' >&2\nexit 3\n")

	var logs bytes.Buffer
	u := NewCommandUploader(script, nil, newLogger(&logs))
	if u.Upload(context.Background(), []string{"/a/book.pdf"}, "x") {
		t.Fatal("expected failure")
	}
	if !strings.Contains(logs.String(), "quota exceeded") || !strings.Contains(logs.String(), "exit_code=3") {
		t.Errorf("expected stderr and exit code in logs, got:\n%s", logs.String())
	}
}

func TestCommandUploader_LaunchFailure(t *testing.T) {
	u := NewCommandUploader(filepath.Join(t.TempDir(), "missing"), nil, newLogger(&bytes.Buffer{}))
	if u.Upload(context.Background(), []string{"/a/book.pdf"}, "x") {
		t.Fatal("expected failure for missing program")
	}
}

func TestCommandUploader_NoCommandOrFiles(t *testing.T) {
	u := NewCommandUploader("", nil, nil)
	if u.Upload(context.Background(), []string{"/a.pdf"}, "x") {
		t.Error("expected failure without a command")
	}
	u = NewCommandUploader("true", nil, nil)
	if u.Upload(context.Background(), nil, "x") {
		t.Error("expected failure without files")
	}
}

func TestCommandUploader_Cancelled(t *testing.T) {
	script := writeScript(t, "sleep 5\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u := NewCommandUploader(script, nil, newLogger(&bytes.Buffer{}))
	if u.Upload(ctx, []string{"/a.pdf"}, "x") {
		t.Fatal("expected failure when context is cancelled")
	}
}

func TestDryRunUploader(t *testing.T) {
	var logs bytes.Buffer
	u := DryRunUploader{Logger: newLogger(&logs)}
	if !u.Upload(context.Background(), []string{"/a.pdf"}, "Title") {
		t.Fatal("expected dry run to succeed")
	}
	if !strings.Contains(logs.String(), "would upload") {
		t.Errorf("expected log line, got %q", logs.String())
	}
}
