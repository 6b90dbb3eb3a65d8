package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// idle waits out the quiet period after a pass, so the next change is not
// mistaken for one the pass made itself.
func idle() { time.Sleep(4 * settle) }

func TestRun_PassOnChange(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "Kafka")
	os.Mkdir(existing, 0o755)

	var passes atomic.Int32
	w := &Watcher{Root: root, Debounce: 30 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(context.Context) error {
			passes.Add(1)
			return nil
		})
	}()

	waitFor(t, func() bool { return passes.Load() == 1 })
	idle()

	// a file in an existing subdirectory
	os.WriteFile(filepath.Join(existing, "Kafka - The Trial.pdf"), []byte("x"), 0o644)
	waitFor(t, func() bool { return passes.Load() == 2 })
	idle()

	// a new top-level directory gets watched too
	fresh := filepath.Join(root, "Camus")
	os.Mkdir(fresh, 0o755)
	waitFor(t, func() bool { return passes.Load() == 3 })
	idle()
	os.WriteFile(filepath.Join(fresh, "Camus - The Stranger.pdf"), []byte("x"), 0o644)
	waitFor(t, func() bool { return passes.Load() == 4 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestRun_BurstIsCoalesced(t *testing.T) {
	root := t.TempDir()
	var passes atomic.Int32
	w := &Watcher{Root: root, Debounce: 200 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func(context.Context) error {
		passes.Add(1)
		return nil
	})
	waitFor(t, func() bool { return passes.Load() == 1 })
	idle()

	for i := 0; i < 5; i++ {
		os.WriteFile(filepath.Join(root, "f"+string(rune('a'+i))+".pdf"), []byte("x"), 0o644)
	}
	waitFor(t, func() bool { return passes.Load() == 2 })
	time.Sleep(400 * time.Millisecond)
	if got := passes.Load(); got != 2 {
		t.Errorf("expected burst folded into one pass, got %d passes", got)
	}
}

func TestRun_OwnChangesDoNotRetrigger(t *testing.T) {
	root := t.TempDir()
	unit := filepath.Join(root, "Kafka")
	os.Mkdir(unit, 0o755)
	os.WriteFile(filepath.Join(unit, "Kafka - The Trial.pdf"), []byte("x"), 0o644)

	var passes atomic.Int32
	w := &Watcher{Root: root, Debounce: 30 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func(context.Context) error {
		if passes.Add(1) == 1 {
			// what a pass does to a duplicate unit
			os.RemoveAll(unit)
		}
		return nil
	})
	waitFor(t, func() bool { return passes.Load() == 1 })
	time.Sleep(300 * time.Millisecond)
	if got := passes.Load(); got != 1 {
		t.Fatalf("a pass's own deletion should not schedule another pass, got %d passes", got)
	}

	os.WriteFile(filepath.Join(root, "b.pdf"), []byte("x"), 0o644)
	waitFor(t, func() bool { return passes.Load() == 2 })
}

func TestRun_FailingPassKeepsWatching(t *testing.T) {
	root := t.TempDir()
	var passes atomic.Int32
	w := &Watcher{Root: root, Debounce: 30 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func(context.Context) error {
		passes.Add(1)
		return errors.New("boom")
	})
	waitFor(t, func() bool { return passes.Load() == 1 })
	idle()
	os.WriteFile(filepath.Join(root, "a.pdf"), []byte("x"), 0o644)
	waitFor(t, func() bool { return passes.Load() == 2 })
}

func TestRun_MissingRoot(t *testing.T) {
	w := &Watcher{Root: filepath.Join(t.TempDir(), "gone")}
	if err := w.Run(context.Background(), func(context.Context) error { return nil }); err == nil {
		t.Error("expected error for missing root")
	}
}
