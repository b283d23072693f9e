package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fluorine/viewer/internal/config"
	"fluorine/viewer/internal/logging"
)

type opened struct {
	path   string
	silent bool
}

func recorder() (OpenFunc, <-chan opened) {
	ch := make(chan opened, 16)
	return func(path string, silent bool) { ch <- opened{path: path, silent: silent} }, ch
}

func touch(t *testing.T, path string, modified time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chtimes(path, modified, modified); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func expectOpen(t *testing.T, ch <-chan opened, path string, silent bool) {
	t.Helper()
	select {
	case got := <-ch:
		if got.path != path || got.silent != silent {
			t.Fatalf("expected open of %s (silent=%v), got %+v", path, silent, got)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for open of %s", path)
	}
}

func TestLatestPicksNewestReplayAcrossDirs(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	a, b := t.TempDir(), t.TempDir()
	touch(t, filepath.Join(a, "old.hlt"), base)
	touch(t, filepath.Join(b, "new.HLT"), base.Add(time.Minute))
	touch(t, filepath.Join(b, "newer.json"), base.Add(time.Hour))
	if err := os.Mkdir(filepath.Join(a, "folder.hlt"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	path, modified, err := Latest([]string{a, b, filepath.Join(a, "missing")}, ".hlt")
	if err == nil {
		t.Fatalf("expected the missing directory to be reported")
	}
	if path != filepath.Join(b, "new.HLT") || !modified.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected latest %s at %s", path, modified)
	}

	replays, err := Replays(a, ".hlt")
	if err != nil || len(replays) != 1 {
		t.Fatalf("expected one replay in %s, got %v (%v)", a, replays, err)
	}
}

func TestRunRequiresDirectories(t *testing.T) {
	m := New(Options{}, nil, logging.NewTestLogger())
	if err := m.Run(context.Background()); !errors.Is(err, ErrNoDirs) {
		t.Fatalf("expected ErrNoDirs, got %v", err)
	}
}

func runMonitor(t *testing.T, opts Options, open OpenFunc) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(opts, open, logging.NewTestLogger()).Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Errorf("monitor did not stop")
		}
	})
	return cancel
}

func TestRunOpensLatestThenPollsForNewReplays(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	first := filepath.Join(dir, "first.hlt")
	touch(t, first, base)

	open, ch := recorder()
	runMonitor(t, Options{Dirs: []string{dir}, Extension: ".hlt", PollInterval: 5 * time.Millisecond}, open)
	expectOpen(t, ch, first, false)

	second := filepath.Join(dir, "second.hlt")
	touch(t, second, base.Add(time.Minute))
	expectOpen(t, ch, second, true)

	touch(t, filepath.Join(dir, "notes.txt"), base.Add(time.Hour))
	select {
	case got := <-ch:
		t.Fatalf("unexpected open %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunOpensWrittenReplaysSilentlyWithFsnotify(t *testing.T) {
	dir := t.TempDir()
	open, ch := recorder()
	runMonitor(t, Options{Dirs: []string{dir}, Extension: ".hlt", UseFsnotify: true, PollInterval: time.Hour}, open)

	//1.- Give the watcher a moment to register before writing.
	time.Sleep(50 * time.Millisecond)
	path := filepath.Join(dir, "live.hlt")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectOpen(t, ch, path, true)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Monitor.Dirs = []string{"/replays"}
	cfg.Monitor.PollInterval = "250ms"
	opts := OptionsFromConfig(cfg)
	if len(opts.Dirs) != 1 || opts.Extension != ".hlt" || !opts.UseFsnotify || opts.PollInterval != 250*time.Millisecond {
		t.Fatalf("unexpected options %+v", opts)
	}
}
