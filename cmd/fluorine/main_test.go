package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fluorine/viewer/internal/codec"
	"fluorine/viewer/internal/config"
	"fluorine/viewer/internal/logging"
	"fluorine/viewer/internal/replaytest"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("FLUORINE_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("FLUORINE_LOG_LEVEL", "error")
}

func writeReplay(t *testing.T, dir string) string {
	t.Helper()
	b := replaytest.New(5, 5, 2, 6, 10)
	b.Players[0].Name = "alpha"
	b.Players[1].Name = "beta"
	b.Turn(0).Spawn(0, 1, 0, 0).Spawn(1, 2, 1, 1)
	b.Turn(1).
		Ship(0, 1, 0, 0, 0, false).Ship(1, 2, 1, 1, 0, false).
		Spawn(0, 3, 0, 0)
	b.Turn(2).
		Ship(0, 1, 1, 1, 10, false).Ship(1, 2, 1, 1, 20, false).Ship(0, 3, 0, 0, 0, false).
		Move(0, 3, "e").
		Shipwreck(1, 1, 1, 2)
	return b.WriteFile(t, dir, "game.hlt", codec.NewZstd())
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUsage(t *testing.T) {
	isolate(t)
	if code, _, stderr := runCLI(); code != 1 || !strings.Contains(stderr, "Commands:") {
		t.Fatalf("expected usage on stderr, got %d %q", code, stderr)
	}
	if code, stdout, _ := runCLI("help"); code != 0 || !strings.Contains(stdout, "fluorine info") {
		t.Fatalf("expected usage on stdout, got %d %q", code, stdout)
	}
	if code, _, stderr := runCLI("bogus"); code != 1 || !strings.Contains(stderr, `unknown command "bogus"`) {
		t.Fatalf("expected unknown command, got %d %q", code, stderr)
	}
}

func TestInfoPrintsPanelForSelection(t *testing.T) {
	isolate(t)
	path := writeReplay(t, t.TempDir())

	code, stdout, stderr := runCLI("info", "-turn", "2", "-at", "0,0", path)
	if code != 0 {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	for _, want := range []string{"5 x 5 : game.hlt", "Turn: 2 / 5", "0, 0 - 10 - [Ship 3] - 0 - next is right", "alpha - 1st", "beta - 2nd", "Ships: 2 / 2", "Ships: 1 / 1"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in panel:\n%s", want, stdout)
		}
	}
}

func TestInfoFollowsShipToItsCollision(t *testing.T) {
	isolate(t)
	path := writeReplay(t, t.TempDir())

	code, stdout, stderr := runCLI("info", "-ship", "2", path)
	if code != 0 {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Turn: 3 / 5") || !strings.Contains(stdout, "1, 1 - 10 - Collision: 1, 2") {
		t.Fatalf("expected collision panel, got:\n%s", stdout)
	}
}

func TestInfoWithOverlayAndExtraStats(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := writeReplay(t, dir)
	overlay := filepath.Join(dir, "flog.json")
	if err := os.WriteFile(overlay, []byte(`[{"t":5,"x":4,"y":4,"msg":"late"},`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	code, stdout, stderr := runCLI("info", "-at", "4,4", "-flog", overlay, "-extra", path)
	if code != 0 {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	for _, want := range []string{"[4, 4] - 10", "late", "Engine: 1.1.6, seed: 1234, map: 5 x 5"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in output:\n%s", want, stdout)
		}
	}
}

func TestInfoReportsUnreadableReplay(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "broken.hlt")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	code, _, stderr := runCLI("info", path)
	if code != 2 || !strings.Contains(stderr, "Couldn't open this file.") {
		t.Fatalf("expected open failure, got %d %q", code, stderr)
	}
	if code, _, _ := runCLI("info"); code != 1 {
		t.Fatalf("expected missing path to fail, got %d", code)
	}
}

func TestExportWritesRequestedKind(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := writeReplay(t, dir)
	out := filepath.Join(dir, "moves.json")

	code, stdout, stderr := runCLI("export", "-kind", "moves", "-turn", "2", "-out", out, path)
	if code != 0 {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "moves, turn 2") {
		t.Fatalf("unexpected stdout %q", stdout)
	}
	data, err := os.ReadFile(out)
	if err != nil || !strings.Contains(string(data), `"direction"`) {
		t.Fatalf("expected moves export, got %s (%v)", data, err)
	}

	if code, _, _ := runCLI("export", "-kind", "pixels", "-out", out, path); code != 1 {
		t.Fatalf("expected unknown kind to fail, got %d", code)
	}
	if code, _, _ := runCLI("export", path); code != 1 {
		t.Fatalf("expected missing -out to fail, got %d", code)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	isolate(t)
	target := filepath.Join(t.TempDir(), "fluorine", "config.toml")

	if code, _, stderr := runCLI("config", "init", "-path", target); code != 0 {
		t.Fatalf("expected init to succeed, got %d: %s", code, stderr)
	}
	if code, _, stderr := runCLI("config", "init", "-path", target); code != 1 || !strings.Contains(stderr, "already exists") {
		t.Fatalf("expected refusal to overwrite, got %d %q", code, stderr)
	}
	if code, _, _ := runCLI("config", "init", "-path", target, "-force"); code != 0 {
		t.Fatalf("expected forced init to succeed")
	}

	t.Setenv("FLUORINE_CONFIG", target)
	code, stdout, _ := runCLI("config", "show")
	if code != 0 || !strings.Contains(stdout, "[load]") || !strings.Contains(stdout, "dedupe_window") || !strings.Contains(stdout, "5s") {
		t.Fatalf("unexpected config output %d:\n%s", code, stdout)
	}
}

// exclusiveWriter fails the test when two writes overlap.
type exclusiveWriter struct {
	t      *testing.T
	active atomic.Int32
	buf    bytes.Buffer
}

func (w *exclusiveWriter) Write(p []byte) (int, error) {
	if w.active.Add(1) != 1 {
		w.t.Errorf("overlapping writes to stdout")
	}
	defer w.active.Add(-1)
	time.Sleep(time.Millisecond)
	return w.buf.Write(p)
}

func TestLoadReporterSerialisesAndWaits(t *testing.T) {
	isolate(t)
	out := &exclusiveWriter{t: t}
	reporter := &loadReporter{out: out}

	const loads = 4
	for i := 0; i < loads; i++ {
		dir := t.TempDir()
		path := writeReplay(t, dir)
		v := newViewer(config.DefaultConfig(), logging.NewTestLogger(), &bytes.Buffer{})
		t.Cleanup(v.Close)
		reporter.Track(v.Open(path, true))
	}
	reporter.Wait()

	if got := strings.Count(out.buf.String(), "loaded 5 x 5 : game.hlt"); got != loads {
		t.Fatalf("expected %d reports after Wait, got %d:\n%s", loads, got, out.buf.String())
	}
}
