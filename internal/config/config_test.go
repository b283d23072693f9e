package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"FLUORINE_LOG_LEVEL", "FLUORINE_LOG_PATH", "FLUORINE_LOG_MAX_SIZE_MB", "FLUORINE_LOG_MAX_BACKUPS",
		"FLUORINE_LOG_COMPRESS", "FLUORINE_DEDUPE_WINDOW", "FLUORINE_MAX_DECOMPRESSED_MB",
		"FLUORINE_AUTOPLAY_INTERVAL", "FLUORINE_TURNS_START_AT_ONE", "FLUORINE_GRID_AESTHETIC",
		"FLUORINE_WATCH_DIRS", "FLUORINE_USE_FSNOTIFY", "FLUORINE_POLL_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadFile() returned error: %v", err)
	}
	if cfg.DedupeWindow() != DefaultDedupeWindow {
		t.Fatalf("expected default dedupe window %v, got %v", DefaultDedupeWindow, cfg.DedupeWindow())
	}
	if cfg.AutoplayInterval() != DefaultAutoplayInterval {
		t.Fatalf("expected default autoplay interval %v, got %v", DefaultAutoplayInterval, cfg.AutoplayInterval())
	}
	if cfg.Load.PlainExtension != ".json" || cfg.Load.ReplayExtension != ".hlt" {
		t.Fatalf("unexpected extensions: %+v", cfg.Load)
	}
	if cfg.Export.Indent != "\t" {
		t.Fatalf("expected tab indent, got %q", cfg.Export.Indent)
	}
	if cfg.Display.TurnsStartAtOne {
		t.Fatalf("expected turns to start at zero by default")
	}
}

func TestLoadFileReadsTOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[load]
dedupe_window = "2s"

[display]
turns_start_at_one = true
grid_aesthetic = 2

[monitor]
dirs = ["/tmp/replays"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() returned error: %v", err)
	}
	if cfg.DedupeWindow() != 2*time.Second {
		t.Fatalf("expected 2s dedupe window, got %v", cfg.DedupeWindow())
	}
	if !cfg.Display.TurnsStartAtOne || cfg.Display.GridAesthetic != 2 {
		t.Fatalf("unexpected display config: %+v", cfg.Display)
	}
	if len(cfg.Monitor.Dirs) != 1 || cfg.Monitor.Dirs[0] != "/tmp/replays" {
		t.Fatalf("unexpected monitor dirs: %#v", cfg.Monitor.Dirs)
	}
	if cfg.AutoplayInterval() != DefaultAutoplayInterval {
		t.Fatalf("unset keys should keep defaults, got %v", cfg.AutoplayInterval())
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[autoplay]\ninterval = \"1s\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FLUORINE_AUTOPLAY_INTERVAL", "100ms")
	t.Setenv("FLUORINE_TURNS_START_AT_ONE", "true")
	t.Setenv("FLUORINE_WATCH_DIRS", strings.Join([]string{"/a", "/b"}, string(os.PathListSeparator)))

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() returned error: %v", err)
	}
	if cfg.AutoplayInterval() != 100*time.Millisecond {
		t.Fatalf("expected env override 100ms, got %v", cfg.AutoplayInterval())
	}
	if !cfg.Display.TurnsStartAtOne {
		t.Fatalf("expected turns_start_at_one from env")
	}
	if len(cfg.Monitor.Dirs) != 2 {
		t.Fatalf("expected two watch dirs, got %#v", cfg.Monitor.Dirs)
	}
}

func TestLoadFileReportsAllProblems(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLUORINE_AUTOPLAY_INTERVAL", "-1s")
	t.Setenv("FLUORINE_LOG_COMPRESS", "maybe")
	t.Setenv("FLUORINE_GRID_AESTHETIC", "x")

	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil {
		t.Fatalf("expected error for invalid overrides")
	}
	for _, want := range []string{"FLUORINE_AUTOPLAY_INTERVAL", "FLUORINE_LOG_COMPRESS", "FLUORINE_GRID_AESTHETIC"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in error, got %v", want, err)
		}
	}
}

func TestValidateRejectsAestheticOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Display.GridAesthetic = 4
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "grid_aesthetic") {
		t.Fatalf("expected grid_aesthetic error, got %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := DefaultConfig()
	cfg.Display.IntegerBoxSizes = true
	cfg.Monitor.Dirs = []string{"/replays"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() returned error: %v", err)
	}
	if !loaded.Display.IntegerBoxSizes || len(loaded.Monitor.Dirs) != 1 {
		t.Fatalf("round trip lost values: %+v", loaded)
	}
	if loaded.Export.Indent != "\t" {
		t.Fatalf("expected indent to survive round trip, got %q", loaded.Export.Indent)
	}
}

func TestPathHonoursEnvironment(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/fluorine.toml")
	path, err := Path()
	if err != nil {
		t.Fatalf("Path() returned error: %v", err)
	}
	if path != "/etc/fluorine.toml" {
		t.Fatalf("expected env path, got %q", path)
	}
}
