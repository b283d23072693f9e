// Package monitor watches replay directories and hands new replays to the
// viewer's open-by-path command.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"fluorine/viewer/internal/config"
	"fluorine/viewer/internal/logging"
	"fluorine/viewer/internal/replay"
)

// ErrNoDirs is returned by Run when there is nothing to watch.
var ErrNoDirs = errors.New("monitor: no directories to watch")

// OpenFunc opens a replay; silent opens must not alert.
type OpenFunc func(path string, silent bool)

// Options configures a Monitor.
type Options struct {
	Dirs         []string
	Extension    string
	UseFsnotify  bool
	PollInterval time.Duration
}

// OptionsFromConfig maps the [monitor] and [load] sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return Options{
		Dirs:         append([]string(nil), cfg.Monitor.Dirs...),
		Extension:    cfg.Load.ReplayExtension,
		UseFsnotify:  cfg.Monitor.UseFsnotify,
		PollInterval: cfg.PollInterval(),
	}
}

// Replays lists the files directly inside dir that carry ext.
func Replays(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !replay.HasExtension(entry.Name(), ext) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

// Latest returns the most recently modified replay across dirs. Unreadable
// directories are reported together but do not hide replays found elsewhere.
func Latest(dirs []string, ext string) (string, time.Time, error) {
	var (
		best     string
		bestTime time.Time
		problems []error
	)
	for _, dir := range dirs {
		paths, err := Replays(dir, ext)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		for _, path := range paths {
			info, err := os.Stat(path)
			if err != nil {
				problems = append(problems, err)
				continue
			}
			if info.ModTime().After(bestTime) {
				best, bestTime = path, info.ModTime()
			}
		}
	}
	return best, bestTime, errors.Join(problems...)
}

// Monitor opens the newest replay on start and then every replay written
// into the watched directories.
type Monitor struct {
	opts   Options
	open   OpenFunc
	logger *logging.Logger

	lastSeen time.Time
}

// New builds a monitor. A nil logger uses the process-wide logger.
func New(opts Options, open OpenFunc, logger *logging.Logger) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = config.DefaultPollInterval
	}
	if opts.Extension == "" {
		opts.Extension = config.DefaultReplayExtension
	}
	if logger == nil {
		logger = logging.L()
	}
	if open == nil {
		open = func(string, bool) {}
	}
	return &Monitor{opts: opts, open: open, logger: logger.With(logging.String("component", "monitor"))}
}

// Run blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	if len(m.opts.Dirs) == 0 {
		return ErrNoDirs
	}

	//1.- Open the newest existing replay loudly, as if the user had picked it.
	latest, modified, err := Latest(m.opts.Dirs, m.opts.Extension)
	if err != nil {
		m.logger.Warn("scanning replay directories", logging.Error(err))
	}
	m.lastSeen = modified
	if latest != "" {
		m.logger.Info("opening most recent replay", logging.String("path", latest))
		m.open(latest, false)
	}

	//2.- Prefer file system events; polling stays on as a backup.
	var events <-chan fsnotify.Event
	var watchErrors <-chan error
	if m.opts.UseFsnotify {
		watcher, err := m.watch()
		if err != nil {
			m.logger.Warn("file watcher unavailable, polling only", logging.Error(err))
		} else {
			defer watcher.Close()
			events, watchErrors = watcher.Events, watcher.Errors
		}
	}
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.handle(event)
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			m.logger.Warn("file watcher error", logging.Error(err))
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *Monitor) watch() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	added := 0
	for _, dir := range m.opts.Dirs {
		if err := watcher.Add(dir); err != nil {
			m.logger.Warn("cannot watch directory", logging.String("dir", dir), logging.Error(err))
			continue
		}
		added++
	}
	if added == 0 {
		watcher.Close()
		return nil, errors.New("no directory could be watched")
	}
	return watcher, nil
}

// handle opens a replay that was just created or written.
func (m *Monitor) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !replay.HasExtension(event.Name, m.opts.Extension) {
		return
	}
	if info, err := os.Stat(event.Name); err == nil && info.ModTime().After(m.lastSeen) {
		m.lastSeen = info.ModTime()
	}
	m.logger.Debug("replay changed", logging.String("path", event.Name), logging.String("op", event.Op.String()))
	m.open(event.Name, true)
}

// poll opens the newest replay when it is newer than anything seen so far.
func (m *Monitor) poll() {
	latest, modified, err := Latest(m.opts.Dirs, m.opts.Extension)
	if err != nil {
		m.logger.Debug("polling replay directories", logging.Error(err))
	}
	if latest == "" || !modified.After(m.lastSeen) {
		return
	}
	m.lastSeen = modified
	m.logger.Debug("replay changed", logging.String("path", latest), logging.String("op", "poll"))
	m.open(latest, true)
}
