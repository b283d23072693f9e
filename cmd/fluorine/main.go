package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/pelletier/go-toml/v2"

	"fluorine/viewer/internal/config"
	"fluorine/viewer/internal/logging"
	"fluorine/viewer/internal/monitor"
	"fluorine/viewer/internal/replay"
	"fluorine/viewer/internal/viewer"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 1
	}
	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(stdout)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "config error:", err)
		return 1
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(stderr, "logging error:", err)
		return 1
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	switch args[0] {
	case "info":
		return runInfo(cfg, logger, args[1:], stdout, stderr)
	case "export":
		return runExport(cfg, logger, args[1:], stdout, stderr)
	case "watch":
		return runWatch(cfg, logger, args[1:], stdout, stderr)
	case "config":
		return runConfig(cfg, args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Fluorine - Halite 3 replay viewer")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: fluorine <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  info     - Print the info panel for a replay at a turn")
	fmt.Fprintln(w, "  export   - Save a replay, or one turn of it, as JSON")
	fmt.Fprintln(w, "  watch    - Open new replays as they appear in directories")
	fmt.Fprintln(w, "  config   - Show the effective configuration or write a default file")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  fluorine info -turn 120 -ship 7 replay-20181020.hlt")
	fmt.Fprintln(w, "  fluorine export -kind moves -turn 50 -out moves.json replay.hlt")
	fmt.Fprintln(w, "  fluorine watch ~/halite/replays")
	fmt.Fprintln(w, "  fluorine config init")
}

// cliAlerter prints user-facing messages to stderr.
type cliAlerter struct{ w io.Writer }

func (a cliAlerter) Alert(message string) { fmt.Fprintln(a.w, message) }

func newViewer(cfg *config.Config, logger *logging.Logger, stderr io.Writer) *viewer.Viewer {
	return viewer.New(cfg, viewer.WithLogger(logger), viewer.WithAlerter(cliAlerter{w: stderr}))
}

// openReplay loads path and waits for the background decode when there is one.
func openReplay(v *viewer.Viewer, path string) error {
	_, err := v.Open(path, false).Wait()
	return err
}

func runInfo(cfg *config.Config, logger *logging.Logger, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.SetOutput(stderr)
	turn := fs.Int("turn", -1, "Turn to show, in display numbering (default: last turn)")
	at := fs.String("at", "", "Select the cell x,y")
	ship := fs.Int("ship", -1, "Select an entity by id")
	fate := fs.Bool("fate", false, "Jump to the fate of the selected entity")
	collision := fs.Int("collision", 0, "Step through N collisions (negative steps backwards)")
	flogPath := fs.String("flog", "", "Attach an f-log overlay")
	extra := fs.Bool("extra", false, "Also print engine metadata and deliveries")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "info requires exactly one replay path")
		return 1
	}

	v := newViewer(cfg, logger, stderr)
	defer v.Close()
	if err := openReplay(v, fs.Arg(0)); err != nil {
		return 2
	}

	//1.- Apply the navigation flags in the order a user would click through them.
	if *turn >= 0 {
		v.GoToTurn(*turn, true)
	} else {
		v.Last()
	}
	if *at != "" {
		x, y, err := parseCell(*at)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		v.SelectAt(x, y)
	}
	if *ship >= 0 {
		v.SelectByID(*ship)
	}
	for i := 0; i < *collision; i++ {
		v.NextCollision()
	}
	for i := 0; i > *collision; i-- {
		v.PreviousCollision()
	}
	if *fate {
		v.Fate()
	}
	if *flogPath != "" {
		if err := v.OpenOverlay(*flogPath); err != nil {
			return 2
		}
	}

	writePanel(stdout, v, cfg.Display.TurnsStartAtOne)
	if *extra {
		writeExtraStats(stdout, v.Current())
	}
	return 0
}

func runExport(cfg *config.Config, logger *logging.Logger, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	kindName := fs.String("kind", "full", "What to export: full, frame, entities, moves or events")
	turn := fs.Int("turn", 0, "Turn for frame exports, in display numbering")
	out := fs.String("out", "", "Destination path; a replay extension writes a compressed file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 || strings.TrimSpace(*out) == "" {
		fmt.Fprintln(stderr, "export requires -out and exactly one replay path")
		return 1
	}
	kind, err := replay.ParseExportKind(*kindName)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	v := newViewer(cfg, logger, stderr)
	defer v.Close()
	if err := openReplay(v, fs.Arg(0)); err != nil {
		return 2
	}
	v.GoToTurn(*turn, true)
	if err := v.Save(kind, *out); err != nil {
		fmt.Fprintln(stderr, "export error:", err)
		return 3
	}
	fmt.Fprintf(stdout, "wrote %s (%s, turn %d)\n", *out, kind, v.DisplayTurn())
	return 0
}

func runWatch(cfg *config.Config, logger *logging.Logger, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	poll := fs.Bool("poll", false, "Poll instead of using file system events")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	opts := monitor.OptionsFromConfig(cfg)
	if fs.NArg() > 0 {
		opts.Dirs = fs.Args()
	}
	if *poll {
		opts.UseFsnotify = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v := newViewer(cfg, logger, stderr)
	reporter := &loadReporter{out: stdout}
	open := func(path string, silent bool) {
		reporter.Track(v.Open(path, silent))
	}

	err := monitor.New(opts, open, logger).Run(ctx)
	v.Close()
	reporter.Wait()
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	default:
		fmt.Fprintln(stderr, "watch error:", err)
		return 1
	}
}

// loadReporter prints one line per successful load. Writes are serialised and
// Wait returns once every tracked load has been reported.
type loadReporter struct {
	out io.Writer
	mu  sync.Mutex
	wg  sync.WaitGroup
}

// Track reports load once it settles.
func (r *loadReporter) Track(load *viewer.Load) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		qc, err := load.Wait()
		if err != nil {
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		fmt.Fprintln(r.out, "loaded", qc.Title())
	}()
}

// Wait blocks until every tracked load has been reported or dropped.
func (r *loadReporter) Wait() { r.wg.Wait() }

func runConfig(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "show" {
		enc := toml.NewEncoder(stdout)
		if err := enc.Encode(cfg); err != nil {
			fmt.Fprintln(stderr, "encode error:", err)
			return 3
		}
		return 0
	}
	if args[0] != "init" {
		fmt.Fprintf(stderr, "unknown config command %q (want show or init)\n", args[0])
		return 1
	}

	fs := flag.NewFlagSet("config init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("path", "", "Where to write the file (default: the resolved config path)")
	force := fs.Bool("force", false, "Overwrite an existing file")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	target := *path
	if target == "" {
		resolved, err := config.Path()
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		target = resolved
	}
	if _, err := os.Stat(target); err == nil && !*force {
		fmt.Fprintf(stderr, "%s already exists; pass -force to overwrite\n", target)
		return 1
	}
	if err := config.DefaultConfig().Save(target); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 3
	}
	fmt.Fprintln(stdout, "wrote", target)
	return 0
}

func parseCell(raw string) (int, int, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("cell must be x,y, got %q", raw)
	}
	x, errX := strconv.Atoi(strings.TrimSpace(parts[0]))
	y, errY := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errX != nil || errY != nil {
		return 0, 0, fmt.Errorf("cell must be x,y, got %q", raw)
	}
	return x, y, nil
}
