package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"fluorine/viewer/internal/config"
	"fluorine/viewer/tools/replay_player"
)

func main() {
	path := flag.String("path", "", "Path to a replay file")
	follow := flag.Bool("follow", false, "Print turns at the autoplay interval instead of all at once")
	jsonFlag := flag.Bool("json", false, "Emit the timeline as JSON")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path flag is required")
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	qc, err := replayplayer.Load(ctx, *path, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	timeline := replayplayer.Timeline(qc)

	if *jsonFlag {
		//1.- Render the timeline as JSON so callers can pipe the output elsewhere.
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(timeline); err != nil {
			fmt.Fprintln(os.Stderr, "encode error:", err)
			os.Exit(3)
		}
		return
	}

	fmt.Println(qc.Title())
	if !*follow {
		for _, summary := range timeline {
			fmt.Println(summary)
		}
		return
	}
	if err := replayplayer.Play(ctx, timeline, cfg.AutoplayInterval(), func(s replayplayer.TurnSummary) {
		fmt.Println(s)
	}); err != nil {
		fmt.Fprintln(os.Stderr, "stopped:", err)
		os.Exit(130)
	}
}
