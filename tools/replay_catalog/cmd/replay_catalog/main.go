package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"fluorine/viewer/tools/replay_catalog"
)

func main() {
	root := flag.String("dir", ".", "directory containing replays")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	entries, err := replaycatalog.List(context.Background(), *root, replaycatalog.DefaultOptions())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := replaycatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, entry := range entries {
		if entry.Problem != "" {
			fmt.Printf("%s (skipped: %s)\n", entry.Path, entry.Problem)
			continue
		}
		fmt.Printf("%s (%d x %d, %d turns)\n", entry.Path, entry.Width, entry.Height, entry.Turns)
		fmt.Printf("  players: %s\n", strings.Join(entry.Players, ", "))
		if entry.Codec != "" {
			fmt.Printf("  codec: %s\n", entry.Codec)
		}
		if entry.EngineVersion != "" {
			fmt.Printf("  engine: %s, seed: %s\n", entry.EngineVersion, entry.Seed)
		}
		fmt.Printf("  modified: %s\n", entry.Modified.Format("2006-01-02 15:04:05"))
	}
}
