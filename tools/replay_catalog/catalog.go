package replaycatalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"fluorine/viewer/internal/codec"
	"fluorine/viewer/internal/replay"
)

// Entry summarises one replay file without decoding its frames.
type Entry struct {
	Path          string    `json:"path"`
	Codec         string    `json:"codec,omitempty"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	Players       []string  `json:"players"`
	Turns         int       `json:"turns"`
	EngineVersion string    `json:"engine_version,omitempty"`
	Seed          string    `json:"seed,omitempty"`
	Modified      time.Time `json:"modified"`
	// Problem explains why the file could not be summarised.
	Problem string `json:"problem,omitempty"`
}

// Options selects which files List considers.
type Options struct {
	Extensions []string
	// Limit bounds the decompressed size of one file; zero disables it.
	Limit int64
}

// DefaultOptions matches plain and compressed engine replays.
func DefaultOptions() Options {
	return Options{Extensions: []string{".hlt", ".json"}, Limit: 1 << 30}
}

// List walks the directory tree and summarises every replay, newest first.
func List(ctx context.Context, root string, opts Options) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	//1.- Walk the directory tree searching for replay extensions.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !matches(path, opts.Extensions) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entry := Entry{Path: path, Modified: info.ModTime()}
		if err := summarise(ctx, &entry, opts.Limit); err != nil {
			entry.Problem = err.Error()
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Modified.Equal(entries[j].Modified) {
			return entries[i].Path < entries[j].Path
		}
		return entries[i].Modified.After(entries[j].Modified)
	})
	return entries, nil
}

func matches(path string, extensions []string) bool {
	for _, ext := range extensions {
		if replay.HasExtension(path, ext) {
			return true
		}
	}
	return false
}

// summarise peeks at the top-level sections with gjson, leaving frames undecoded.
func summarise(ctx context.Context, entry *Entry, limit int64) error {
	data, err := os.ReadFile(entry.Path)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(data) {
		var c codec.Codec
		data, c, err = codec.DecompressFile(ctx, entry.Path, limit)
		if c != nil {
			entry.Codec = c.Name()
		}
		if err != nil {
			return fmt.Errorf("not json and not a readable container: %w", err)
		}
		if !gjson.ValidBytes(data) {
			return fmt.Errorf("decompressed payload is not json")
		}
	}

	fields := gjson.GetManyBytes(data,
		"production_map.width",
		"production_map.height",
		"players.#.name",
		"full_frames.#",
		"ENGINE_VERSION",
		"map_generator_seed",
	)
	if !fields[0].Exists() || !fields[3].Exists() {
		return fmt.Errorf("not a Halite 3 replay")
	}
	entry.Width = int(fields[0].Int())
	entry.Height = int(fields[1].Int())
	for _, name := range fields[2].Array() {
		entry.Players = append(entry.Players, name.String())
	}
	//1.- The stored zeroth frame is not a playable turn.
	if frames := int(fields[3].Int()); frames > 0 {
		entry.Turns = frames - 1
	}
	entry.EngineVersion = fields[4].String()
	if fields[5].Exists() {
		entry.Seed = fields[5].Raw
		if fields[5].Type == gjson.String {
			entry.Seed = fields[5].String()
		}
	}
	return nil
}

// MarshalEntries produces a stable JSON representation of the entries for CLI output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	//1.- Marshal with indentation to keep CLI output legible for operators.
	return json.MarshalIndent(entries, "", "  ")
}
