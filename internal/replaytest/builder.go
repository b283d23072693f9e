// Package replaytest builds synthetic replay documents for tests.
package replaytest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"fluorine/viewer/internal/codec"
)

// Builder assembles a replay in the engine's stored layout. Turn indices are
// the ones the viewer sees: turn 0 is the first frame kept after load, and
// the builder adds the zeroth frame itself.
type Builder struct {
	Width     int
	Height    int
	Constants map[string]any
	// Grid is stored [y][x] like the engine writes it.
	Grid    [][]int
	Players []Player
	Stats   []Stats
	Extra   map[string]any

	zeroth map[string]any
	turns  []*Turn
}

// Player describes one participant.
type Player struct {
	ID       int
	Name     string
	FactoryX int
	FactoryY int
}

// Stats are the end-of-game statistics for one player.
type Stats struct {
	ID            int
	Rank          int
	LastTurnAlive int
	Deliveries    [][3]int // x, y, amount
}

// Turn accumulates the contents of one frame.
type Turn struct {
	entities  map[string]map[string]map[string]any
	events    []map[string]any
	moves     map[string][]map[string]any
	cells     []map[string]any
	deposited map[string]int
	energy    map[string]int
}

// New creates a builder with a uniform grid and players whose factories sit
// on the diagonal.
func New(width, height, players, turns, fill int) *Builder {
	b := &Builder{
		Width:  width,
		Height: height,
		Constants: map[string]any{
			"MOVE_COST_RATIO":          10,
			"INSPIRED_MOVE_COST_RATIO": 10,
			"EXTRACT_RATIO":            4,
			"INITIAL_ENERGY":           5000,
			"MAX_ENERGY":               1000,
			"NEW_ENTITY_ENERGY_COST":   1000,
			"DROPOFF_COST":             4000,
			"STRICT_ERRORS":            false,
		},
		Extra: map[string]any{
			"ENGINE_VERSION":      "1.1.6",
			"map_generator_seed":  1234,
			"REPLAY_FILE_VERSION": 3,
		},
		zeroth: map[string]any{"entities": map[string]any{}, "events": []any{}, "moves": map[string]any{}, "cells": []any{}},
	}
	b.Grid = make([][]int, height)
	for y := range b.Grid {
		b.Grid[y] = make([]int, width)
		for x := range b.Grid[y] {
			b.Grid[y][x] = fill
		}
	}
	for pid := 0; pid < players; pid++ {
		b.Players = append(b.Players, Player{ID: pid, Name: "bot" + itoa(pid), FactoryX: pid % width, FactoryY: pid % height})
		b.Stats = append(b.Stats, Stats{ID: pid, Rank: pid + 1, LastTurnAlive: turns})
	}
	for i := 0; i < turns; i++ {
		b.turns = append(b.turns, newTurn())
	}
	return b
}

func newTurn() *Turn {
	return &Turn{
		entities:  map[string]map[string]map[string]any{},
		moves:     map[string][]map[string]any{},
		deposited: map[string]int{},
		energy:    map[string]int{},
	}
}

// SetGrid assigns the initial resource at logical x, y.
func (b *Builder) SetGrid(x, y, value int) *Builder {
	b.Grid[y][x] = value
	return b
}

// Turn returns the frame for viewer turn n, growing the replay when needed.
func (b *Builder) Turn(n int) *Turn {
	for len(b.turns) <= n {
		b.turns = append(b.turns, newTurn())
	}
	return b.turns[n]
}

// Ship records an entity state.
func (t *Turn) Ship(pid, sid, x, y, energy int, inspired bool) *Turn {
	owned, ok := t.entities[itoa(pid)]
	if !ok {
		owned = map[string]map[string]any{}
		t.entities[itoa(pid)] = owned
	}
	owned[itoa(sid)] = map[string]any{"x": x, "y": y, "energy": energy, "is_inspired": inspired}
	return t
}

// Spawn records a spawn event.
func (t *Turn) Spawn(pid, sid, x, y int) *Turn {
	t.events = append(t.events, map[string]any{"type": "spawn", "id": sid, "owner_id": pid, "location": xy(x, y), "energy": 0})
	return t
}

// Construct records a dropoff construction event.
func (t *Turn) Construct(pid, sid, x, y int) *Turn {
	t.events = append(t.events, map[string]any{"type": "construct", "id": sid, "owner_id": pid, "location": xy(x, y)})
	return t
}

// Shipwreck records a collision event.
func (t *Turn) Shipwreck(x, y int, sids ...int) *Turn {
	t.events = append(t.events, map[string]any{"type": "shipwreck", "location": xy(x, y), "ships": sids})
	return t
}

// Move records a move command; an empty direction omits it.
func (t *Turn) Move(pid, sid int, direction string) *Turn {
	move := map[string]any{"type": "m", "id": sid, "direction": direction}
	t.moves[itoa(pid)] = append(t.moves[itoa(pid)], move)
	return t
}

// Build records a construct command.
func (t *Turn) Build(pid, sid int) *Turn {
	t.moves[itoa(pid)] = append(t.moves[itoa(pid)], map[string]any{"type": "c", "id": sid})
	return t
}

// Generate records a spawn command.
func (t *Turn) Generate(pid int) *Turn {
	t.moves[itoa(pid)] = append(t.moves[itoa(pid)], map[string]any{"type": "g"})
	return t
}

// Cell records a ground resource override.
func (t *Turn) Cell(x, y, production int) *Turn {
	t.cells = append(t.cells, map[string]any{"x": x, "y": y, "production": production})
	return t
}

// Bank records a player's deposited total and banked energy.
func (t *Turn) Bank(pid, deposited, energy int) *Turn {
	t.deposited[itoa(pid)] = deposited
	t.energy[itoa(pid)] = energy
	return t
}

// Document renders the replay as a generic JSON value.
func (b *Builder) Document() map[string]any {
	grid := make([][]map[string]any, len(b.Grid))
	for y, row := range b.Grid {
		grid[y] = make([]map[string]any, len(row))
		for x, v := range row {
			grid[y][x] = map[string]any{"energy": v}
		}
	}
	players := make([]map[string]any, 0, len(b.Players))
	for _, p := range b.Players {
		players = append(players, map[string]any{
			"player_id":        p.ID,
			"name":             p.Name,
			"factory_location": xy(p.FactoryX, p.FactoryY),
			"entities":         []any{},
		})
	}
	stats := make([]map[string]any, 0, len(b.Stats))
	for _, s := range b.Stats {
		deliveries := make([]any, 0, len(s.Deliveries))
		for _, d := range s.Deliveries {
			deliveries = append(deliveries, []any{xy(d[0], d[1]), d[2]})
		}
		stats = append(stats, map[string]any{
			"player_id":          s.ID,
			"rank":               s.Rank,
			"last_turn_alive":    s.LastTurnAlive,
			"halite_per_dropoff": deliveries,
			"random_id":          s.ID * 7,
		})
	}
	frames := []any{b.zeroth}
	for _, t := range b.turns {
		events := t.events
		if events == nil {
			events = []map[string]any{}
		}
		cells := t.cells
		if cells == nil {
			cells = []map[string]any{}
		}
		frames = append(frames, map[string]any{
			"entities":  t.entities,
			"events":    events,
			"moves":     t.moves,
			"cells":     cells,
			"deposited": t.deposited,
			"energy":    t.energy,
		})
	}
	doc := map[string]any{
		"GAME_CONSTANTS": b.Constants,
		"full_frames":    frames,
		"game_statistics": map[string]any{
			"number_turns":      len(b.turns),
			"player_statistics": stats,
		},
		"players":        players,
		"production_map": map[string]any{"width": b.Width, "height": b.Height, "grid": grid},
	}
	for k, v := range b.Extra {
		doc[k] = v
	}
	return doc
}

// JSON renders the replay bytes.
func (b *Builder) JSON(t testing.TB) []byte {
	t.Helper()
	data, err := json.Marshal(b.Document())
	if err != nil {
		t.Fatalf("marshal replay: %v", err)
	}
	return data
}

// WriteFile stores the replay under dir, compressed with c when non-nil.
func (b *Builder) WriteFile(t testing.TB, dir, name string, c codec.Codec) string {
	t.Helper()
	return WriteBytes(t, dir, name, b.JSON(t), c)
}

// WriteBytes stores data under dir, compressed with c when non-nil.
func WriteBytes(t testing.TB, dir, name string, data []byte, c codec.Codec) string {
	t.Helper()
	if c != nil {
		compressed, err := codec.Compress(c, data)
		if err != nil {
			t.Fatalf("compress %s: %v", name, err)
		}
		data = compressed
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func xy(x, y int) map[string]any { return map[string]any{"x": x, "y": y} }

func itoa(v int) string { return strconv.Itoa(v) }
