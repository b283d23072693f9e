// Package replay decodes, validates and saves Halite 3 replay documents.
package replay

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Well-known simulation constants read by the derivation and query layers.
const (
	ConstMoveCostRatio         = "MOVE_COST_RATIO"
	ConstInspiredMoveCostRatio = "INSPIRED_MOVE_COST_RATIO"
	ConstExtractRatio          = "EXTRACT_RATIO"
	ConstInitialEnergy         = "INITIAL_ENERGY"
	ConstMaxEnergy             = "MAX_ENERGY"
	ConstNewEntityEnergyCost   = "NEW_ENTITY_ENERGY_COST"
	ConstDropoffCost           = "DROPOFF_COST"
)

// Event types carried in a frame's event list. Other types are retained but ignored.
const (
	EventSpawn     = "spawn"
	EventConstruct = "construct"
	EventShipwreck = "shipwreck"
)

// Move types and the directions that cost fuel.
const (
	MoveTypeMove      = "m"
	MoveTypeConstruct = "c"
	MoveTypeGenerate  = "g"
	DirectionStill    = "o"
)

// IsDirectional reports whether d is one of the four compass moves.
func IsDirectional(d string) bool {
	switch d {
	case "n", "s", "e", "w":
		return true
	}
	return false
}

// Position is a grid coordinate in logical x/y order.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Constants maps simulation parameter names to their raw JSON values. Values
// are kept raw because the engine mixes numbers and booleans in this section.
type Constants map[string]json.RawMessage

// Number returns the numeric value of key.
func (c Constants) Number(key string) (float64, bool) {
	raw, ok := c[key]
	if !ok {
		return 0, false
	}
	value, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.IsNaN(value) {
		return 0, false
	}
	return value, true
}

// Int returns the integer value of key, or zero when it is absent or not numeric.
func (c Constants) Int(key string) int {
	value, ok := c.Number(key)
	if !ok {
		return 0
	}
	return int(value)
}

// Entity is one ship's state in a single frame.
type Entity struct {
	X          int  `json:"x"`
	Y          int  `json:"y"`
	Energy     int  `json:"energy"`
	IsInspired bool `json:"is_inspired"`
}

// Event is a tagged entry in a frame's event list. Only the fields used by the
// viewer are decoded; the original bytes are retained for serialization.
type Event struct {
	Type     string   `json:"type"`
	ID       int      `json:"id"`
	OwnerID  int      `json:"owner_id"`
	Location Position `json:"location"`
	Ships    []int    `json:"ships,omitempty"`
	raw      json.RawMessage
}

// UnmarshalJSON decodes the event and keeps its source bytes.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*e = Event(v)
	e.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the source bytes when available.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.raw != nil {
		return e.raw, nil
	}
	type plain Event
	return json.Marshal(plain(e))
}

// Move is one command issued by a player for the following turn.
type Move struct {
	Type      string `json:"type"`
	ID        *int   `json:"id,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// EntityID returns the commanded entity, if the move names one.
func (m Move) EntityID() (int, bool) {
	if m.ID == nil {
		return 0, false
	}
	return *m.ID, true
}

// Cell is a sparse ground-resource override for a single turn.
type Cell struct {
	X          int `json:"x"`
	Y          int `json:"y"`
	Production int `json:"production"`
}

// Frame is one simulated turn's sparse delta.
type Frame struct {
	Entities  map[int]map[int]Entity `json:"entities"`
	Events    []Event                `json:"events"`
	Moves     map[int][]Move         `json:"moves"`
	Cells     []Cell                 `json:"cells"`
	Deposited map[int]int            `json:"deposited,omitempty"`
	Energy    map[int]int            `json:"energy,omitempty"`
	raw       json.RawMessage
}

// UnmarshalJSON decodes the frame and keeps its source bytes.
func (f *Frame) UnmarshalJSON(data []byte) error {
	type plain Frame
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Frame(v)
	f.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the source bytes when available.
func (f Frame) MarshalJSON() ([]byte, error) {
	if f.raw != nil {
		return f.raw, nil
	}
	type plain Frame
	return json.Marshal(plain(f))
}

// Entity looks up an entity owned by pid in this frame.
func (f *Frame) Entity(pid, id int) (Entity, bool) {
	if f == nil {
		return Entity{}, false
	}
	owned, ok := f.Entities[pid]
	if !ok {
		return Entity{}, false
	}
	e, ok := owned[id]
	return e, ok
}

// Player is a participant in the match.
type Player struct {
	PlayerID        int      `json:"player_id"`
	Name            string   `json:"name"`
	FactoryLocation Position `json:"factory_location"`
	raw             json.RawMessage
}

// UnmarshalJSON decodes the player and keeps its source bytes.
func (p *Player) UnmarshalJSON(data []byte) error {
	type plain Player
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Player(v)
	p.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the source bytes when available.
func (p Player) MarshalJSON() ([]byte, error) {
	if p.raw != nil {
		return p.raw, nil
	}
	type plain Player
	return json.Marshal(plain(p))
}

// Delivery is the amount a player delivered through one structure.
type Delivery struct {
	Location Position
	Amount   int
}

// UnmarshalJSON decodes the engine's [location, amount] pair.
func (d *Delivery) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("delivery: expected [location, amount], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &d.Location); err != nil {
		return fmt.Errorf("delivery location: %w", err)
	}
	if err := json.Unmarshal(pair[1], &d.Amount); err != nil {
		return fmt.Errorf("delivery amount: %w", err)
	}
	return nil
}

// MarshalJSON encodes the delivery back into the engine's pair form.
func (d Delivery) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{d.Location, d.Amount})
}

// PlayerStatistics is the engine's end-of-game summary for one player.
type PlayerStatistics struct {
	PlayerID         int        `json:"player_id"`
	Rank             int        `json:"rank"`
	LastTurnAlive    int        `json:"last_turn_alive"`
	HalitePerDropoff []Delivery `json:"halite_per_dropoff"`
	raw              json.RawMessage
}

// UnmarshalJSON decodes the statistics and keeps their source bytes.
func (s *PlayerStatistics) UnmarshalJSON(data []byte) error {
	type plain PlayerStatistics
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = PlayerStatistics(v)
	s.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the source bytes when available.
func (s PlayerStatistics) MarshalJSON() ([]byte, error) {
	if s.raw != nil {
		return s.raw, nil
	}
	type plain PlayerStatistics
	return json.Marshal(plain(s))
}

// GameStatistics wraps the per-player statistics; unmodelled keys are kept in rest.
type GameStatistics struct {
	PlayerStatistics []PlayerStatistics
	rest             map[string]json.RawMessage
}

// UnmarshalJSON splits player_statistics from the remaining keys.
func (g *GameStatistics) UnmarshalJSON(data []byte) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	g.PlayerStatistics = nil
	if raw, ok := all["player_statistics"]; ok {
		if err := json.Unmarshal(raw, &g.PlayerStatistics); err != nil {
			return fmt.Errorf("player_statistics: %w", err)
		}
		delete(all, "player_statistics")
	}
	g.rest = all
	return nil
}

// MarshalJSON rebuilds the object so that sorted statistics are written back.
func (g GameStatistics) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(g.rest)+1)
	for k, v := range g.rest {
		out[k] = v
	}
	stats, err := json.Marshal(g.PlayerStatistics)
	if err != nil {
		return nil, err
	}
	out["player_statistics"] = stats
	return json.Marshal(out)
}

// GridCell is one entry of the stored resource grid.
type GridCell struct {
	Energy int `json:"energy"`
}

// ResourceMap is the initial resource grid as stored. Grid is indexed [y][x];
// consumers read Document.Initial, which is in [x][y] order.
type ResourceMap struct {
	Width  int          `json:"width"`
	Height int          `json:"height"`
	Grid   [][]GridCell `json:"grid"`
	raw    json.RawMessage
}

// UnmarshalJSON decodes the map and keeps its source bytes.
func (m *ResourceMap) UnmarshalJSON(data []byte) error {
	type plain ResourceMap
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = ResourceMap(v)
	m.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the source bytes when available.
func (m ResourceMap) MarshalJSON() ([]byte, error) {
	if m.raw != nil {
		return m.raw, nil
	}
	type plain ResourceMap
	return json.Marshal(plain(m))
}

// Grid is a resource grid in logical order, indexed [x][y].
type Grid [][]int

// NewGrid allocates a zeroed width x height grid.
func NewGrid(width, height int) Grid {
	g := make(Grid, width)
	cells := make([]int, width*height)
	for x := range g {
		g[x] = cells[x*height : (x+1)*height : (x+1)*height]
	}
	return g
}

// At returns the value at x, y or zero when out of range.
func (g Grid) At(x, y int) int {
	if x < 0 || x >= len(g) || y < 0 || y >= len(g[x]) {
		return 0
	}
	return g[x][y]
}

// Set assigns the value at x, y; out-of-range writes are ignored.
func (g Grid) Set(x, y, v int) bool {
	if x < 0 || x >= len(g) || y < 0 || y >= len(g[x]) {
		return false
	}
	g[x][y] = v
	return true
}

// Clone returns a deep copy.
func (g Grid) Clone() Grid {
	if len(g) == 0 {
		return Grid{}
	}
	out := NewGrid(len(g), len(g[0]))
	for x := range g {
		copy(out[x], g[x])
	}
	return out
}

// Sum adds every cell.
func (g Grid) Sum() int {
	total := 0
	for x := range g {
		for _, v := range g[x] {
			total += v
		}
	}
	return total
}

// columnsFromRows converts the stored [y][x] grid into logical [x][y] order.
// This is the only place the storage transposition is undone. rows must hold
// height rows of width cells.
func columnsFromRows(rows [][]GridCell, width, height int) Grid {
	g := NewGrid(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g[x][y] = rows[y][x].Energy
		}
	}
	return g
}
