package replay

import (
	"encoding/json"
	"strings"
)

// Document is a validated, normalized replay. It is immutable after Parse
// returns; every reader shares it without locking.
type Document struct {
	Constants   Constants
	Players     []Player
	Statistics  GameStatistics
	ResourceMap ResourceMap
	// Frames holds every turn after the redundant zeroth frame.
	Frames []Frame
	Width  int
	Height int
	// Initial is the starting resource grid in [x][y] order.
	Initial Grid

	zeroth *Frame
	rest   map[string]json.RawMessage
}

// Len returns the number of retained frames.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Frames)
}

// Frame returns the frame at n clamped into range. It returns nil only for an
// empty document, which Parse never produces.
func (d *Document) Frame(n int) *Frame {
	if d == nil || len(d.Frames) == 0 {
		return nil
	}
	if n < 0 {
		n = 0
	}
	if n > len(d.Frames)-1 {
		n = len(d.Frames) - 1
	}
	return &d.Frames[n]
}

// PlayerCount returns the number of players.
func (d *Document) PlayerCount() int {
	if d == nil {
		return 0
	}
	return len(d.Players)
}

// PlayerStatistics returns the statistics for pid, if present.
func (d *Document) PlayerStatistics(pid int) (PlayerStatistics, bool) {
	if d == nil || pid < 0 || pid >= len(d.Statistics.PlayerStatistics) {
		return PlayerStatistics{}, false
	}
	return d.Statistics.PlayerStatistics[pid], true
}

// EngineVersion reports the ENGINE_VERSION section, if any.
func (d *Document) EngineVersion() string {
	return d.restString("ENGINE_VERSION")
}

// MapSeed reports the map generator seed, if any.
func (d *Document) MapSeed() string {
	return d.restString("map_generator_seed")
}

func (d *Document) restString(key string) string {
	if d == nil {
		return ""
	}
	raw, ok := d.rest[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// MarshalJSON reproduces the stored replay, re-inserting the zeroth frame and
// every section the typed view does not model.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.rest)+5)
	for key, raw := range d.rest {
		out[key] = raw
	}
	frames := d.Frames
	if d.zeroth != nil {
		frames = make([]Frame, 0, len(d.Frames)+1)
		frames = append(frames, *d.zeroth)
		frames = append(frames, d.Frames...)
	}
	sections := []struct {
		key   string
		value any
	}{
		{"GAME_CONSTANTS", d.Constants},
		{"full_frames", frames},
		{"game_statistics", d.Statistics},
		{"players", d.Players},
		{"production_map", d.ResourceMap},
	}
	for _, section := range sections {
		raw, err := json.Marshal(section.value)
		if err != nil {
			return nil, err
		}
		out[section.key] = raw
	}
	return json.Marshal(out)
}
