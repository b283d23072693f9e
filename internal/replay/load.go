package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"fluorine/viewer/internal/codec"
	"fluorine/viewer/internal/logging"
)

// requiredKeys are the top-level sections every supported replay carries.
var requiredKeys = []string{"GAME_CONSTANTS", "full_frames", "game_statistics", "players", "production_map"}

// halite2Keys identify the previous generation of replays.
var halite2Keys = []string{"constants", "engine_version", "frames", "num_frames", "num_players", "planets"}

const skeletonSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["GAME_CONSTANTS", "full_frames", "game_statistics", "players", "production_map"],
	"properties": {
		"GAME_CONSTANTS": {"type": "object"},
		"full_frames": {"type": "array", "minItems": 2, "items": {"type": "object"}},
		"game_statistics": {
			"type": "object",
			"required": ["player_statistics"],
			"properties": {
				"player_statistics": {
					"type": "array",
					"items": {"type": "object", "required": ["player_id"], "properties": {"player_id": {"type": "integer"}}}
				}
			}
		},
		"players": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["player_id", "factory_location"],
				"properties": {
					"player_id": {"type": "integer"},
					"factory_location": {
						"type": "object",
						"required": ["x", "y"],
						"properties": {"x": {"type": "integer"}, "y": {"type": "integer"}}
					}
				}
			}
		},
		"production_map": {
			"type": "object",
			"required": ["width", "height", "grid"],
			"properties": {
				"width": {"type": "integer", "minimum": 1},
				"height": {"type": "integer", "minimum": 1},
				"grid": {"type": "array", "items": {"type": "array"}}
			}
		}
	}
}`

var replaySchema = jsonschema.MustCompileString("replay.schema.json", skeletonSchema)

// Source records how a document reached the loader.
type Source struct {
	Path  string
	Codec string
	Bytes int
}

// Compressed reports whether the document went through a decompressor.
func (s Source) Compressed() bool { return s.Codec != "" }

// Parse validates and normalizes a JSON replay. The input is never retained
// across calls so parsing the same bytes twice yields equal documents.
func Parse(ctx context.Context, data []byte) (*Document, error) {
	//1.- Reject anything that is not a JSON object before inspecting keys.
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		if !json.Valid(data) {
			return nil, fmt.Errorf("%w: %v", errNotJSON, err)
		}
		return nil, &SchemaError{Reason: "top level is not an object"}
	}

	//2.- Classify foreign formats when required sections are missing.
	for _, key := range requiredKeys {
		if _, ok := top[key]; !ok {
			return nil, classify(data, key)
		}
	}

	//3.- Check the shape of every section except the frame bodies.
	skeleton, err := buildSkeleton(top)
	if err != nil {
		return nil, &SchemaError{Reason: err.Error()}
	}
	if err := replaySchema.Validate(skeleton); err != nil {
		return nil, &SchemaError{Reason: err.Error()}
	}

	//4.- Decode the typed view and keep unknown sections for saving.
	doc := &Document{rest: make(map[string]json.RawMessage, len(top))}
	if err := json.Unmarshal(top["GAME_CONSTANTS"], &doc.Constants); err != nil {
		return nil, &SchemaError{Reason: "GAME_CONSTANTS: " + err.Error()}
	}
	var frames []Frame
	if err := json.Unmarshal(top["full_frames"], &frames); err != nil {
		return nil, &SchemaError{Reason: "full_frames: " + err.Error()}
	}
	if err := json.Unmarshal(top["game_statistics"], &doc.Statistics); err != nil {
		return nil, &SchemaError{Reason: "game_statistics: " + err.Error()}
	}
	if err := json.Unmarshal(top["players"], &doc.Players); err != nil {
		return nil, &SchemaError{Reason: "players: " + err.Error()}
	}
	if err := json.Unmarshal(top["production_map"], &doc.ResourceMap); err != nil {
		return nil, &SchemaError{Reason: "production_map: " + err.Error()}
	}
	for key, raw := range top {
		switch key {
		case "GAME_CONSTANTS", "full_frames", "game_statistics", "players", "production_map":
		default:
			doc.rest[key] = raw
		}
	}

	//5.- Normalize ordering and drop the redundant zeroth frame.
	if err := normalize(doc, frames); err != nil {
		return nil, err
	}

	//6.- Convert the stored grid into logical order exactly once.
	doc.Initial = columnsFromRows(doc.ResourceMap.Grid, doc.Width, doc.Height)
	logging.LoggerFromContext(ctx).Debug("replay parsed",
		logging.Int("width", doc.Width),
		logging.Int("height", doc.Height),
		logging.Int("turns", doc.Len()),
	)
	return doc, nil
}

// classify builds the schema error for a document missing a required key.
func classify(data []byte, missing string) error {
	for _, result := range gjson.GetManyBytes(data, halite2Keys...) {
		if !truthy(result) {
			return &SchemaError{Reason: "missing " + missing}
		}
	}
	return &SchemaError{Format: FormatHalite2, Reason: "missing " + missing}
}

// truthy treats a JSON value as a present, non-empty marker.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.True, gjson.JSON:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	default:
		return false
	}
}

// buildSkeleton decodes every section except frame bodies into generic values.
func buildSkeleton(top map[string]json.RawMessage) (map[string]any, error) {
	skeleton := make(map[string]any, len(requiredKeys))
	for _, key := range requiredKeys {
		raw := top[key]
		if key == "full_frames" {
			var frames []json.RawMessage
			if err := json.Unmarshal(raw, &frames); err != nil {
				//1.- Leave non-array values for the schema to report.
				var value any
				if err := decodeNumber(raw, &value); err != nil {
					return nil, err
				}
				skeleton[key] = value
				continue
			}
			placeholders := make([]any, len(frames))
			for i, frame := range frames {
				trimmed := bytes.TrimSpace(frame)
				if len(trimmed) > 0 && trimmed[0] == '{' {
					placeholders[i] = map[string]any{}
				} else {
					placeholders[i] = string(trimmed)
				}
			}
			skeleton[key] = placeholders
			continue
		}
		var value any
		if err := decodeNumber(raw, &value); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		skeleton[key] = value
	}
	return skeleton, nil
}

// decodeNumber decodes keeping numbers as json.Number, which the schema validator expects.
func decodeNumber(raw []byte, value *any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(value)
}

// normalize removes frame zero, sorts players and checks ids are dense.
func normalize(doc *Document, frames []Frame) error {
	zeroth := frames[0]
	doc.zeroth = &zeroth
	doc.Frames = frames[1:]

	sort.SliceStable(doc.Players, func(i, j int) bool { return doc.Players[i].PlayerID < doc.Players[j].PlayerID })
	stats := doc.Statistics.PlayerStatistics
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].PlayerID < stats[j].PlayerID })

	for i, player := range doc.Players {
		if player.PlayerID != i {
			return &SchemaError{Reason: fmt.Sprintf("player ids must be 0..%d, found %d at position %d", len(doc.Players)-1, player.PlayerID, i)}
		}
	}
	if len(stats) != len(doc.Players) {
		return &SchemaError{Reason: fmt.Sprintf("player_statistics has %d entries for %d players", len(stats), len(doc.Players))}
	}
	for i, stat := range stats {
		if stat.PlayerID != i {
			return &SchemaError{Reason: fmt.Sprintf("player_statistics ids must be 0..%d, found %d at position %d", len(stats)-1, stat.PlayerID, i)}
		}
	}

	//1.- The declared size must describe the stored grid before anything is allocated from it.
	grid := doc.ResourceMap.Grid
	if len(grid) != doc.ResourceMap.Height {
		return &SchemaError{Reason: fmt.Sprintf("production_map height %d does not match %d grid rows", doc.ResourceMap.Height, len(grid))}
	}
	for y, row := range grid {
		if len(row) != doc.ResourceMap.Width {
			return &SchemaError{Reason: fmt.Sprintf("production_map width %d does not match %d cells in grid row %d", doc.ResourceMap.Width, len(row), y)}
		}
	}

	doc.Width = doc.ResourceMap.Width
	doc.Height = doc.ResourceMap.Height
	return nil
}

// ReadPlain parses path as uncompressed JSON. A file that is not JSON yields
// an error for which IsNotJSON holds; a JSON file that is not a replay yields a
// SchemaError.
func ReadPlain(ctx context.Context, path string) (*Document, Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Source{Path: path}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	doc, err := Parse(ctx, data)
	return doc, Source{Path: path, Bytes: len(data)}, err
}

// ReadCompressed decompresses path with the detected codec and parses the result.
// limit bounds the decompressed size; zero disables the bound.
func ReadCompressed(ctx context.Context, path string, limit int64) (*Document, Source, error) {
	data, c, err := codec.DecompressFile(ctx, path, limit)
	src := Source{Path: path, Bytes: len(data)}
	if c != nil {
		src.Codec = c.Name()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, src, err
		}
		return nil, src, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	doc, err := Parse(ctx, data)
	if errors.Is(err, errNotJSON) {
		return nil, src, fmt.Errorf("%w: decompressed payload is not json", ErrDecode)
	}
	return doc, src, err
}

// IsNotJSON reports whether err came from feeding non-JSON bytes to ReadPlain.
func IsNotJSON(err error) bool { return errors.Is(err, errNotJSON) }

// ReadFile runs the full decode pipeline synchronously: plain JSON first, then
// the compressed route unless the name carries plainExt.
func ReadFile(ctx context.Context, path, plainExt string, limit int64) (*Document, Source, error) {
	doc, src, err := ReadPlain(ctx, path)
	if err == nil || !IsNotJSON(err) {
		return doc, src, err
	}
	if HasExtension(path, plainExt) {
		return nil, src, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return ReadCompressed(ctx, path, limit)
}

// HasExtension reports whether path ends with ext, ignoring case. An empty ext never matches.
func HasExtension(path, ext string) bool {
	if ext == "" {
		return false
	}
	return strings.EqualFold(filepath.Ext(path), ext)
}
