package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fluorine/viewer/internal/codec"
	"fluorine/viewer/internal/logging"
)

// ExportKind selects which part of a replay a save writes.
type ExportKind int

const (
	// ExportFull writes the whole document, zeroth frame included.
	ExportFull ExportKind = iota
	// ExportFrame writes the frame at the cursor.
	ExportFrame
	// ExportEntities writes the cursor frame's entities.
	ExportEntities
	// ExportMoves writes the cursor frame's moves.
	ExportMoves
	// ExportEvents writes the cursor frame's events.
	ExportEvents
)

var exportNames = map[ExportKind]string{
	ExportFull:     "full",
	ExportFrame:    "frame",
	ExportEntities: "entities",
	ExportMoves:    "moves",
	ExportEvents:   "events",
}

func (k ExportKind) String() string {
	if name, ok := exportNames[k]; ok {
		return name
	}
	return fmt.Sprintf("export(%d)", int(k))
}

// ParseExportKind maps a command-line name onto an ExportKind.
func ParseExportKind(name string) (ExportKind, error) {
	for kind, candidate := range exportNames {
		if strings.EqualFold(strings.TrimSpace(name), candidate) {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown export kind %q", name)
}

// Export selects the value written for kind at turn. Partial exports use the
// clamped frame at turn.
func (d *Document) Export(kind ExportKind, turn int) (any, error) {
	if d == nil {
		return nil, errors.New("no replay loaded")
	}
	if kind == ExportFull {
		return d, nil
	}
	frame := d.Frame(turn)
	if frame == nil {
		return nil, errors.New("replay has no frames")
	}
	switch kind {
	case ExportFrame:
		return frame, nil
	case ExportEntities:
		return frame.Entities, nil
	case ExportMoves:
		return frame.Moves, nil
	case ExportEvents:
		return frame.Events, nil
	default:
		return nil, fmt.Errorf("unknown export kind %v", kind)
	}
}

// Writer persists exports as indented JSON. Paths carrying the compressed
// extension are written through the zstd codec so the engine's tools can
// read them back.
type Writer struct {
	indent          string
	compressedExt   string
	compressedCodec codec.Codec
	log             *logging.Logger
}

// NewWriter prepares a writer. An empty indent falls back to a tab.
func NewWriter(indent, compressedExt string, logger *logging.Logger) *Writer {
	if indent == "" {
		indent = "\t"
	}
	if logger == nil {
		logger = logging.L()
	}
	return &Writer{indent: indent, compressedExt: compressedExt, compressedCodec: codec.NewZstd(), log: logger}
}

// Encode renders value with the configured indentation.
func (w *Writer) Encode(value any) ([]byte, error) {
	if w == nil {
		return nil, errors.New("writer not initialised")
	}
	data, err := json.MarshalIndent(value, "", w.indent)
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return data, nil
}

// WriteFile encodes value and stores it at path, creating parent directories.
func (w *Writer) WriteFile(path string, value any) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("export path must be provided")
	}
	data, err := w.Encode(value)
	if err != nil {
		return err
	}

	//1.- Compress when the destination names the engine's replay container.
	compressed := HasExtension(path, w.compressedExt)
	if compressed {
		data, err = codec.Compress(w.compressedCodec, data)
		if err != nil {
			return fmt.Errorf("compress export: %w", err)
		}
	}

	//2.- Persist next to any existing files, creating the folder when needed.
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	w.log.Info("export written", logging.String("path", path), logging.Int("bytes", len(data)), logging.Bool("compressed", compressed))
	return nil
}

// Save exports kind at turn from doc into path.
func (w *Writer) Save(doc *Document, kind ExportKind, turn int, path string) error {
	value, err := doc.Export(kind, turn)
	if err != nil {
		return err
	}
	return w.WriteFile(path, value)
}
