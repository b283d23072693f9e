package replay

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fluorine/viewer/internal/logging"
	"fluorine/viewer/internal/replaytest"
)

func loadFixture(t *testing.T) *Document {
	t.Helper()
	b := replaytest.New(3, 3, 2, 2, 1)
	b.Turn(0).Spawn(0, 1, 0, 0).Generate(0)
	b.Turn(1).Ship(0, 1, 0, 0, 0, false).Move(0, 1, "s").Shipwreck(2, 2, 8, 9)
	doc, err := Parse(context.Background(), b.JSON(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func TestWriterSavesFullDocumentWithZerothFrame(t *testing.T) {
	doc := loadFixture(t)
	path := filepath.Join(t.TempDir(), "out", "full.json")
	writer := NewWriter("\t", ".hlt", logging.NewTestLogger())

	if err := writer.Save(doc, ExportFull, 0, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "\n\t\"") {
		t.Fatalf("expected tab indentation")
	}
	var decoded struct {
		Frames []json.RawMessage `json:"full_frames"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(decoded.Frames) != doc.Len()+1 {
		t.Fatalf("expected %d frames with the zeroth restored, got %d", doc.Len()+1, len(decoded.Frames))
	}
}

func TestWriterCompressesReplayExtension(t *testing.T) {
	doc := loadFixture(t)
	path := filepath.Join(t.TempDir(), "again.hlt")
	writer := NewWriter("", ".hlt", logging.NewTestLogger())

	if err := writer.Save(doc, ExportFull, 0, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	reloaded, src, err := ReadFile(context.Background(), path, ".json", 0)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if src.Codec != "zstd" || reloaded.Len() != doc.Len() {
		t.Fatalf("unexpected reload %+v len=%d", src, reloaded.Len())
	}
}

func TestWriterPartialExports(t *testing.T) {
	doc := loadFixture(t)
	dir := t.TempDir()
	writer := NewWriter("  ", ".hlt", logging.NewTestLogger())

	cases := []struct {
		kind  ExportKind
		check func(t *testing.T, data []byte)
	}{
		{kind: ExportFrame, check: func(t *testing.T, data []byte) {
			var frame map[string]json.RawMessage
			if err := json.Unmarshal(data, &frame); err != nil || frame["events"] == nil {
				t.Fatalf("expected a frame object, got %s (%v)", data, err)
			}
		}},
		{kind: ExportEntities, check: func(t *testing.T, data []byte) {
			var entities map[string]map[string]Entity
			if err := json.Unmarshal(data, &entities); err != nil || entities["0"]["1"].Y != 0 {
				t.Fatalf("unexpected entities %s (%v)", data, err)
			}
		}},
		{kind: ExportMoves, check: func(t *testing.T, data []byte) {
			var moves map[string][]Move
			if err := json.Unmarshal(data, &moves); err != nil || moves["0"][0].Direction != "s" {
				t.Fatalf("unexpected moves %s (%v)", data, err)
			}
		}},
		{kind: ExportEvents, check: func(t *testing.T, data []byte) {
			var events []Event
			if err := json.Unmarshal(data, &events); err != nil || len(events) != 1 || events[0].Type != EventShipwreck {
				t.Fatalf("unexpected events %s (%v)", data, err)
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			path := filepath.Join(dir, tc.kind.String()+".json")
			if err := writer.Save(doc, tc.kind, 1, path); err != nil {
				t.Fatalf("Save: %v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			tc.check(t, data)
		})
	}
}

func TestParseExportKind(t *testing.T) {
	kind, err := ParseExportKind(" Moves ")
	if err != nil || kind != ExportMoves {
		t.Fatalf("expected moves, got %v (%v)", kind, err)
	}
	if _, err := ParseExportKind("pixels"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestWriterRequiresPath(t *testing.T) {
	writer := NewWriter("", "", logging.NewTestLogger())
	if err := writer.WriteFile(" ", map[string]int{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
