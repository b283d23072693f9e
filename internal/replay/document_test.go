package replay

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"fluorine/viewer/internal/replaytest"
)

func TestFrameClampsOutOfRange(t *testing.T) {
	b := replaytest.New(2, 2, 1, 3, 0)
	b.Turn(0).Ship(0, 1, 0, 0, 10, false)
	b.Turn(2).Ship(0, 1, 1, 1, 30, false)
	doc, err := Parse(context.Background(), b.JSON(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cases := []struct {
		turn   int
		energy int
	}{
		{turn: -5, energy: 10},
		{turn: 0, energy: 10},
		{turn: 2, energy: 30},
		{turn: doc.Len(), energy: 30},
		{turn: 1 << 30, energy: 30},
	}
	for _, tc := range cases {
		ship, ok := doc.Frame(tc.turn).Entity(0, 1)
		if !ok || ship.Energy != tc.energy {
			t.Fatalf("Frame(%d): expected energy %d, got %+v (found=%v)", tc.turn, tc.energy, ship, ok)
		}
	}
	if doc.Frame(doc.Len()-1) != doc.Frame(doc.Len()-1) {
		t.Fatalf("last frame lookup is not stable")
	}
}

func TestNilDocumentIsEmpty(t *testing.T) {
	var doc *Document
	if doc.Len() != 0 || doc.Frame(3) != nil || doc.PlayerCount() != 0 {
		t.Fatalf("nil document should behave as empty")
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	b := replaytest.New(3, 2, 2, 3, 4)
	b.Turn(0).Spawn(0, 0, 0, 0).Generate(0)
	b.Turn(1).Ship(0, 0, 0, 0, 0, false).Move(0, 0, "e").Cell(0, 0, 3)
	b.Turn(2).Ship(0, 0, 1, 0, 12, true).Construct(0, 0, 1, 0).Shipwreck(2, 1, 4, 5).Bank(0, 10, 4000)
	b.Stats[1].Deliveries = [][3]int{{1, 1, 300}, {0, 0, 50}}
	original := b.JSON(t)

	doc, err := Parse(context.Background(), original)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	saved, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var want, got any
	if err := json.Unmarshal(original, &want); err != nil {
		t.Fatalf("decode original: %v", err)
	}
	if err := json.Unmarshal(saved, &got); err != nil {
		t.Fatalf("decode saved: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("round trip changed the document\nwant %s\ngot  %s", original, saved)
	}

	reloaded, err := Parse(context.Background(), saved)
	if err != nil {
		t.Fatalf("Parse saved: %v", err)
	}
	if reloaded.Len() != doc.Len() || !reflect.DeepEqual(reloaded.Initial, doc.Initial) {
		t.Fatalf("reloaded document differs")
	}
	if got := reloaded.Statistics.PlayerStatistics[1].HalitePerDropoff; len(got) != 2 || got[0].Amount != 300 {
		t.Fatalf("deliveries lost: %+v", got)
	}
}

func TestFrameDecodesEventsAndMoves(t *testing.T) {
	b := replaytest.New(3, 3, 2, 1, 0)
	b.Turn(0).Spawn(1, 7, 2, 2).Shipwreck(1, 1, 3, 4).Move(1, 7, "n").Generate(0)

	doc, err := Parse(context.Background(), b.JSON(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	frame := doc.Frame(0)
	if len(frame.Events) != 2 {
		t.Fatalf("expected two events, got %d", len(frame.Events))
	}
	spawn := frame.Events[0]
	if spawn.Type != EventSpawn || spawn.ID != 7 || spawn.OwnerID != 1 || spawn.Location != (Position{X: 2, Y: 2}) {
		t.Fatalf("unexpected spawn %+v", spawn)
	}
	if wreck := frame.Events[1]; wreck.Type != EventShipwreck || !reflect.DeepEqual(wreck.Ships, []int{3, 4}) {
		t.Fatalf("unexpected shipwreck %+v", wreck)
	}
	move := frame.Moves[1][0]
	if id, ok := move.EntityID(); !ok || id != 7 || move.Direction != "n" || !IsDirectional(move.Direction) {
		t.Fatalf("unexpected move %+v", move)
	}
	if _, ok := frame.Moves[0][0].EntityID(); ok {
		t.Fatalf("generate command should not name an entity")
	}
}

func TestGridHelpers(t *testing.T) {
	g := NewGrid(2, 3)
	if !g.Set(1, 2, 9) || g.Set(2, 0, 1) {
		t.Fatalf("Set bounds handling wrong")
	}
	clone := g.Clone()
	clone.Set(1, 2, 1)
	if g.At(1, 2) != 9 || g.At(-1, 0) != 0 || g.Sum() != 9 {
		t.Fatalf("grid helpers misbehaved: %v", g)
	}
}
