package query

import (
	"context"
	"testing"
	"time"

	"fluorine/viewer/internal/derive"
	"fluorine/viewer/internal/replay"
	"fluorine/viewer/internal/replaytest"
)

func build(t *testing.T, b *replaytest.Builder) *Context {
	t.Helper()
	doc, err := replay.Parse(context.Background(), b.JSON(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res, err := derive.Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	qc, err := New(doc, res, "/replays/game-1.hlt", replay.Source{}, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return qc
}

// fixture: 4x4 map of 100 with two players. Player 0 spawns ships 1 and 2,
// which wreck into each other; player 1 spawns ship 5, which becomes a dropoff.
func fixture() *replaytest.Builder {
	b := replaytest.New(4, 4, 2, 4, 100)
	b.Stats[0].Rank = 2
	b.Stats[1].Rank = 1
	b.Stats[0].LastTurnAlive = 2
	b.Stats[1].Deliveries = [][3]int{{1, 1, 200}, {3, 3, 900}}
	b.Turn(0).
		Spawn(0, 1, 1, 1).Spawn(0, 2, 3, 1).Spawn(1, 5, 0, 3).
		Ship(0, 1, 1, 1, 5, false).Ship(0, 2, 3, 1, 50, false).Ship(1, 5, 0, 3, 0, true).
		Move(0, 1, "e").Move(0, 2, "o").Build(1, 5).
		Bank(0, 0, 4000).Bank(1, 0, 4000)
	b.Turn(1).
		Ship(0, 1, 1, 1, 30, false).Ship(0, 2, 2, 1, 40, false).Ship(1, 5, 0, 3, 100, false).
		Move(0, 1, "e").
		Shipwreck(2, 1, 1, 2).
		Cell(3, 3, 70).
		Bank(0, 10, 4010).Bank(1, 0, 4000)
	b.Turn(2).
		Ship(1, 5, 3, 3, 100, false).
		Construct(1, 5, 3, 3).
		Bank(0, 10, 4010).Bank(1, 20, 4020)
	b.Turn(3).Bank(0, 10, 4010).Bank(1, 120, 120)
	return b
}

func TestNewRejectsMismatchedTables(t *testing.T) {
	if _, err := New(nil, nil, "", replay.Source{}, time.Time{}); err == nil {
		t.Fatalf("expected error for missing replay")
	}
	doc, _ := replay.Parse(context.Background(), fixture().JSON(t))
	if _, err := New(doc, &derive.Result{}, "", replay.Source{}, time.Time{}); err == nil {
		t.Fatalf("expected error for mismatched derived tables")
	}
}

func TestEntityLookups(t *testing.T) {
	qc := build(t, fixture())

	ship, ok := qc.EntityAt(1, 2, 1)
	if !ok || ship.ID != 2 || ship.Owner != 0 || ship.Energy != 40 {
		t.Fatalf("EntityAt: unexpected %+v (found=%v)", ship, ok)
	}
	if _, ok := qc.EntityAt(1, 3, 3); ok {
		t.Fatalf("EntityAt: expected empty cell")
	}
	ship, ok = qc.Entity(0, 5)
	if !ok || !ship.Inspired || ship.X != 0 || ship.Y != 3 {
		t.Fatalf("Entity: unexpected %+v", ship)
	}
	if _, ok := qc.Entity(2, 1); ok {
		t.Fatalf("Entity: wrecked ship should be absent")
	}
	if _, ok := qc.Entity(0, 404); ok {
		t.Fatalf("Entity: unknown id should be absent")
	}
	if turn, ok := qc.SpawnTurn(5); !ok || turn != 1 {
		t.Fatalf("SpawnTurn: expected 1, got %d (%v)", turn, ok)
	}
}

func TestFate(t *testing.T) {
	qc := build(t, fixture())
	cases := []struct {
		sid  int
		want Fate
	}{
		{sid: 1, want: Fate{Kind: FateCollision, Turn: 2}},
		{sid: 5, want: Fate{Kind: FateDropoff, Turn: 3}},
		{sid: 99, want: Fate{Kind: FateSurvived, Turn: 3}},
	}
	for _, tc := range cases {
		if got := qc.Fate(tc.sid); got != tc.want {
			t.Fatalf("Fate(%d): expected %+v, got %+v", tc.sid, tc.want, got)
		}
	}
}

func TestCollisionLookupsUsePreviousFrame(t *testing.T) {
	qc := build(t, fixture())

	if _, ok := qc.CollisionAt(1, 2, 1); ok {
		t.Fatalf("collision must not show before it happens")
	}
	event, ok := qc.CollisionAt(2, 2, 1)
	if !ok || len(event.Ships) != 2 {
		t.Fatalf("CollisionAt: expected wreck at turn 2, got %+v (%v)", event, ok)
	}
	if _, ok := qc.CollisionInvolving(2, 2); !ok {
		t.Fatalf("CollisionInvolving: expected ship 2")
	}
	if _, ok := qc.CollisionInvolving(3, 2); ok {
		t.Fatalf("CollisionInvolving: wreck is only reported on the following turn")
	}
}

func TestShipMove(t *testing.T) {
	qc := build(t, fixture())
	cases := []struct {
		turn, sid int
		want      string
	}{
		{turn: 0, sid: 1, want: "right (fails)"},
		{turn: 0, sid: 2, want: "still"},
		{turn: 0, sid: 5, want: "construct"},
		{turn: 1, sid: 1, want: "right"},
		{turn: 1, sid: 2, want: "(none)"},
		{turn: 1, sid: 404, want: "(none)"},
	}
	for _, tc := range cases {
		if got := qc.ShipMove(tc.turn, tc.sid); got != tc.want {
			t.Fatalf("ShipMove(%d,%d): expected %q, got %q", tc.turn, tc.sid, tc.want, got)
		}
	}
	if moves := qc.NextMoves(0); moves[1] != "e" || moves[2] != "o" || len(moves) != 2 {
		t.Fatalf("NextMoves: unexpected %v", moves)
	}
}

func TestCountsAndTotals(t *testing.T) {
	qc := build(t, fixture())

	if got := qc.ShipCount(1, 0); got != 2 {
		t.Fatalf("ShipCount: expected 2, got %d", got)
	}
	if got := qc.TransitCount(1, 0); got != 70 {
		t.Fatalf("TransitCount: expected 70, got %d", got)
	}
	if qc.DropoffCount(2, 1) != 0 || qc.DropoffCount(3, 1) != 1 {
		t.Fatalf("DropoffCount: unexpected %d/%d", qc.DropoffCount(2, 1), qc.DropoffCount(3, 1))
	}
	if len(qc.Dropoffs(3)) != 1 || len(qc.Dropoffs(2)) != 0 {
		t.Fatalf("Dropoffs: unexpected visibility")
	}
	totals := qc.Totals(0, 3)
	if totals.SelfDestructs != 2 || totals.Built != 2 || totals.Burned != 10 || totals.Scrapped != 60 {
		t.Fatalf("Totals: unexpected %+v", totals)
	}
	if qc.Totals(1, 3).Absorbed != 70 {
		t.Fatalf("Totals: expected absorbed 70, got %+v", qc.Totals(1, 3))
	}
}

func TestRemainingResource(t *testing.T) {
	qc := build(t, fixture())
	if qc.InitialTotal != 1600 {
		t.Fatalf("expected initial total 1600, got %d", qc.InitialTotal)
	}
	if got := qc.RemainingResource(2); got != 1570 {
		t.Fatalf("expected 1570 after override, got %d", got)
	}
	if got := qc.RemainingPercent(2); got != 98 {
		t.Fatalf("expected 98%%, got %d", got)
	}
	if qc.GroundAt(3, 3, 3) != 70 {
		t.Fatalf("GroundAt: expected 70")
	}
}

func TestSummariesOrderedByRank(t *testing.T) {
	qc := build(t, fixture())
	summaries := qc.Summaries(3)
	if len(summaries) != 2 || summaries[0].PlayerID != 1 {
		t.Fatalf("expected player 1 first, got %+v", summaries)
	}

	winner := summaries[0]
	if winner.Current != 4020 || winner.Deposited != 20 || winner.Gathered != 5020 || winner.Spent != 1000 {
		t.Fatalf("unexpected bank figures %+v", winner)
	}
	if winner.Dropoffs != 1 || winner.Ships != 0 || winner.Lost != 0 {
		t.Fatalf("unexpected fleet figures %+v", winner)
	}
	if winner.Assets != 4000+4020 {
		t.Fatalf("expected assets 8020, got %d", winner.Assets)
	}
	if winner.Discrepancy != 100+70-20 || !winner.HasDiscrepancy() {
		t.Fatalf("expected discrepancy 150, got %d", winner.Discrepancy)
	}

	loser := summaries[1]
	if loser.Alive || loser.HasDiscrepancy() {
		t.Fatalf("player 0 was eliminated at turn 2: %+v", loser)
	}
	if loser.Lost != 2 {
		t.Fatalf("expected two lost ships, got %d", loser.Lost)
	}

	opening := qc.Summaries(0)
	for _, s := range opening {
		if s.Current != 5000 {
			t.Fatalf("opening turn must report the initial bank, got %d", s.Current)
		}
	}
}

func TestExtraStats(t *testing.T) {
	qc := build(t, fixture())
	stats := qc.ExtraStats()
	if stats.EngineVersion != "1.1.6" || stats.Seed != "1234" || stats.Width != 4 {
		t.Fatalf("unexpected metadata %+v", stats)
	}
	winner := stats.Players[0]
	if winner.PlayerID != 1 || len(winner.Deliveries) != 2 {
		t.Fatalf("unexpected deliveries %+v", stats.Players)
	}
	if winner.Deliveries[0].Amount != 900 || winner.Deliveries[1].Amount != 200 || !winner.Deliveries[1].Factory {
		t.Fatalf("deliveries not sorted or factory unmarked: %+v", winner.Deliveries)
	}
}

func TestCellShade(t *testing.T) {
	cases := []struct {
		ground, aesthetic, want int
	}{
		{ground: 1000, aesthetic: AestheticFlat, want: 0},
		{ground: 400, aesthetic: AestheticLinear, want: 100},
		{ground: 2000, aesthetic: AestheticLinear, want: 255},
		{ground: 512, aesthetic: AestheticSqrt2048, want: 127},
		{ground: 256, aesthetic: AestheticSqrt1024, want: 127},
		{ground: 4096, aesthetic: AestheticSqrt1024, want: 255},
	}
	for _, tc := range cases {
		if got := CellShade(tc.ground, tc.aesthetic); got != tc.want {
			t.Fatalf("CellShade(%d,%d): expected %d, got %d", tc.ground, tc.aesthetic, tc.want, got)
		}
	}
}

func TestOffsetAdjustWraps(t *testing.T) {
	qc := build(t, fixture())
	x, y := qc.OffsetAdjust(3, 0, 2, -1, false)
	if x != 1 || y != 3 {
		t.Fatalf("expected (1,3), got (%d,%d)", x, y)
	}
	x, y = qc.OffsetAdjust(x, y, 2, -1, true)
	if x != 3 || y != 0 {
		t.Fatalf("undo should restore (3,0), got (%d,%d)", x, y)
	}
}

func TestTitleAndRank(t *testing.T) {
	qc := build(t, fixture())
	if qc.Title() != "4 x 4 : game-1.hlt" {
		t.Fatalf("unexpected title %q", qc.Title())
	}
	for rank, want := range map[int]string{0: "???", 1: "1st", 2: "2nd", 3: "3rd", 4: "4th", 11: "11th", 22: "22nd"} {
		if got := RankLabel(rank); got != want {
			t.Fatalf("RankLabel(%d): expected %q, got %q", rank, want, got)
		}
	}
}
