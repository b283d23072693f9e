package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"fluorine/viewer/internal/query"
	"fluorine/viewer/internal/replay"
	"fluorine/viewer/internal/viewer"
)

// writePanel renders the info panel as plain text.
func writePanel(w io.Writer, v *viewer.Viewer, turnsStartAtOne bool) {
	state := v.State()
	qc := state.Context
	fmt.Fprintln(w, qc.Title())
	if qc == nil {
		return
	}
	fudge := 0
	if turnsStartAtOne {
		fudge = 1
	}

	fmt.Fprintln(w, selectionLine(v, state))
	if state.Overlay {
		msg, ok := v.SelectionMessage()
		if !ok {
			msg = "<no f-log message>"
		}
		fmt.Fprintln(w, msg)
	}
	fmt.Fprintf(w, "Turn: %d / %d - free halite: %d (%d%%)\n",
		state.Turn+fudge, qc.Len()-1, qc.RemainingResource(state.Turn), qc.RemainingPercent(state.Turn))

	for _, s := range qc.Summaries(state.Turn) {
		current := strconv.Itoa(s.Current)
		if !s.Alive {
			current = "dead"
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s - %s\n", s.Name, query.RankLabel(s.Rank))
		fmt.Fprintf(w, "  Ships: %d / %d - lost: %d, dropoffs: %d\n", s.Ships, s.Built, s.Lost, s.Dropoffs)
		fmt.Fprintf(w, "  Self-destructs: %d. Inspired mine bonus: %d\n", s.SelfDestructs, s.Inspired)
		fmt.Fprintf(w, "  Initial: %d, mined: %d, absorbed: %d\n", s.Initial, s.Mined, s.Absorbed)
		fmt.Fprintf(w, "  Burned: %d, carrying %d, dropped: %d\n", s.Burned, s.Carrying, s.Scrapped)
		fmt.Fprintf(w, "  Gathered: %d - spent: %d\n", s.Gathered, s.Spent)
		fmt.Fprintf(w, "  Profit = %s (assets: %d)\n", current, s.Assets)
		if s.HasDiscrepancy() {
			fmt.Fprintf(w, "  Discrepancy: %d\n", s.Discrepancy)
		}
	}
}

// selectionLine describes the selected cell or entity.
func selectionLine(v *viewer.Viewer, state viewer.State) string {
	qc, sel, turn := state.Context, state.Selection, state.Turn
	if sel.Kind == viewer.SelectNone {
		return "no selection"
	}

	var s string
	x, y, ok := v.SelectionXY()
	if ok {
		ground := qc.GroundAt(turn, x, y)
		if sel.Kind == viewer.SelectBox {
			s = fmt.Sprintf("[%d, %d] - %d", x, y, ground)
		} else {
			s = fmt.Sprintf("%d, %d - %d", x, y, ground)
		}
	}

	if sel.Kind == viewer.SelectBox {
		if event, found := qc.CollisionAt(turn, x, y); found {
			return s + " - " + collisionString(event)
		}
		if ship, found := qc.EntityAt(turn, x, y); found {
			return s + " - " + shipString(qc, state, ship.ID, false)
		}
		return s
	}

	if event, found := qc.CollisionInvolving(turn, sel.ShipID); found {
		return s + " - " + collisionString(event)
	}
	if s != "" {
		s += " - "
	}
	return s + shipString(qc, state, sel.ShipID, true)
}

func shipString(qc *query.Context, state viewer.State, sid int, highlight bool) string {
	ship, ok := qc.Entity(state.Turn, sid)
	if !ok {
		cause := "no longer present"
		switch {
		case hasDropoff(qc, state.Turn, sid):
			cause = "dropoff"
		case state.Turn < state.Selection.Turn:
			cause = "not yet present"
		}
		return fmt.Sprintf("Ship %d (%s)", sid, cause)
	}
	mark := ""
	if ship.Inspired {
		mark = "+"
	}
	label := fmt.Sprintf("Ship %d%s", sid, mark)
	if highlight {
		label = "[" + label + "]"
	}
	return fmt.Sprintf("%s - %d - next is %s", label, ship.Energy, qc.ShipMove(state.Turn, sid))
}

func hasDropoff(qc *query.Context, turn, sid int) bool {
	_, ok := qc.DropoffOf(turn, sid)
	return ok
}

func collisionString(event replay.Event) string {
	ids := append([]int(nil), event.Ships...)
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return "Collision: " + strings.Join(parts, ", ")
}

// writeExtraStats prints engine metadata and per-structure deliveries.
func writeExtraStats(w io.Writer, qc *query.Context) {
	if qc == nil {
		return
	}
	stats := qc.ExtraStats()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Engine: %s, seed: %s, map: %d x %d\n", stats.EngineVersion, stats.Seed, stats.Width, stats.Height)
	for _, player := range stats.Players {
		fmt.Fprintln(w, player.Name)
		for _, d := range player.Deliveries {
			factory := ""
			if d.Factory {
				factory = " (factory)"
			}
			fmt.Fprintf(w, "  %d, %d - %d%s\n", d.X, d.Y, d.Amount, factory)
		}
	}
}
