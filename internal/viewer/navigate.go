package viewer

import (
	"fluorine/viewer/internal/logging"
	"fluorine/viewer/internal/query"
)

// SelectionKind distinguishes what the user has selected.
type SelectionKind int

const (
	SelectNone SelectionKind = iota
	SelectBox
	SelectShip
)

// Selection is either a grid cell or an entity. Turn is the turn the entity
// selection was made on; Owner is -1 when the entity's owner is unknown.
type Selection struct {
	Kind   SelectionKind
	X      int
	Y      int
	Turn   int
	ShipID int
	Owner  int
}

func boxSelection(x, y int) Selection {
	return Selection{Kind: SelectBox, X: x, Y: y}
}

func shipSelection(qc *query.Context, turn, sid int) Selection {
	owner, ok := qc.Owner(sid)
	if !ok {
		owner = -1
	}
	return Selection{Kind: SelectShip, Turn: turn, ShipID: sid, Owner: owner}
}

// Turn is the cursor's zero-based turn.
func (v *Viewer) Turn() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.turn
}

// DisplayTurn is the turn as shown to the user.
func (v *Viewer) DisplayTurn() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cfg.Display.TurnsStartAtOne {
		return v.turn + 1
	}
	return v.turn
}

// GoToTurn moves the cursor to n, clamped. Turns typed by the user follow the
// display numbering.
func (v *Viewer) GoToTurn(n int, fromUser bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopAutoplayLocked()
	qc := v.current.Load()
	if qc == nil {
		return
	}
	if fromUser && v.cfg.Display.TurnsStartAtOne {
		n--
	}
	v.turn = qc.ClampTurn(n)
}

// Forward moves the cursor by n turns; negative n moves back.
func (v *Viewer) Forward(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopAutoplayLocked()
	qc := v.current.Load()
	if qc == nil {
		return
	}
	v.turn = qc.ClampTurn(v.turn + n)
}

// First jumps to the opening turn.
func (v *Viewer) First() { v.GoToTurn(0, false) }

// Last jumps to the final turn.
func (v *Viewer) Last() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopAutoplayLocked()
	if qc := v.current.Load(); qc != nil {
		v.turn = qc.Len() - 1
	}
}

// ToggleAutoplay starts or stops playback and reports whether it is now running.
func (v *Viewer) ToggleAutoplay() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.autoplay != nil {
		v.stopAutoplayLocked()
		return false
	}
	if v.current.Load() == nil {
		return false
	}
	var loop *Loop
	loop = NewLoop(v.cfg.AutoplayInterval(), func() bool { return v.autoplayStep(loop) })
	v.autoplay = loop
	loop.Start(v.ctx)
	return true
}

// StopAutoplay halts playback if it is running.
func (v *Viewer) StopAutoplay() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopAutoplayLocked()
}

func (v *Viewer) stopAutoplayLocked() {
	if v.autoplay == nil {
		return
	}
	v.autoplay.Stop()
	v.autoplay = nil
}

// autoplayStep advances one turn on behalf of loop and ends playback on the
// final turn or when nothing is loaded.
func (v *Viewer) autoplayStep(loop *Loop) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.autoplay != loop {
		return false
	}
	qc := v.current.Load()
	if qc == nil {
		v.autoplay = nil
		return false
	}
	v.turn++
	if v.turn >= qc.Len()-1 {
		v.turn = qc.Len() - 1
		v.autoplay = nil
		v.logger.Debug("autoplay reached final turn", logging.Int("turn", v.turn))
		return false
	}
	return true
}

// Pan shifts the camera by dx columns and dy rows.
func (v *Viewer) Pan(dx, dy int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.offsetX += dx
	v.offsetY += dy
}

// Farside centres the camera on the opposite side of the torus.
func (v *Viewer) Farside() {
	v.mu.Lock()
	defer v.mu.Unlock()
	qc := v.current.Load()
	if qc == nil {
		return
	}
	v.offsetX = qc.Doc.Width / 2
	v.offsetY = qc.Doc.Height / 2
}

// ResetCamera removes any panning.
func (v *Viewer) ResetCamera() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.offsetX, v.offsetY = 0, 0
}

// ScreenToCell converts an on-screen cell into map coordinates.
func (v *Viewer) ScreenToCell(col, row int) (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current.Load().OffsetAdjust(col, row, v.offsetX, v.offsetY, true)
}

// CellToScreen converts map coordinates into an on-screen cell.
func (v *Viewer) CellToScreen(x, y int) (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current.Load().OffsetAdjust(x, y, v.offsetX, v.offsetY, false)
}

// Click selects whatever lies under an on-screen cell, clamping to the grid.
func (v *Viewer) Click(col, row int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	qc := v.current.Load()
	if qc == nil {
		return
	}
	col = clamp(col, 0, qc.Doc.Width-1)
	row = clamp(row, 0, qc.Doc.Height-1)
	x, y := qc.OffsetAdjust(col, row, v.offsetX, v.offsetY, true)
	v.selectAtLocked(qc, x, y)
}

// SelectAt selects the entity on x, y, or the cell itself when it is empty
// or its entity is already selected.
func (v *Viewer) SelectAt(x, y int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	qc := v.current.Load()
	if qc == nil {
		return
	}
	v.selectAtLocked(qc, x, y)
}

func (v *Viewer) selectAtLocked(qc *query.Context, x, y int) {
	if x < 0 || y < 0 || x >= qc.Doc.Width || y >= qc.Doc.Height {
		return
	}
	ship, ok := qc.EntityAt(v.turn, x, y)
	if !ok {
		v.selection = boxSelection(x, y)
		return
	}
	if v.selection.Kind == SelectShip && v.selection.ShipID == ship.ID {
		v.selection = boxSelection(x, y)
		return
	}
	v.selection = shipSelection(qc, v.turn, ship.ID)
}

// SelectByID selects entity sid. The cursor jumps forward to its first turn
// when it has not been built yet, and to its fate when it is already gone.
// An unknown id clears the selection.
func (v *Viewer) SelectByID(sid int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	qc := v.current.Load()
	if qc == nil {
		return
	}
	v.stopAutoplayLocked()
	spawn, ok := qc.SpawnTurn(sid)
	if !ok {
		v.selection = Selection{}
		return
	}
	v.selection = shipSelection(qc, spawn, sid)
	switch {
	case v.turn < spawn:
		v.turn = qc.ClampTurn(spawn)
	default:
		if _, alive := qc.Entity(v.turn, sid); !alive {
			v.turn = qc.Fate(sid).Turn
		}
	}
}

// ClearSelection drops the selection.
func (v *Viewer) ClearSelection() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selection = Selection{}
}

// Selection returns the current selection.
func (v *Viewer) Selection() Selection {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selection
}

// Fate jumps to the turn that explains the selected entity's disappearance.
// It reports false when no entity is selected.
func (v *Viewer) Fate() (query.Fate, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	qc := v.current.Load()
	if qc == nil || v.selection.Kind != SelectShip {
		return query.Fate{}, false
	}
	v.stopAutoplayLocked()
	fate := qc.Fate(v.selection.ShipID)
	v.turn = fate.Turn
	return fate, true
}

// SelectionXY resolves the selection to a cell: a box is its own cell, an
// entity is where it stands, where it was wrecked, or the dropoff it became.
func (v *Viewer) SelectionXY() (int, int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selectionXYLocked()
}

func (v *Viewer) selectionXYLocked() (int, int, bool) {
	qc := v.current.Load()
	switch v.selection.Kind {
	case SelectBox:
		return v.selection.X, v.selection.Y, true
	case SelectShip:
		if qc == nil {
			return 0, 0, false
		}
		sid := v.selection.ShipID
		if ship, ok := qc.Entity(v.turn, sid); ok {
			return ship.X, ship.Y, true
		}
		if event, ok := qc.CollisionInvolving(v.turn, sid); ok {
			return event.Location.X, event.Location.Y, true
		}
		if d, ok := qc.DropoffOf(v.turn, sid); ok {
			return d.X, d.Y, true
		}
	}
	return 0, 0, false
}

// NextCollision jumps to the next shipwreck and selects its cell.
func (v *Viewer) NextCollision() bool { return v.stepCollision(false) }

// PreviousCollision jumps to the previous shipwreck and selects its cell.
func (v *Viewer) PreviousCollision() bool { return v.stepCollision(true) }

func (v *Viewer) stepCollision(reverse bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	qc := v.current.Load()
	if qc == nil {
		return false
	}
	v.stopAutoplayLocked()
	ledger := qc.Derived.Collisions

	//1.- Standing on a wreck steps through the ledger from that entry, so
	// several wrecks on one turn are all visited.
	if v.selection.Kind == SelectBox {
		for i, c := range ledger {
			if c.X != v.selection.X || c.Y != v.selection.Y || c.Turn != v.turn {
				continue
			}
			next := i + 1
			if reverse {
				next = i - 1
			}
			if next < 0 || next >= len(ledger) {
				return false
			}
			v.turn = qc.ClampTurn(ledger[next].Turn)
			v.selection = boxSelection(ledger[next].X, ledger[next].Y)
			return true
		}
	}

	//2.- Otherwise pick the nearest wreck strictly before or after the cursor.
	if reverse {
		for i := len(ledger) - 1; i >= 0; i-- {
			if ledger[i].Turn < v.turn {
				v.turn = qc.ClampTurn(ledger[i].Turn)
				v.selection = boxSelection(ledger[i].X, ledger[i].Y)
				return true
			}
		}
		return false
	}
	for _, c := range ledger {
		if c.Turn > v.turn {
			v.turn = qc.ClampTurn(c.Turn)
			v.selection = boxSelection(c.X, c.Y)
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
