package query

import (
	"math"
	"sort"

	"fluorine/viewer/internal/derive"
	"fluorine/viewer/internal/replay"
)

// Ship is a normalized snapshot of one entity at one turn.
type Ship struct {
	ID       int
	Owner    int
	X        int
	Y        int
	Energy   int
	Inspired bool
}

func snapshot(sid, pid int, e replay.Entity) Ship {
	return Ship{ID: sid, Owner: pid, X: e.X, Y: e.Y, Energy: e.Energy, Inspired: e.IsInspired}
}

// EntityAt returns the entity standing on x, y at turn. Players and ids are
// scanned in ascending order.
func (c *Context) EntityAt(turn, x, y int) (Ship, bool) {
	if c == nil {
		return Ship{}, false
	}
	frame := c.Doc.Frame(turn)
	for pid := 0; pid < c.Doc.PlayerCount(); pid++ {
		owned := frame.Entities[pid]
		sids := make([]int, 0, len(owned))
		for sid := range owned {
			sids = append(sids, sid)
		}
		sort.Ints(sids)
		for _, sid := range sids {
			if e := owned[sid]; e.X == x && e.Y == y {
				return snapshot(sid, pid, e), true
			}
		}
	}
	return Ship{}, false
}

// Entity returns sid's state at turn when it exists then.
func (c *Context) Entity(turn, sid int) (Ship, bool) {
	pid, ok := c.Owner(sid)
	if !ok {
		return Ship{}, false
	}
	e, ok := c.Doc.Frame(turn).Entity(pid, sid)
	if !ok {
		return Ship{}, false
	}
	return snapshot(sid, pid, e), true
}

// SpawnTurn returns the first turn sid is visible, one after its spawn event.
func (c *Context) SpawnTurn(sid int) (int, bool) {
	if c == nil {
		return 0, false
	}
	for turn := range c.Doc.Frames {
		for _, event := range c.Doc.Frames[turn].Events {
			if event.Type == replay.EventSpawn && event.ID == sid {
				return turn + 1, true
			}
		}
	}
	return 0, false
}

// FateKind explains why an entity is absent.
type FateKind int

const (
	// FateSurvived means the entity lived to the final turn.
	FateSurvived FateKind = iota
	// FateCollision means the entity was destroyed in a shipwreck.
	FateCollision
	// FateDropoff means the entity was converted into a dropoff.
	FateDropoff
)

func (k FateKind) String() string {
	switch k {
	case FateCollision:
		return "collision"
	case FateDropoff:
		return "dropoff"
	default:
		return "survived"
	}
}

// Fate is the terminal event of an entity and the turn that shows it.
type Fate struct {
	Kind FateKind
	Turn int
}

// Fate looks for sid in the collision ledger, then the dropoff registry, and
// otherwise reports survival to the last turn.
func (c *Context) Fate(sid int) Fate {
	for _, collision := range c.Derived.Collisions {
		if collision.Involves(sid) {
			return Fate{Kind: FateCollision, Turn: c.ClampTurn(collision.Turn)}
		}
	}
	for _, d := range c.Derived.Dropoffs {
		if d.EntityID == sid {
			return Fate{Kind: FateDropoff, Turn: c.ClampTurn(d.Turn)}
		}
	}
	return Fate{Kind: FateSurvived, Turn: c.Len() - 1}
}

// CollisionAt returns the shipwreck on x, y recorded in the frame before turn.
func (c *Context) CollisionAt(turn, x, y int) (replay.Event, bool) {
	if c == nil {
		return replay.Event{}, false
	}
	for _, event := range c.Doc.Frame(turn - 1).Events {
		if event.Type == replay.EventShipwreck && event.Location.X == x && event.Location.Y == y {
			return event, true
		}
	}
	return replay.Event{}, false
}

// CollisionInvolving returns the shipwreck that destroyed sid in the frame before turn.
func (c *Context) CollisionInvolving(turn, sid int) (replay.Event, bool) {
	if c == nil {
		return replay.Event{}, false
	}
	for _, event := range c.Doc.Frame(turn - 1).Events {
		if event.Type != replay.EventShipwreck {
			continue
		}
		for _, id := range event.Ships {
			if id == sid {
				return event, true
			}
		}
	}
	return replay.Event{}, false
}

// DropoffOf returns the dropoff sid became, if it exists by turn.
func (c *Context) DropoffOf(turn, sid int) (derive.Dropoff, bool) {
	for _, d := range c.Derived.Dropoffs {
		if d.EntityID == sid && d.Turn <= turn {
			return d, true
		}
	}
	return derive.Dropoff{}, false
}

// Dropoffs returns the structures standing at turn.
func (c *Context) Dropoffs(turn int) []derive.Dropoff {
	var out []derive.Dropoff
	for _, d := range c.Derived.Dropoffs {
		if d.Turn <= turn {
			out = append(out, d)
		}
	}
	return out
}

var moveNames = map[string]string{"n": "up", "s": "down", "e": "right", "w": "left", "o": "still"}

// ShipMove describes the command sid receives at turn: a direction, with
// " (fails)" when the fuel cost exceeds its cargo, "construct", or "(none)".
func (c *Context) ShipMove(turn, sid int) string {
	pid, ok := c.Owner(sid)
	if !ok {
		return "(none)"
	}
	frame := c.Doc.Frame(turn)
	for _, move := range frame.Moves[pid] {
		id, ok := move.EntityID()
		if !ok || id != sid {
			continue
		}
		switch move.Type {
		case replay.MoveTypeConstruct:
			return "construct"
		case replay.MoveTypeMove:
		default:
			continue
		}
		name, known := moveNames[move.Direction]
		if !known {
			name = move.Direction
		}
		if move.Direction == replay.DirectionStill {
			return name
		}
		ship, ok := frame.Entity(pid, sid)
		if !ok {
			return name
		}
		if c.moveCost(turn, ship) > ship.Energy {
			return name + " (fails)"
		}
		return name
	}
	return "(none)"
}

func (c *Context) moveCost(turn int, ship replay.Entity) int {
	key := replay.ConstMoveCostRatio
	if ship.IsInspired {
		key = replay.ConstInspiredMoveCostRatio
	}
	ratio, ok := c.Doc.Constants.Number(key)
	if !ok || ratio <= 0 {
		return 0
	}
	return int(math.Floor(float64(c.GroundAt(turn, ship.X, ship.Y)) / ratio))
}

// NextMoves maps entity id to the direction commanded in the frame at turn.
func (c *Context) NextMoves(turn int) map[int]string {
	out := make(map[int]string)
	frame := c.Doc.Frame(turn)
	for pid := 0; pid < c.Doc.PlayerCount(); pid++ {
		for _, move := range frame.Moves[pid] {
			if id, ok := move.EntityID(); ok && move.Type == replay.MoveTypeMove {
				out[id] = move.Direction
			}
		}
	}
	return out
}

// ShipCount is the number of entities pid owns at turn.
func (c *Context) ShipCount(turn, pid int) int {
	return len(c.Doc.Frame(turn).Entities[pid])
}

// DropoffCount is the number of dropoffs pid has built by turn.
func (c *Context) DropoffCount(turn, pid int) int {
	count := 0
	for _, d := range c.Derived.Dropoffs {
		if d.PlayerID == pid && d.Turn <= turn {
			count++
		}
	}
	return count
}

// TransitCount is the cargo carried by pid's entities at turn.
func (c *Context) TransitCount(turn, pid int) int {
	total := 0
	for _, e := range c.Doc.Frame(turn).Entities[pid] {
		total += e.Energy
	}
	return total
}
