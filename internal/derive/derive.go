// Package derive computes the per-turn history and cumulative per-player
// statistics of a loaded replay in one fixed, ordered pass.
package derive

import (
	"context"
	"errors"
	"math"
	"time"

	"fluorine/viewer/internal/logging"
	"fluorine/viewer/internal/replay"
)

// Dropoff is a structure built during the game. Turn is the first turn on
// which the structure exists, one after the frame carrying its construct event.
type Dropoff struct {
	X        int
	Y        int
	PlayerID int
	EntityID int
	Turn     int
	// Absorbed is the ground resource under the structure when it was built.
	Absorbed int
}

// Collision is one shipwreck. Turn is the first turn after the wreck and
// EventTurn the frame that recorded it.
type Collision struct {
	Turn         int
	EventTurn    int
	X            int
	Y            int
	EntityIDs    []int
	Losses       []int
	EnergyLosses []int
}

// Involves reports whether sid died in this collision.
func (c Collision) Involves(sid int) bool {
	for _, id := range c.EntityIDs {
		if id == sid {
			return true
		}
	}
	return false
}

// Result holds every derived table. It is built once and never mutated.
type Result struct {
	// Production is the ground resource grid per turn, each in [x][y] order.
	Production []replay.Grid
	Dropoffs   []Dropoff
	// Owners maps entity id to the player that spawned it.
	Owners     map[int]int
	Collisions []Collision

	SelfDestructs Counter
	Built         Counter
	Mined         Counter
	Inspired      Counter
	Burned        Counter
	Scrapped      Counter
	Absorbed      Counter

	// Gaps counts missing cross-references that were treated as no-ops.
	Gaps int
}

// ProductionAt returns the grid for turn, clamped into range.
func (r *Result) ProductionAt(turn int) replay.Grid {
	if r == nil || len(r.Production) == 0 {
		return nil
	}
	if turn < 0 {
		turn = 0
	}
	if turn >= len(r.Production) {
		turn = len(r.Production) - 1
	}
	return r.Production[turn]
}

// ErrNoDocument is returned when Run is called without a replay.
var ErrNoDocument = errors.New("derive: no replay document")

type stage struct {
	name string
	run  func(*pass)
}

// pipeline lists the stages in dependency order; later stages read the
// tables earlier stages produced.
var pipeline = []stage{
	{name: "production", run: (*pass).production},
	{name: "dropoffs", run: (*pass).dropoffs},
	{name: "owners", run: (*pass).owners},
	{name: "collisions", run: (*pass).collisions},
	{name: "self_destructs", run: (*pass).selfDestructs},
	{name: "built", run: (*pass).built},
	{name: "mined", run: (*pass).mined},
	{name: "burned", run: (*pass).burned},
	{name: "scrapped", run: (*pass).scrapped},
	{name: "absorbed", run: (*pass).absorbed},
}

// pass carries the state shared by the stages of one Run.
type pass struct {
	doc     *replay.Document
	res     *Result
	log     *logging.Logger
	stage   string
	players int
	turns   int

	moveRatio     float64
	inspiredRatio float64
	extractRatio  float64
}

// Run executes every stage synchronously. It only fails for a nil document;
// missing cross-references are tolerated and counted in Result.Gaps.
func Run(ctx context.Context, doc *replay.Document) (*Result, error) {
	if doc == nil {
		return nil, ErrNoDocument
	}
	logger := logging.LoggerFromContext(ctx)
	started := time.Now()

	p := &pass{
		doc:           doc,
		res:           &Result{Owners: make(map[int]int)},
		log:           logger,
		players:       doc.PlayerCount(),
		turns:         doc.Len(),
		moveRatio:     ratio(doc.Constants, replay.ConstMoveCostRatio),
		inspiredRatio: ratio(doc.Constants, replay.ConstInspiredMoveCostRatio),
		extractRatio:  ratio(doc.Constants, replay.ConstExtractRatio),
	}
	for _, s := range pipeline {
		p.stage = s.name
		s.run(p)
	}

	logger.Info("replay derived",
		logging.Int("turns", p.turns),
		logging.Int("players", p.players),
		logging.Int("collisions", len(p.res.Collisions)),
		logging.Int("dropoffs", len(p.res.Dropoffs)),
		logging.Int("gaps", p.res.Gaps),
		logging.Duration("elapsed", time.Since(started)),
	)
	return p.res, nil
}

func ratio(c replay.Constants, key string) float64 {
	value, ok := c.Number(key)
	if !ok || value <= 0 {
		return 0
	}
	return value
}

// gap records a missing cross-reference and continues.
func (p *pass) gap(reason string, fields ...logging.Field) {
	p.res.Gaps++
	fields = append(fields, logging.String("stage", p.stage))
	p.log.Debug(reason, fields...)
}

// moveCost is the fuel a move from a cell holding ground resource costs.
func (p *pass) moveCost(ground int, inspired bool) int {
	r := p.moveRatio
	if inspired {
		r = p.inspiredRatio
	}
	if r == 0 {
		p.gap("move cost ratio missing", logging.Bool("inspired", inspired))
		return 0
	}
	return int(math.Floor(float64(ground) / r))
}

func (p *pass) production() {
	if p.turns == 0 {
		return
	}
	history := make([]replay.Grid, p.turns)
	history[0] = p.doc.Initial.Clone()
	for turn := 1; turn < p.turns; turn++ {
		grid := history[turn-1].Clone()
		//1.- Cells listed in the prior frame replace the carried value.
		for _, cell := range p.doc.Frames[turn-1].Cells {
			if !grid.Set(cell.X, cell.Y, cell.Production) {
				p.gap("cell outside map", logging.Int("turn", turn-1), logging.Int("x", cell.X), logging.Int("y", cell.Y))
			}
		}
		history[turn] = grid
	}
	p.res.Production = history
}

func (p *pass) dropoffs() {
	for n := 0; n < p.turns; n++ {
		for _, event := range p.doc.Frames[n].Events {
			if event.Type != replay.EventConstruct {
				continue
			}
			p.res.Dropoffs = append(p.res.Dropoffs, Dropoff{
				X:        event.Location.X,
				Y:        event.Location.Y,
				PlayerID: event.OwnerID,
				EntityID: event.ID,
				Turn:     n + 1,
				Absorbed: p.res.Production[n].At(event.Location.X, event.Location.Y),
			})
		}
	}
}

func (p *pass) owners() {
	for n := 0; n < p.turns; n++ {
		for _, event := range p.doc.Frames[n].Events {
			if event.Type == replay.EventSpawn {
				p.res.Owners[event.ID] = event.OwnerID
			}
		}
	}
}

func (p *pass) collisions() {
	for n := 0; n < p.turns; n++ {
		frame := &p.doc.Frames[n]
		for _, event := range frame.Events {
			if event.Type != replay.EventShipwreck {
				continue
			}
			c := Collision{
				Turn:         n + 1,
				EventTurn:    n,
				X:            event.Location.X,
				Y:            event.Location.Y,
				EntityIDs:    append([]int(nil), event.Ships...),
				Losses:       make([]int, p.players),
				EnergyLosses: make([]int, p.players),
			}

			//1.- Attribute each wreck's cargo, net of fuel burned moving onto the cell.
			pooled := 0
			for _, sid := range event.Ships {
				pid, ok := p.res.Owners[sid]
				if !ok || pid < 0 || pid >= p.players {
					p.gap("wrecked entity has no owner", logging.Int("turn", n), logging.Int("sid", sid))
					continue
				}
				c.Losses[pid]++

				final, ok := frame.Entity(pid, sid)
				if !ok {
					p.gap("wrecked entity has no prior state", logging.Int("turn", n), logging.Int("sid", sid))
					continue
				}
				burned := 0
				if final.X != c.X || final.Y != c.Y {
					burned = p.moveCost(p.res.Production[n].At(final.X, final.Y), final.IsInspired)
				}
				c.EnergyLosses[pid] += final.Energy - burned
				pooled += final.Energy - burned
			}

			//2.- Cargo dropped on a structure returns to its owner.
			for pid, player := range p.doc.Players {
				if player.FactoryLocation.X == c.X && player.FactoryLocation.Y == c.Y {
					c.EnergyLosses[pid] -= pooled
				}
			}
			for _, d := range p.res.Dropoffs {
				if d.Turn-1 <= n && d.X == c.X && d.Y == c.Y && d.PlayerID >= 0 && d.PlayerID < p.players {
					c.EnergyLosses[d.PlayerID] -= pooled
				}
			}
			p.res.Collisions = append(p.res.Collisions, c)
		}
	}
}

func (p *pass) selfDestructs() {
	acc := NewAccumulator(p.players, p.turns)
	for _, c := range p.res.Collisions {
		for pid, losses := range c.Losses {
			if losses > 1 {
				acc.Add(pid, c.Turn, losses)
			}
		}
	}
	p.res.SelfDestructs = acc.Counter()
}

func (p *pass) built() {
	acc := NewAccumulator(p.players, p.turns)
	for n := 0; n < p.turns; n++ {
		for _, event := range p.doc.Frames[n].Events {
			if event.Type == replay.EventSpawn {
				acc.Add(event.OwnerID, n+1, 1)
			}
		}
	}
	p.res.Built = acc.Counter()
}

func (p *pass) mined() {
	mined := NewAccumulator(p.players, p.turns)
	inspired := NewAccumulator(p.players, p.turns)
	for turn := 1; turn < p.turns; turn++ {
		now := &p.doc.Frames[turn]
		prev := &p.doc.Frames[turn-1]
		for sid, pid := range p.res.Owners {
			current, ok := now.Entity(pid, sid)
			if !ok {
				continue
			}
			before, ok := prev.Entity(pid, sid)
			if !ok {
				continue
			}
			gain := current.Energy - before.Energy
			if gain <= 0 {
				continue
			}
			mined.Add(pid, turn, gain)

			//1.- Inspired ships earn a bonus above the plain extraction yield.
			if !before.IsInspired {
				continue
			}
			if p.extractRatio == 0 {
				p.gap("extract ratio missing", logging.Int("turn", turn))
				continue
			}
			ground := p.res.Production[turn-1].At(before.X, before.Y)
			expected := int(math.Ceil(float64(ground) / p.extractRatio))
			if gain > expected {
				inspired.Add(pid, turn, gain-expected)
			}
		}
	}
	p.res.Mined = mined.Counter()
	p.res.Inspired = inspired.Counter()
}

func (p *pass) burned() {
	acc := NewAccumulator(p.players, p.turns)
	for turn := 1; turn < p.turns; turn++ {
		frame := &p.doc.Frames[turn-1]
		for pid := 0; pid < p.players; pid++ {
			moves, ok := frame.Moves[pid]
			if !ok {
				continue
			}
			ships, ok := frame.Entities[pid]
			if !ok {
				continue
			}
			for _, move := range moves {
				if move.Type != replay.MoveTypeMove || !replay.IsDirectional(move.Direction) {
					continue
				}
				sid, ok := move.EntityID()
				if !ok {
					p.gap("move without entity id", logging.Int("turn", turn-1), logging.Int("pid", pid))
					continue
				}
				ship, ok := ships[sid]
				if !ok {
					p.gap("moved entity missing from frame", logging.Int("turn", turn-1), logging.Int("sid", sid))
					continue
				}
				//1.- Unaffordable moves fail and cost nothing.
				cost := p.moveCost(p.res.Production[turn-1].At(ship.X, ship.Y), ship.IsInspired)
				if cost <= ship.Energy {
					acc.Add(pid, turn, cost)
				}
			}
		}
	}
	p.res.Burned = acc.Counter()
}

func (p *pass) scrapped() {
	acc := NewAccumulator(p.players, p.turns)
	for _, c := range p.res.Collisions {
		for pid, lost := range c.EnergyLosses {
			if lost != 0 {
				acc.Add(pid, c.Turn, lost)
			}
		}
	}
	p.res.Scrapped = acc.Counter()
}

func (p *pass) absorbed() {
	acc := NewAccumulator(p.players, p.turns)
	for _, d := range p.res.Dropoffs {
		if !acc.Add(d.PlayerID, d.Turn, d.Absorbed) && d.Turn < p.turns {
			p.gap("dropoff owner unknown", logging.Int("pid", d.PlayerID), logging.Int("sid", d.EntityID))
		}
	}
	p.res.Absorbed = acc.Counter()
}
