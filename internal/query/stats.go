package query

import (
	"math"
	"sort"
	"strconv"

	"fluorine/viewer/internal/replay"
)

// Totals are the cumulative counters for one player at one turn.
type Totals struct {
	SelfDestructs int
	Built         int
	Mined         int
	Inspired      int
	Burned        int
	Scrapped      int
	Absorbed      int
}

// Totals reads every derived counter for pid at turn.
func (c *Context) Totals(pid, turn int) Totals {
	if c == nil {
		return Totals{}
	}
	d := c.Derived
	return Totals{
		SelfDestructs: d.SelfDestructs.At(pid, turn),
		Built:         d.Built.At(pid, turn),
		Mined:         d.Mined.At(pid, turn),
		Inspired:      d.Inspired.At(pid, turn),
		Burned:        d.Burned.At(pid, turn),
		Scrapped:      d.Scrapped.At(pid, turn),
		Absorbed:      d.Absorbed.At(pid, turn),
	}
}

// PlayerSummary is the info panel block for one player.
type PlayerSummary struct {
	PlayerID int
	Name     string
	Rank     int
	Totals

	Ships     int
	Dropoffs  int
	Lost      int
	Carrying  int
	Initial   int
	Deposited int
	Gathered  int
	Spent     int
	// Current is the banked amount; it is meaningless when Alive is false.
	Current     int
	Alive       bool
	Assets      int
	Discrepancy int
}

// HasDiscrepancy reports an accounting mismatch worth showing.
func (s PlayerSummary) HasDiscrepancy() bool {
	return s.Alive && s.Discrepancy != 0
}

// Summaries builds the info panel blocks at turn, ordered by rank.
func (c *Context) Summaries(turn int) []PlayerSummary {
	if c == nil {
		return nil
	}
	turn = c.ClampTurn(turn)
	constants := c.Doc.Constants
	initial := constants.Int(replay.ConstInitialEnergy)
	previous := c.Doc.Frame(turn - 1)

	out := make([]PlayerSummary, 0, c.Doc.PlayerCount())
	for _, pid := range c.Players() {
		stats, _ := c.Doc.PlayerStatistics(pid)
		s := PlayerSummary{
			PlayerID:  pid,
			Name:      c.Doc.Players[pid].Name,
			Rank:      stats.Rank,
			Totals:    c.Totals(pid, turn),
			Ships:     c.ShipCount(turn, pid),
			Dropoffs:  c.DropoffCount(turn, pid),
			Carrying:  c.TransitCount(turn, pid),
			Initial:   initial,
			Deposited: previous.Deposited[pid],
			Alive:     stats.LastTurnAlive >= turn,
		}
		//1.- Banked energy comes from the previous frame except on the opening turn.
		s.Current = initial
		if turn > 0 {
			s.Current = previous.Energy[pid]
		}
		s.Gathered = s.Deposited + s.Initial
		s.Spent = s.Gathered - s.Current
		s.Lost = s.Built - (s.Ships + s.Dropoffs)
		s.Assets = s.Ships*constants.Int(replay.ConstNewEntityEnergyCost) +
			s.Dropoffs*constants.Int(replay.ConstDropoffCost) +
			s.Carrying + s.Current
		s.Discrepancy = s.Mined + s.Absorbed - s.Deposited - s.Carrying - s.Burned - s.Scrapped
		out = append(out, s)
	}
	return out
}

// RankLabel renders 1 as "1st", 2 as "2nd" and so on; unranked players read "???".
func RankLabel(rank int) string {
	if rank <= 0 {
		return "???"
	}
	suffix := "th"
	switch {
	case rank%100 >= 11 && rank%100 <= 13:
	case rank%10 == 1:
		suffix = "st"
	case rank%10 == 2:
		suffix = "nd"
	case rank%10 == 3:
		suffix = "rd"
	}
	return strconv.Itoa(rank) + suffix
}

// Delivery is one structure's end-of-game delivered total.
type Delivery struct {
	X       int
	Y       int
	Amount  int
	Factory bool
}

// PlayerDeliveries lists a player's deliveries, largest first.
type PlayerDeliveries struct {
	PlayerID   int
	Name       string
	Deliveries []Delivery
}

// ExtraStats is replay metadata shown beside the main panel.
type ExtraStats struct {
	EngineVersion string
	Seed          string
	Width         int
	Height        int
	Players       []PlayerDeliveries
}

// ExtraStats collects engine metadata and per-structure deliveries.
func (c *Context) ExtraStats() ExtraStats {
	if c == nil {
		return ExtraStats{}
	}
	out := ExtraStats{
		EngineVersion: c.Doc.EngineVersion(),
		Seed:          c.Doc.MapSeed(),
		Width:         c.Doc.Width,
		Height:        c.Doc.Height,
	}
	for _, pid := range c.Players() {
		player := c.Doc.Players[pid]
		stats, _ := c.Doc.PlayerStatistics(pid)
		entry := PlayerDeliveries{PlayerID: pid, Name: player.Name}
		for _, d := range stats.HalitePerDropoff {
			entry.Deliveries = append(entry.Deliveries, Delivery{
				X:       d.Location.X,
				Y:       d.Location.Y,
				Amount:  d.Amount,
				Factory: d.Location == player.FactoryLocation,
			})
		}
		sort.SliceStable(entry.Deliveries, func(i, j int) bool {
			return entry.Deliveries[i].Amount > entry.Deliveries[j].Amount
		})
		out.Players = append(out.Players, entry)
	}
	return out
}

// Grid aesthetics select how ground resource maps to a grey level.
const (
	AestheticFlat = iota
	AestheticLinear
	AestheticSqrt2048
	AestheticSqrt1024
)

// CellShade maps a ground resource amount to a grey level in [0, 255].
func CellShade(ground, aesthetic int) int {
	var v float64
	switch aesthetic {
	case AestheticLinear:
		v = float64(ground) / 4
	case AestheticSqrt2048:
		v = 255 * math.Sqrt(float64(ground)/2048)
	case AestheticSqrt1024:
		v = 255 * math.Sqrt(float64(ground)/1024)
	default:
		v = 0
	}
	shade := int(math.Floor(v))
	if shade > 255 {
		shade = 255
	}
	if shade < 0 {
		shade = 0
	}
	return shade
}
