package derive

// Counter is a dense cumulative table indexed [player][turn].
type Counter [][]int

// At returns the value for pid at turn, clamping turn into range. Unknown
// players read as zero.
func (c Counter) At(pid, turn int) int {
	if pid < 0 || pid >= len(c) || len(c[pid]) == 0 {
		return 0
	}
	row := c[pid]
	if turn < 0 {
		turn = 0
	}
	if turn >= len(row) {
		turn = len(row) - 1
	}
	return row[turn]
}

// Players returns the number of player rows.
func (c Counter) Players() int { return len(c) }

// Accumulator collects sparse per-player, per-turn increments and expands
// them into a cumulative Counter where every turn carries the previous turn's
// value forward plus its own delta.
type Accumulator struct {
	turns  int
	deltas [][]int
}

// NewAccumulator allocates an accumulator for players x turns.
func NewAccumulator(players, turns int) *Accumulator {
	if players < 0 {
		players = 0
	}
	if turns < 0 {
		turns = 0
	}
	deltas := make([][]int, players)
	for pid := range deltas {
		deltas[pid] = make([]int, turns)
	}
	return &Accumulator{turns: turns, deltas: deltas}
}

// Add records amount for pid starting at turn. Increments outside the game
// are dropped and reported as false.
func (a *Accumulator) Add(pid, turn, amount int) bool {
	if pid < 0 || pid >= len(a.deltas) || turn < 0 || turn >= a.turns {
		return false
	}
	a.deltas[pid][turn] += amount
	return true
}

// Counter returns the cumulative expansion. The accumulator must not be used afterwards.
func (a *Accumulator) Counter() Counter {
	out := Counter(a.deltas)
	for pid := range out {
		row := out[pid]
		for turn := 1; turn < len(row); turn++ {
			row[turn] += row[turn-1]
		}
	}
	a.deltas = nil
	return out
}
