// Package query answers lookups against one loaded replay and its derived
// tables. A Context never changes after construction, so every method is
// safe to call from any goroutine.
package query

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"fluorine/viewer/internal/derive"
	"fluorine/viewer/internal/replay"
)

// Context bundles a replay with its derived tables.
type Context struct {
	Doc      *replay.Document
	Derived  *derive.Result
	Path     string
	Source   replay.Source
	LoadedAt time.Time
	// InitialTotal is the resource on the map at turn zero.
	InitialTotal int
}

// New validates the pieces of a loaded replay and bundles them.
func New(doc *replay.Document, derived *derive.Result, path string, src replay.Source, loadedAt time.Time) (*Context, error) {
	if doc == nil || doc.Len() == 0 {
		return nil, errors.New("query: replay has no frames")
	}
	if derived == nil || len(derived.Production) != doc.Len() {
		return nil, errors.New("query: derived tables do not match replay")
	}
	return &Context{
		Doc:          doc,
		Derived:      derived,
		Path:         path,
		Source:       src,
		LoadedAt:     loadedAt,
		InitialTotal: derived.Production[0].Sum(),
	}, nil
}

// Len is the number of turns.
func (c *Context) Len() int {
	if c == nil {
		return 0
	}
	return c.Doc.Len()
}

// ClampTurn forces turn into [0, Len()-1].
func (c *Context) ClampTurn(turn int) int {
	if turn >= c.Len() {
		turn = c.Len() - 1
	}
	if turn < 0 {
		turn = 0
	}
	return turn
}

// Title renders "<width> x <height> : <file name>".
func (c *Context) Title() string {
	if c == nil {
		return "Fluorine"
	}
	return fmt.Sprintf("%d x %d : %s", c.Doc.Width, c.Doc.Height, filepath.Base(c.Path))
}

// Owner returns the player that spawned sid.
func (c *Context) Owner(sid int) (int, bool) {
	if c == nil {
		return 0, false
	}
	pid, ok := c.Derived.Owners[sid]
	return pid, ok
}

// Players returns player ids ordered by final rank, ties by id.
func (c *Context) Players() []int {
	pids := make([]int, c.Doc.PlayerCount())
	for pid := range pids {
		pids[pid] = pid
	}
	sort.SliceStable(pids, func(i, j int) bool {
		a, _ := c.Doc.PlayerStatistics(pids[i])
		b, _ := c.Doc.PlayerStatistics(pids[j])
		return a.Rank < b.Rank
	})
	return pids
}

// RemainingResource sums the ground resource at turn.
func (c *Context) RemainingResource(turn int) int {
	if c == nil {
		return 0
	}
	return c.Derived.ProductionAt(turn).Sum()
}

// RemainingPercent is RemainingResource as a floored percentage of the initial total.
func (c *Context) RemainingPercent(turn int) int {
	if c == nil || c.InitialTotal == 0 {
		return 0
	}
	return 100 * c.RemainingResource(turn) / c.InitialTotal
}

// GroundAt returns the resource under x, y at turn.
func (c *Context) GroundAt(turn, x, y int) int {
	if c == nil {
		return 0
	}
	return c.Derived.ProductionAt(turn).At(x, y)
}

// OffsetAdjust shifts x, y by the camera offset (or undoes the shift) and
// wraps the result onto the torus.
func (c *Context) OffsetAdjust(x, y, offsetX, offsetY int, undo bool) (int, int) {
	if c == nil || c.Doc.Width == 0 || c.Doc.Height == 0 {
		return x, y
	}
	if undo {
		x -= offsetX
		y -= offsetY
	} else {
		x += offsetX
		y += offsetY
	}
	return wrap(x, c.Doc.Width), wrap(y, c.Doc.Height)
}

func wrap(v, n int) int {
	return (v%n + n) % n
}
