package viewer

import (
	"sync"
	"time"
)

// Clock exposes the current time for freshness decisions.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock for functional adapters.
func (c ClockFunc) Now() time.Time { return c() }

// systemClock relies on time.Now for production code paths.
type systemClock struct{}

// Now implements Clock by delegating to time.Now.
func (systemClock) Now() time.Time { return time.Now() }

// DropReason enumerates why an open request or its result was rejected.
type DropReason string

const (
	DropReasonNone       DropReason = ""
	DropReasonRecent     DropReason = "recent"
	DropReasonSuperseded DropReason = "superseded"
)

// String returns the textual representation of the drop reason.
func (r DropReason) String() string { return string(r) }

// Decision summarises whether a request or completion passed the gate.
type Decision struct {
	Accepted bool
	Reason   DropReason
	// Age is the time since the last successful load of the same file.
	Age time.Duration
}

// Ticket identifies one accepted open request.
type Ticket struct {
	Path     string
	Sequence uint64
	IssuedAt time.Time
}

// DropCounters aggregates per-reason drop counts.
type DropCounters struct {
	Recent     uint64 `json:"recent"`
	Superseded uint64 `json:"superseded"`
}

// Gate orders open requests. Requests for the file that loaded successfully
// within the window are refused outright, and a completion is only published
// when no newer request has been issued since.
type Gate struct {
	mu       sync.Mutex
	window   time.Duration
	clock    Clock
	latest   uint64
	lastPath string
	lastAt   time.Time
	drops    DropCounters
}

// GateOption customises gate construction.
type GateOption func(*Gate)

// WithGateClock overrides the clock used for freshness calculations.
func WithGateClock(clock Clock) GateOption {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// NewGate constructs a gate with the supplied dedupe window.
func NewGate(window time.Duration, opts ...GateOption) *Gate {
	//1.- Normalise negative windows to disable the duplicate check gracefully.
	if window < 0 {
		window = 0
	}
	gate := &Gate{window: window, clock: systemClock{}}
	for _, opt := range opts {
		if opt != nil {
			opt(gate)
		}
	}
	return gate
}

// Begin admits an open request for path and issues the ticket its result must
// present to Commit.
func (g *Gate) Begin(path string) (Ticket, Decision) {
	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()

	//1.- Refuse a repeat of the last successful load while it is still fresh.
	if g.window > 0 && path == g.lastPath && !g.lastAt.IsZero() {
		age := now.Sub(g.lastAt)
		if age < g.window {
			g.drops.Recent++
			return Ticket{}, Decision{Reason: DropReasonRecent, Age: age}
		}
	}

	//2.- Every admitted request supersedes the ones before it.
	g.latest++
	return Ticket{Path: path, Sequence: g.latest, IssuedAt: now}, Decision{Accepted: true}
}

// Commit accepts a finished load when its ticket is still the latest and
// records it as the last successful load.
func (g *Gate) Commit(ticket Ticket) Decision {
	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	if ticket.Sequence == 0 || ticket.Sequence != g.latest {
		g.drops.Superseded++
		return Decision{Reason: DropReasonSuperseded}
	}
	g.lastPath = ticket.Path
	g.lastAt = now
	return Decision{Accepted: true}
}

// Metrics returns a snapshot of the drop counters.
func (g *Gate) Metrics() DropCounters {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.drops
}
