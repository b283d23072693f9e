package viewer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestGateRefusesFreshDuplicate(t *testing.T) {
	clock := newFakeClock()
	gate := NewGate(5*time.Second, WithGateClock(clock))

	ticket, decision := gate.Begin("a.hlt")
	if !decision.Accepted || ticket.Sequence != 1 {
		t.Fatalf("expected first request accepted, got %+v %+v", ticket, decision)
	}
	if _, decision := gate.Begin("a.hlt"); !decision.Accepted {
		t.Fatalf("expected repeat before any success to be accepted")
	}
	_, _ = gate.Begin("a.hlt")
	latest, _ := gate.Begin("a.hlt")
	if decision := gate.Commit(latest); !decision.Accepted {
		t.Fatalf("expected latest commit accepted, got %+v", decision)
	}

	clock.Advance(3 * time.Second)
	_, decision = gate.Begin("a.hlt")
	if decision.Accepted || decision.Reason != DropReasonRecent || decision.Age != 3*time.Second {
		t.Fatalf("expected fresh duplicate refused, got %+v", decision)
	}
	if _, decision := gate.Begin("b.hlt"); !decision.Accepted {
		t.Fatalf("expected a different file accepted")
	}

	clock.Advance(2 * time.Second)
	if _, decision := gate.Begin("a.hlt"); !decision.Accepted {
		t.Fatalf("expected duplicate accepted once the window elapsed")
	}
}

func TestGateDropsSupersededCompletions(t *testing.T) {
	gate := NewGate(time.Second)
	older, _ := gate.Begin("a.hlt")
	newer, _ := gate.Begin("b.hlt")

	if decision := gate.Commit(older); decision.Accepted || decision.Reason != DropReasonSuperseded {
		t.Fatalf("expected older completion dropped, got %+v", decision)
	}
	if decision := gate.Commit(newer); !decision.Accepted {
		t.Fatalf("expected newer completion accepted, got %+v", decision)
	}
	if decision := gate.Commit(Ticket{}); decision.Accepted {
		t.Fatalf("expected zero ticket rejected")
	}
	if metrics := gate.Metrics(); metrics.Superseded != 2 || metrics.Recent != 0 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
}

func TestGateWithoutWindowNeverRefuses(t *testing.T) {
	gate := NewGate(-time.Second)
	ticket, _ := gate.Begin("a.hlt")
	gate.Commit(ticket)
	if _, decision := gate.Begin("a.hlt"); !decision.Accepted {
		t.Fatalf("expected disabled window to accept duplicates")
	}
}

func TestLoopStopsWhenStepDeclines(t *testing.T) {
	var calls atomic.Int32
	loop := NewLoop(time.Millisecond, func() bool { return calls.Add(1) < 3 })
	loop.Start(context.Background())
	waitLoop(t, loop)
	if calls.Load() != 3 {
		t.Fatalf("expected three steps, got %d", calls.Load())
	}
}

func TestLoopStopAndCancel(t *testing.T) {
	loop := NewLoop(time.Hour, func() bool { return true })
	loop.Start(context.Background())
	loop.Stop()
	loop.Stop()
	waitLoop(t, loop)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := NewLoop(0, nil)
	if cancelled.Interval() != 50*time.Millisecond {
		t.Fatalf("expected default interval, got %s", cancelled.Interval())
	}
	cancelled.Start(ctx)
	cancel()
	waitLoop(t, cancelled)
}
