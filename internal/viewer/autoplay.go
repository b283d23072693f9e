package viewer

import (
	"context"
	"sync"
	"time"
)

// StepFunc advances playback by one turn and reports whether to keep going.
type StepFunc func() bool

// Loop calls its step function at a fixed interval until the step declines,
// the context is cancelled, or Stop is invoked.
type Loop struct {
	interval time.Duration
	step     StepFunc
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewLoop configures a loop that ticks every interval.
func NewLoop(interval time.Duration, step StepFunc) *Loop {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	if step == nil {
		step = func() bool { return false }
	}
	return &Loop{
		interval: interval,
		step:     step,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins ticking in a background goroutine.
func (l *Loop) Start(ctx context.Context) {
	if l == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(l.interval)
	go func() {
		defer close(l.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			case <-ticker.C:
				//1.- One tick is one turn; a declined step ends playback.
				if !l.step() {
					return
				}
			}
		}
	}()
}

// Stop signals the loop to exit without waiting for it, so it is safe to call
// while holding locks the step function needs.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.once.Do(func() { close(l.stop) })
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	if l == nil {
		return nil
	}
	return l.done
}

// Interval exposes the configured tick period.
func (l *Loop) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}
