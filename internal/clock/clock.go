// Package clock provides the one-second tick sources that drive round schedulers.
//
// Production code uses a Ticker backed by time.Ticker. Tests use Manual, which only
// ticks when Fire is called, so scheduler behavior can be asserted without waiting.
package clock

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is the wall-clock period between scheduler ticks.
const DefaultInterval = time.Second

// Source delivers ticks on a channel until stopped.
type Source interface {
	C() <-chan time.Time
	Stop()
}

// Ticker is a Source backed by time.Ticker.
type Ticker struct {
	t *time.Ticker
}

// NewTicker creates a wall-clock source. A non-positive interval falls back to
// DefaultInterval.
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{t: time.NewTicker(interval)}
}

// C returns the tick channel.
func (t *Ticker) C() <-chan time.Time { return t.t.C }

// Stop stops the underlying ticker.
func (t *Ticker) Stop() { t.t.Stop() }

// Manual is a Source that ticks only when Fire is called.
type Manual struct {
	ch      chan time.Time
	once    sync.Once
	stopped chan struct{}
	now     time.Time
	mu      sync.Mutex
}

// NewManual creates a manual source starting at the given instant.
func NewManual(start time.Time) *Manual {
	return &Manual{
		ch:      make(chan time.Time),
		stopped: make(chan struct{}),
		now:     start,
	}
}

// C returns the tick channel.
func (m *Manual) C() <-chan time.Time { return m.ch }

// Stop marks the source stopped. Pending and later Fire calls return false.
func (m *Manual) Stop() {
	m.once.Do(func() { close(m.stopped) })
}

// Fire advances the manual clock by one second and blocks until the tick has been
// received by a consumer or the source is stopped. It reports whether the tick was
// delivered.
func (m *Manual) Fire() bool {
	m.mu.Lock()
	m.now = m.now.Add(DefaultInterval)
	now := m.now
	m.mu.Unlock()

	select {
	case m.ch <- now:
		return true
	case <-m.stopped:
		return false
	}
}

// Drive calls fn once per tick from src until ctx is cancelled. The source is stopped
// before Drive returns. The returned error is ctx.Err().
func Drive(ctx context.Context, src Source, fn func(time.Time)) error {
	defer src.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-src.C():
			fn(now)
		}
	}
}
