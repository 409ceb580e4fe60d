package index

import (
	"sync"
	"time"
)

// SnapshotPolicy decides when a manager should persist: after Every new
// entries or once Interval has elapsed since the last snapshot, whichever
// comes first. A zero policy never fires.
type SnapshotPolicy struct {
	Every    int
	Interval time.Duration

	mu      sync.Mutex
	pending int
	last    time.Time
}

// NewSnapshotPolicy returns a policy with the given thresholds.
func NewSnapshotPolicy(every int, interval time.Duration) *SnapshotPolicy {
	return &SnapshotPolicy{Every: every, Interval: interval}
}

// Enabled reports whether either threshold is set.
func (p *SnapshotPolicy) Enabled() bool {
	return p != nil && (p.Every > 0 || p.Interval > 0)
}

// Observe counts one change and reports whether a snapshot is due.
func (p *SnapshotPolicy) Observe(now time.Time) bool {
	if !p.Enabled() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending++
	if p.last.IsZero() {
		p.last = now
	}
	if p.Every > 0 && p.pending >= p.Every {
		return true
	}
	return p.Interval > 0 && now.Sub(p.last) >= p.Interval
}

// Reset records a completed snapshot.
func (p *SnapshotPolicy) Reset(now time.Time) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.pending = 0
	p.last = now
	p.mu.Unlock()
}

// Pending returns the number of changes since the last snapshot.
func (p *SnapshotPolicy) Pending() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}
