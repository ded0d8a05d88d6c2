package app

import (
	"sync"
	"time"
)

// DefaultGraceWindow is how long after session start own-action security events stay silent.
const DefaultGraceWindow = 15 * time.Second

// GraceWindow is a single deadline armed at session start. It is not renewed by events.
type GraceWindow struct {
	mu       sync.RWMutex
	deadline time.Time
	now      func() time.Time
}

// NewGraceWindow returns an unarmed window. now may be nil to use time.Now.
func NewGraceWindow(now func() time.Time) *GraceWindow {
	if now == nil {
		now = time.Now
	}
	return &GraceWindow{now: now}
}

// Arm sets the deadline to now+d, replacing any previous deadline.
func (g *GraceWindow) Arm(d time.Duration) {
	g.mu.Lock()
	g.deadline = g.now().Add(d)
	g.mu.Unlock()
}

// IsActive reports whether the deadline is still in the future.
func (g *GraceWindow) IsActive() bool {
	g.mu.RLock()
	deadline := g.deadline
	g.mu.RUnlock()
	return g.now().Before(deadline)
}

// Deadline returns the armed deadline (zero if never armed).
func (g *GraceWindow) Deadline() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.deadline
}
