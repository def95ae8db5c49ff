package syncer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Limits bounds how often one session may write to the balance store.
type Limits struct {
	SyncInterval time.Duration
	Window       time.Duration
	MaxPerWindow int
}

// DefaultLimits allows one sync a minute and at most 12 an hour.
var DefaultLimits = Limits{
	SyncInterval: time.Minute,
	Window:       time.Hour,
	MaxPerWindow: 12,
}

// Limiter is the per-session sync rate limit. The zero lastSyncTime lets the first call through.
type Limiter struct {
	mu     sync.Mutex
	limits Limits
	clock  clockwork.Clock

	lastSyncTime  time.Time
	syncCount     int
	lastSyncReset time.Time
}

// NewLimiter starts the first window at the clock's current time.
func NewLimiter(limits Limits, clock clockwork.Clock) *Limiter {
	return &Limiter{
		limits:        limits,
		clock:         clock,
		lastSyncReset: clock.Now(),
	}
}

// Allow records an attempt and reports whether it may contact the backend.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Sub(l.lastSyncReset) >= l.limits.Window {
		l.syncCount = 0
		l.lastSyncReset = now
	}
	if (!l.lastSyncTime.IsZero() && now.Sub(l.lastSyncTime) < l.limits.SyncInterval) ||
		l.syncCount >= l.limits.MaxPerWindow {
		return false
	}
	l.lastSyncTime = now
	l.syncCount++
	return true
}

// Count returns the number of allowed attempts in the current window.
func (l *Limiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.syncCount
}
