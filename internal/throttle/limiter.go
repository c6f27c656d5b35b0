// Package throttle enforces a per-client cap on episode creation.
//
// Stepping an episode is cheap, but every started episode owns a ledger,
// three backends, and an event buffer until it finishes. The limiter
// bounds how many starts a single client gets inside a sliding window.
package throttle

import (
	"errors"
	"sync"
	"time"
)

// ErrStartLimitExceeded is returned when a client has started too many
// episodes inside the window.
var ErrStartLimitExceeded = errors.New("throttle: episode start limit exceeded")

// StartLimiter tracks episode starts per client over a sliding window.
type StartLimiter struct {
	// MaxStarts is the maximum number of starts per client per window.
	MaxStarts int

	// Window is the sliding window length.
	Window time.Duration

	mu     sync.Mutex
	starts map[string][]time.Time
	now    func() time.Time
}

// NewStartLimiter creates a limiter allowing maxStarts per client within
// the window.
func NewStartLimiter(maxStarts int, window time.Duration) *StartLimiter {
	if maxStarts < 1 {
		maxStarts = 1
	}
	return &StartLimiter{
		MaxStarts: maxStarts,
		Window:    window,
		starts:    make(map[string][]time.Time),
		now:       time.Now,
	}
}

// Allow records one episode start for the client, or returns
// ErrStartLimitExceeded when the window is already full. Starts older
// than the window are forgotten.
func (l *StartLimiter) Allow(clientID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.Window)

	recent := l.starts[clientID][:0]
	for _, ts := range l.starts[clientID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= l.MaxStarts {
		l.starts[clientID] = recent
		return ErrStartLimitExceeded
	}

	l.starts[clientID] = append(recent, now)
	return nil
}
