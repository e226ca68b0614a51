// Package ratelimit caps how many events a user may trigger per rolling
// window. Two limiters run per deployment, a short and a long window, and
// admission requires both.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

type Limiter struct {
	name     string
	max      int
	window   time.Duration
	cooldown time.Duration

	mu    sync.Mutex
	users map[int64]*userWindow
	ops   int

	now func() time.Time
}

type userWindow struct {
	events       []time.Time
	blockedUntil time.Time
}

type LimiterOptions struct {
	// Name labels the limiter in denials and logs, e.g. "short" or "long".
	Name     string
	Max      int
	Window   time.Duration
	Cooldown time.Duration
}

func NewLimiter(opts LimiterOptions) *Limiter {
	if opts.Max <= 0 {
		opts.Max = 60
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 5 * time.Minute
	}
	return &Limiter{
		name:     opts.Name,
		max:      opts.Max,
		window:   opts.Window,
		cooldown: opts.Cooldown,
		users:    make(map[int64]*userWindow),
		now:      time.Now,
	}
}

// Allow admits or denies one event. On denial the returned time is when the
// user unblocks. A user who trips the limit is put under a fixed cooldown
// that outlives the natural window eviction.
func (l *Limiter) Allow(userID int64) (bool, time.Time) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.ops++
	if l.ops%512 == 0 {
		l.pruneLocked(now)
	}

	w := l.users[userID]
	if w == nil {
		w = &userWindow{}
		l.users[userID] = w
	}

	// Evict aged timestamps before anything else so the queue never counts
	// events older than the window.
	cutoff := now.Add(-l.window)
	kept := w.events[:0]
	for _, ts := range w.events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.events = kept

	if now.Before(w.blockedUntil) {
		return false, w.blockedUntil
	}
	if len(w.events) >= l.max {
		w.blockedUntil = now.Add(l.cooldown)
		return false, w.blockedUntil
	}
	w.events = append(w.events, now)
	return true, time.Time{}
}

func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	for id, w := range l.users {
		active := false
		for _, ts := range w.events {
			if ts.After(cutoff) {
				active = true
				break
			}
		}
		if !active && now.After(w.blockedUntil) {
			delete(l.users, id)
		}
	}
}

// Denial reports which window turned a request away and until when.
type Denial struct {
	Window string
	Until  time.Time
}

// Admitter combines the short- and long-window limiters; a request is
// admitted only when every limiter allows it.
type Admitter struct {
	limiters []*Limiter
	logger   *slog.Logger
}

func NewAdmitter(logger *slog.Logger, limiters ...*Limiter) *Admitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admitter{limiters: limiters, logger: logger}
}

func (a *Admitter) Admit(userID int64) (bool, Denial) {
	for _, l := range a.limiters {
		ok, until := l.Allow(userID)
		if !ok {
			a.logger.Warn("rate_limit_denied", "user_id", userID, "window", l.name, "blocked_until", until)
			return false, Denial{Window: l.name, Until: until}
		}
	}
	return true, Denial{}
}
