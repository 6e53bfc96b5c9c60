// Package ratelimit limits requests per caller over a fixed time window.
//
// State lives in process memory. Several replicas behind a load balancer each
// keep their own counters, so a shared counter store is required to enforce a
// global quota.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultLimit is the number of requests allowed per window.
	DefaultLimit = 20
	// DefaultWindow is the length of one counting window.
	DefaultWindow = 60 * time.Second
)

// Limiter implements a per-key fixed window counter.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter allowing limit requests per period for every key.
func New(limit int, period time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
	l.setQuota(limit, period)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) setQuota(limit int, period time.Duration) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if period <= 0 {
		period = DefaultWindow
	}
	l.limit = limit
	l.period = period
}

// SetQuota changes the quota. Open windows keep their reset time.
func (l *Limiter) SetQuota(limit int, period time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setQuota(limit, period)
}

// Allow consumes one request for key and reports whether it is within quota.
func (l *Limiter) Allow(key string) bool {
	allowed, _ := l.Take(key)
	return allowed
}

// Take is Allow that also returns when the current window of key resets.
func (l *Limiter) Take(key string) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.period)}
		l.windows[key] = w
	}

	if w.count >= l.limit {
		return false, w.resetAt
	}
	w.count++
	return true, w.resetAt
}

// Remaining reports how many requests key may still make in its window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !l.now().Before(w.resetAt) {
		return l.limit
	}
	return l.limit - w.count
}

// Limit returns the current per-window quota.
func (l *Limiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// Cleanup removes windows that have already expired.
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked keys.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// RunJanitor calls Cleanup every interval until ctx is done.
func (l *Limiter) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultWindow
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Cleanup(); n > 0 {
				logrus.Debugf("Rate limiter dropped %d expired windows", n)
			}
		}
	}
}
