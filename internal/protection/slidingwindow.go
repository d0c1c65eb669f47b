package protection

import (
	"sync"
	"time"
)

// RateLimitInfo is the result of a limiter check for one identifier.
type RateLimitInfo struct {
	// Limited is true when the identifier is at or over its quota
	Limited bool `json:"limited"`
	// TotalRequests is the number of requests observed in the current window
	TotalRequests int `json:"total_requests"`
	// ResetAt is when the window's oldest counted request expires
	ResetAt time.Time `json:"reset_at"`
}

// LimitReachedFunc is invoked exactly once per identifier each time its limit is
// first exceeded within a window, for audit logging. It must not block.
type LimitReachedFunc func(identifier string, info RateLimitInfo)

// SlidingWindowConfig configures one sliding-window rate limiter instance.
// Immutable after construction.
type SlidingWindowConfig struct {
	// Window is the trailing interval requests are counted over
	Window time.Duration
	// MaxRequests is the maximum request count within Window
	MaxRequests int
	// OnLimitReached fires on the not-limited to limited transition, at most
	// once per window-exceed, never on every subsequent denied request
	OnLimitReached LimitReachedFunc
}

// SlidingWindowLimiter tracks request counts for identifiers against one
// configured quota and window. Checking and recording are split so callers can
// decide whether a request consumes budget; Allow combines both atomically for
// the request path, closing the check-then-record race for a single identifier.
//
// Buckets for distinct identifiers are independent: concurrent operations on
// different identifiers never contend on the same lock past the map lookup.
type SlidingWindowLimiter struct {
	cfg   SlidingWindowConfig
	clock Clock

	mu      sync.RWMutex
	buckets map[string]*windowBucket
}

// windowBucket holds the hit timestamps for one identifier. notified latches
// the limit-exceeded transition so OnLimitReached fires once per exceed.
type windowBucket struct {
	mu       sync.Mutex
	hits     []time.Time
	notified bool
}

// LimiterStats is a snapshot of one limiter's configuration and load.
type LimiterStats struct {
	Identifiers int           `json:"identifiers"`
	MaxRequests int           `json:"max_requests"`
	Window      time.Duration `json:"window"`
}

// NewSlidingWindowLimiter creates a limiter for the given quota. A nil clock
// defaults to the system clock.
func NewSlidingWindowLimiter(cfg SlidingWindowConfig, clock Clock) *SlidingWindowLimiter {
	if clock == nil {
		clock = SystemClock()
	}

	return &SlidingWindowLimiter{
		cfg:     cfg,
		clock:   clock,
		buckets: make(map[string]*windowBucket),
	}
}

// CheckLimit reports the identifier's standing without consuming budget.
func (l *SlidingWindowLimiter) CheckLimit(identifier string) RateLimitInfo {
	b := l.bucket(identifier)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.clock.Now()
	l.pruneLocked(b, now)
	return l.infoLocked(b, identifier, now)
}

// RecordRequest appends a timestamped hit for the identifier.
func (l *SlidingWindowLimiter) RecordRequest(identifier string) {
	b := l.bucket(identifier)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.clock.Now()
	l.pruneLocked(b, now)
	b.hits = append(b.hits, now)
}

// Allow performs an atomic check-then-record for the identifier: if the current
// window still has budget the hit is recorded and a not-limited result returned,
// otherwise nothing is recorded and a limited result is returned. Two concurrent
// Allow calls for one identifier serialize on its bucket, so the quota cannot be
// overshot by racing checks.
func (l *SlidingWindowLimiter) Allow(identifier string) RateLimitInfo {
	b := l.bucket(identifier)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.clock.Now()
	l.pruneLocked(b, now)

	info := l.infoLocked(b, identifier, now)
	if info.Limited {
		return info
	}

	b.hits = append(b.hits, now)
	b.notified = false
	info.TotalRequests = len(b.hits)
	if len(b.hits) == 1 {
		info.ResetAt = now.Add(l.cfg.Window)
	}
	return info
}

// Stats returns a snapshot of the limiter's configuration and tracked identifiers.
func (l *SlidingWindowLimiter) Stats() LimiterStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return LimiterStats{
		Identifiers: len(l.buckets),
		MaxRequests: l.cfg.MaxRequests,
		Window:      l.cfg.Window,
	}
}

// Prune drops buckets whose every hit has aged out of the window. Called by the
// owning service's janitor; safe to call concurrently with checks.
func (l *SlidingWindowLimiter) Prune() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, b := range l.buckets {
		b.mu.Lock()
		l.pruneLocked(b, now)
		empty := len(b.hits) == 0
		b.mu.Unlock()

		if empty {
			delete(l.buckets, id)
			removed++
		}
	}
	return removed
}

// Close clears all per-identifier state. The limiter must not be reused.
func (l *SlidingWindowLimiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*windowBucket)
}

// bucket returns the bucket for an identifier, creating it if needed.
func (l *SlidingWindowLimiter) bucket(identifier string) *windowBucket {
	// Try read lock first for performance
	l.mu.RLock()
	b, ok := l.buckets[identifier]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if b, ok := l.buckets[identifier]; ok {
		return b
	}

	b = &windowBucket{}
	l.buckets[identifier] = b
	return b
}

// pruneLocked discards hits older than now minus the window. Must be called
// with the bucket lock held.
func (l *SlidingWindowLimiter) pruneLocked(b *windowBucket, now time.Time) {
	cutoff := now.Add(-l.cfg.Window)

	idx := 0
	for idx < len(b.hits) && !b.hits[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		b.hits = append(b.hits[:0], b.hits[idx:]...)
	}
}

// infoLocked computes the post-prune standing and fires the limit-reached
// callback on the false-to-true transition. Must be called with the bucket
// lock held.
func (l *SlidingWindowLimiter) infoLocked(b *windowBucket, identifier string, now time.Time) RateLimitInfo {
	info := RateLimitInfo{
		TotalRequests: len(b.hits),
		ResetAt:       now,
	}
	if len(b.hits) > 0 {
		info.ResetAt = b.hits[0].Add(l.cfg.Window)
	}

	if len(b.hits) >= l.cfg.MaxRequests {
		info.Limited = true
		if !b.notified {
			b.notified = true
			if l.cfg.OnLimitReached != nil {
				l.cfg.OnLimitReached(identifier, info)
			}
		}
	} else {
		b.notified = false
	}

	return info
}
