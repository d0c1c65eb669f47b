package protection

// TieredLimiter owns one sliding-window limiter per subscription tier and routes
// checks to the limiter matching the caller's tier. Unknown tiers bypass
// limiting rather than failing. The tier map is fixed at construction.
type TieredLimiter struct {
	limiters map[string]*SlidingWindowLimiter
	clock    Clock
}

// NewTieredLimiter builds one limiter per named tier.
func NewTieredLimiter(tiers map[string]SlidingWindowConfig, clock Clock) *TieredLimiter {
	if clock == nil {
		clock = SystemClock()
	}

	limiters := make(map[string]*SlidingWindowLimiter, len(tiers))
	for name, cfg := range tiers {
		limiters[name] = NewSlidingWindowLimiter(cfg, clock)
	}

	return &TieredLimiter{limiters: limiters, clock: clock}
}

// CheckLimit reports the identifier's standing in its tier without consuming
// budget. Unknown tiers report not limited.
func (t *TieredLimiter) CheckLimit(tier, identifier string) RateLimitInfo {
	l, ok := t.limiters[tier]
	if !ok {
		return RateLimitInfo{ResetAt: t.clock.Now()}
	}
	return l.CheckLimit(identifier)
}

// RecordRequest records a hit for the identifier in its tier. No-op for unknown
// tiers.
func (t *TieredLimiter) RecordRequest(tier, identifier string) {
	if l, ok := t.limiters[tier]; ok {
		l.RecordRequest(identifier)
	}
}

// Allow performs an atomic check-then-record in the tier's limiter. Unknown
// tiers are allowed through without recording.
func (t *TieredLimiter) Allow(tier, identifier string) RateLimitInfo {
	l, ok := t.limiters[tier]
	if !ok {
		return RateLimitInfo{ResetAt: t.clock.Now()}
	}
	return l.Allow(identifier)
}

// Stats returns a per-tier snapshot of limiter load.
func (t *TieredLimiter) Stats() map[string]LimiterStats {
	stats := make(map[string]LimiterStats, len(t.limiters))
	for name, l := range t.limiters {
		stats[name] = l.Stats()
	}
	return stats
}

// Prune drops aged-out buckets in every tier limiter.
func (t *TieredLimiter) Prune() int {
	removed := 0
	for _, l := range t.limiters {
		removed += l.Prune()
	}
	return removed
}

// Close disposes every owned limiter.
func (t *TieredLimiter) Close() {
	for _, l := range t.limiters {
		l.Close()
	}
}
