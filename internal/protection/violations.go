package protection

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/apiguard/pkg/constants"
)

// SecurityViolation is an immutable record of a detected denial.
type SecurityViolation struct {
	ID        string                  `json:"id"`
	Type      constants.ViolationType `json:"type"`
	Severity  constants.Severity      `json:"severity"`
	Request   APIRequest              `json:"request"`
	Details   string                  `json:"details"`
	Timestamp time.Time               `json:"timestamp"`
}

// ViolationLog is the bounded, time-retained record of detected security
// events. Entries are appended, never mutated, and pruned by age (and by a hard
// entry cap, oldest first).
type ViolationLog struct {
	mu         sync.RWMutex
	entries    []SecurityViolation
	maxEntries int
	clock      Clock
}

// NewViolationLog creates an empty violation log.
func NewViolationLog(clock Clock) *ViolationLog {
	if clock == nil {
		clock = SystemClock()
	}

	return &ViolationLog{
		maxEntries: constants.MaxViolationEntries,
		clock:      clock,
	}
}

// Record appends a violation, assigning it an ID and timestamp, and returns it.
func (v *ViolationLog) Record(violationType constants.ViolationType, severity constants.Severity, req *APIRequest, details string) SecurityViolation {
	violation := SecurityViolation{
		ID:        uuid.NewString(),
		Type:      violationType,
		Severity:  severity,
		Details:   details,
		Timestamp: v.clock.Now(),
	}
	if req != nil {
		violation.Request = *req
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.entries = append(v.entries, violation)
	if len(v.entries) > v.maxEntries {
		v.entries = append(v.entries[:0], v.entries[len(v.entries)-v.maxEntries:]...)
	}

	return violation
}

// CountSince returns the number of violations recorded within the trailing
// interval.
func (v *ViolationLog) CountSince(window time.Duration) int {
	cutoff := v.clock.Now().Add(-window)

	v.mu.RLock()
	defer v.mu.RUnlock()

	count := 0
	for _, e := range v.entries {
		if e.Timestamp.After(cutoff) {
			count++
		}
	}
	return count
}

// Recent returns a copy of the violations recorded within the trailing
// interval, oldest first.
func (v *ViolationLog) Recent(window time.Duration) []SecurityViolation {
	cutoff := v.clock.Now().Add(-window)

	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]SecurityViolation, 0)
	for _, e := range v.entries {
		if e.Timestamp.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Prune drops violations older than the retention period and returns how many
// were dropped.
func (v *ViolationLog) Prune(retention time.Duration) int {
	cutoff := v.clock.Now().Add(-retention)

	v.mu.Lock()
	defer v.mu.Unlock()

	idx := 0
	for idx < len(v.entries) && !v.entries[idx].Timestamp.After(cutoff) {
		idx++
	}
	if idx > 0 {
		v.entries = append(v.entries[:0], v.entries[idx:]...)
	}
	return idx
}

// Clear empties the log.
func (v *ViolationLog) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = nil
}
