package protection

import (
	"sync"
	"time"

	"github.com/turtacn/apiguard/pkg/constants"
)

// HistoryStore is the bounded record of recent requests. Requests are kept per
// resolved identifier for the abuse engine and, separately, per source IP for
// the DDoS detector. Each ring holds at most MaxHistoryPerIdentifier entries,
// oldest dropped first; a periodic prune drops entries past the retention
// window so neither index grows unbounded.
type HistoryStore struct {
	mu           sync.RWMutex
	byIdentifier map[string][]APIRequest
	byIP         map[string][]APIRequest
	maxPerKey    int
}

// NewHistoryStore creates an empty history store with the default per-key cap.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		byIdentifier: make(map[string][]APIRequest),
		byIP:         make(map[string][]APIRequest),
		maxPerKey:    constants.MaxHistoryPerIdentifier,
	}
}

// Record appends the request to its identifier's ring and, when the request
// carries a source IP, to that IP's ring.
func (h *HistoryStore) Record(req *APIRequest) {
	if req == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id := req.Identifier()
	h.byIdentifier[id] = appendBounded(h.byIdentifier[id], *req, h.maxPerKey)

	if req.IPAddress != "" {
		h.byIP[req.IPAddress] = appendBounded(h.byIP[req.IPAddress], *req, h.maxPerKey)
	}
}

// IdentifierWindow returns the identifier's requests with timestamps after the
// cutoff, oldest first.
func (h *HistoryStore) IdentifierWindow(identifier string, cutoff time.Time) []APIRequest {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return filterAfter(h.byIdentifier[identifier], cutoff)
}

// IPWindow returns the source IP's requests with timestamps after the cutoff,
// oldest first.
func (h *HistoryStore) IPWindow(ip string, cutoff time.Time) []APIRequest {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return filterAfter(h.byIP[ip], cutoff)
}

// ActiveIdentifiers returns the count of distinct identifiers with recorded
// history.
func (h *HistoryStore) ActiveIdentifiers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byIdentifier)
}

// Prune drops entries with timestamps at or before the cutoff and removes keys
// left empty. Returns the number of entries dropped.
func (h *HistoryStore) Prune(cutoff time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	dropped := pruneIndex(h.byIdentifier, cutoff)
	dropped += pruneIndex(h.byIP, cutoff)
	return dropped
}

// Clear empties both indexes.
func (h *HistoryStore) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byIdentifier = make(map[string][]APIRequest)
	h.byIP = make(map[string][]APIRequest)
}

func appendBounded(ring []APIRequest, req APIRequest, max int) []APIRequest {
	ring = append(ring, req)
	if len(ring) > max {
		ring = append(ring[:0], ring[len(ring)-max:]...)
	}
	return ring
}

func filterAfter(entries []APIRequest, cutoff time.Time) []APIRequest {
	// Entries are appended in arrival order but carry caller timestamps, so a
	// full scan is used rather than a binary search.
	out := make([]APIRequest, 0, len(entries))
	for _, e := range entries {
		if e.Timestamp.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

func pruneIndex(index map[string][]APIRequest, cutoff time.Time) int {
	dropped := 0
	for key, entries := range index {
		kept := filterAfter(entries, cutoff)
		dropped += len(entries) - len(kept)
		if len(kept) == 0 {
			delete(index, key)
			continue
		}
		index[key] = kept
	}
	return dropped
}
