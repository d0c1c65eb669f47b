package protection

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/apiguard/pkg/constants"
)

// AbuseAction is one response to a triggered abuse pattern.
type AbuseAction uint8

const (
	// ActionLog records the violation
	ActionLog AbuseAction = 1 << iota
	// ActionBlock permanently blocks the offender and denies the request
	ActionBlock
	// ActionAlert pushes the violation to the alerting sink
	ActionAlert
)

// ActionSet is the set of actions attached to a pattern.
type ActionSet uint8

// Has reports whether the set contains the action.
func (s ActionSet) Has(a AbuseAction) bool { return uint8(s)&uint8(a) != 0 }

// PatternKind selects the evaluation rule for a catalogue entry.
type PatternKind int

const (
	// PatternRapidFire counts all requests in the window
	PatternRapidFire PatternKind = iota
	// PatternFailedAuth counts requests to auth/login endpoints
	PatternFailedAuth
	// PatternSuspiciousEndpoints counts requests touching sensitive endpoints
	PatternSuspiciousEndpoints
	// PatternDataScraping counts all requests and requires wide endpoint spread
	PatternDataScraping
)

// AbusePattern is one named behavioral rule: a threshold over a trailing window
// plus the actions taken when it triggers.
type AbusePattern struct {
	Kind        PatternKind
	Name        string
	Description string
	Threshold   int
	Window      time.Duration
	Actions     ActionSet
}

// DefaultAbusePatterns returns the fixed catalogue, evaluated in order for
// every request.
func DefaultAbusePatterns() []AbusePattern {
	return []AbusePattern{
		{
			Kind:        PatternRapidFire,
			Name:        "rapid_fire_requests",
			Description: "Rapid fire requests detected",
			Threshold:   constants.RapidFireThreshold,
			Window:      constants.RapidFireWindow,
			Actions:     ActionSet(ActionLog | ActionBlock),
		},
		{
			Kind:        PatternFailedAuth,
			Name:        "failed_auth_attempts",
			Description: "Excessive failed authentication attempts",
			Threshold:   constants.FailedAuthThreshold,
			Window:      constants.FailedAuthWindow,
			Actions:     ActionSet(ActionLog | ActionBlock),
		},
		{
			Kind:        PatternSuspiciousEndpoints,
			Name:        "suspicious_endpoints",
			Description: "Repeated probing of sensitive endpoints",
			Threshold:   constants.SuspiciousEndpointThreshold,
			Window:      constants.SuspiciousEndpointWindow,
			Actions:     ActionSet(ActionLog | ActionAlert),
		},
		{
			Kind:        PatternDataScraping,
			Name:        "data_scraping",
			Description: "Potential data scraping activity",
			Threshold:   constants.ScrapingThreshold,
			Window:      constants.ScrapingWindow,
			Actions:     ActionSet(ActionLog | ActionBlock),
		},
	}
}

// TriggeredPattern is one catalogue entry that matched a caller's history,
// with the count that tripped it.
type TriggeredPattern struct {
	Pattern AbusePattern
	Count   int
}

// AbuseVerdict is the engine's result for one request. Triggered carries every
// matched pattern for violation recording and alerting; Blocked and Reason are
// set by the first matched pattern whose actions include block. Alert-only
// patterns never deny by themselves.
type AbuseVerdict struct {
	Blocked   bool
	Reason    string
	Triggered []TriggeredPattern
}

// AbuseEngine evaluates the pattern catalogue against a caller's recent request
// history. It holds no per-caller state.
type AbuseEngine struct {
	patterns  []AbusePattern
	sensitive []string
	clock     Clock
}

// NewAbuseEngine creates an engine over the given catalogue. The sensitive
// endpoint substrings come from the security policy.
func NewAbuseEngine(patterns []AbusePattern, sensitiveEndpoints []string, clock Clock) *AbuseEngine {
	if clock == nil {
		clock = SystemClock()
	}

	return &AbuseEngine{
		patterns:  patterns,
		sensitive: sensitiveEndpoints,
		clock:     clock,
	}
}

// Evaluate runs every pattern, in catalogue order, against the identifier's
// history. Evaluation continues past the first blocking match so alert-only
// patterns still get their side effects recorded.
func (e *AbuseEngine) Evaluate(req *APIRequest, history []APIRequest) AbuseVerdict {
	verdict := AbuseVerdict{}
	now := e.clock.Now()

	for _, p := range e.patterns {
		window := filterAfter(history, now.Add(-p.Window))

		count, extra := e.measure(p, window)
		if count < p.Threshold || !extra {
			continue
		}

		verdict.Triggered = append(verdict.Triggered, TriggeredPattern{Pattern: p, Count: count})

		if p.Actions.Has(ActionBlock) && !verdict.Blocked {
			verdict.Blocked = true
			verdict.Reason = fmt.Sprintf("Abuse detected: %s", p.Description)
		}
	}

	return verdict
}

// measure computes the pattern's count over the windowed history plus any
// extra condition the pattern kind requires.
func (e *AbuseEngine) measure(p AbusePattern, window []APIRequest) (count int, extra bool) {
	switch p.Kind {
	case PatternRapidFire:
		return len(window), true

	case PatternFailedAuth:
		for _, r := range window {
			path := strings.ToLower(r.Endpoint)
			if strings.Contains(path, "/auth") || strings.Contains(path, "/login") {
				count++
			}
		}
		return count, true

	case PatternSuspiciousEndpoints:
		for _, r := range window {
			if e.isSensitive(r.Endpoint) {
				count++
			}
		}
		return count, true

	case PatternDataScraping:
		endpoints := make(map[string]struct{}, len(window))
		for _, r := range window {
			endpoints[r.Endpoint] = struct{}{}
		}
		return len(window), len(endpoints) > constants.ScrapingEndpointSpread

	default:
		return 0, false
	}
}

func (e *AbuseEngine) isSensitive(endpoint string) bool {
	for _, s := range e.sensitive {
		if s != "" && strings.Contains(endpoint, s) {
			return true
		}
	}
	return false
}
