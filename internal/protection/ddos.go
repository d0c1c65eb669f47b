package protection

import (
	"fmt"

	"github.com/turtacn/apiguard/pkg/constants"
)

// DDoSVerdict is a denial produced by the DDoS detector. A nil verdict means
// the request passes this stage.
type DDoSVerdict struct {
	// Reason is the denial reason returned to the caller
	Reason string
	// Severity of the recorded violation
	Severity constants.Severity
	// Details is the human-readable violation description
	Details string
	// AutoBlockIP requests an automatic, TTL-bound block of the source IP
	AutoBlockIP bool
}

// DDoSDetector evaluates volumetric and distribution anomalies per source IP
// over a trailing 60-second window. It holds no state of its own; callers feed
// it the IP's recent history.
type DDoSDetector struct {
	rpsLimit      float64
	floodRequests int
	floodEndpoints int
	floodAgents   int
}

// NewDDoSDetector creates a detector with the default thresholds.
func NewDDoSDetector() *DDoSDetector {
	return &DDoSDetector{
		rpsLimit:       constants.DDoSRequestsPerSecondLimit,
		floodRequests:  constants.DDoSFloodRequestCount,
		floodEndpoints: constants.DDoSFloodEndpointCount,
		floodAgents:    constants.DDoSFloodAgentCount,
	}
}

// Evaluate applies the heuristics to one request given its source IP's history
// within the detection window. Requests without an IP address cannot be
// evaluated and pass through.
func (d *DDoSDetector) Evaluate(req *APIRequest, ipHistory []APIRequest) *DDoSVerdict {
	if req == nil || req.IPAddress == "" {
		return nil
	}

	count := len(ipHistory)
	requestsPerSecond := float64(count) / constants.DDoSWindow.Seconds()

	if requestsPerSecond > d.rpsLimit {
		return &DDoSVerdict{
			Reason:   "DDoS protection triggered",
			Severity: constants.SeverityCritical,
			Details: fmt.Sprintf("high request rate from %s: %.2f req/s over the last %s",
				req.IPAddress, requestsPerSecond, constants.DDoSWindow),
			AutoBlockIP: true,
		}
	}

	endpoints := make(map[string]struct{}, count)
	agents := make(map[string]struct{}, count)
	for _, e := range ipHistory {
		endpoints[e.Endpoint] = struct{}{}
		agents[e.UserAgent] = struct{}{}
	}

	// Many endpoints probed by few distinct clients behind one IP. Log and
	// alert only; no automatic block on this path.
	if count > d.floodRequests && len(endpoints) > d.floodEndpoints && len(agents) < d.floodAgents {
		return &DDoSVerdict{
			Reason:   "Suspicious request pattern",
			Severity: constants.SeverityHigh,
			Details: fmt.Sprintf("distributed attack pattern from %s: %d requests across %d endpoints with %d user agents",
				req.IPAddress, count, len(endpoints), len(agents)),
		}
	}

	return nil
}
