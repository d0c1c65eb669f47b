// Package protection implements the request admission-control subsystem: fixed
// identity blocking, tiered sliding-window rate limiting, volumetric DDoS
// heuristics and behavioral abuse-pattern matching, composed into a single
// low-latency decision pipeline. The pipeline fails open: when the protection
// layer itself errors, the request is allowed.
package protection

import (
	"strings"
	"time"

	"github.com/turtacn/apiguard/pkg/constants"
)

// APIRequest is one inbound call as seen by the admission pipeline. It is an
// immutable value; only Endpoint, Method and Timestamp are required, all identity
// fields are optional (anonymous calls are supported).
type APIRequest struct {
	Endpoint  string    `json:"endpoint"`
	Method    string    `json:"method"`
	UserID    string    `json:"user_id,omitempty"`
	UserTier  string    `json:"user_tier,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Identifier resolves the key used to bucket this caller's request history and
// rate-limit counters: user ID, else client ID, else IP address, else "anonymous".
func (r *APIRequest) Identifier() string {
	switch {
	case r.UserID != "":
		return r.UserID
	case r.ClientID != "":
		return r.ClientID
	case r.IPAddress != "":
		return r.IPAddress
	default:
		return constants.AnonymousIdentifier
	}
}

// CategorizeEndpoint maps an endpoint path to its rate-limiting category.
// Substring match, case-insensitive, first match wins.
func CategorizeEndpoint(endpoint string) constants.EndpointCategory {
	path := strings.ToLower(endpoint)

	switch {
	case strings.Contains(path, "/auth") || strings.Contains(path, "/login"):
		return constants.CategoryAuth
	case strings.Contains(path, "/payment"):
		return constants.CategoryPayment
	case strings.Contains(path, "/upload"):
		return constants.CategoryUpload
	case strings.Contains(path, "/search"):
		return constants.CategorySearch
	case strings.Contains(path, "/password"):
		return constants.CategoryPasswordReset
	default:
		return constants.CategoryAPI
	}
}

// SecurityHeaders returns the fixed set of security response headers attached to
// every allowed request. A fresh map is returned so callers may mutate it.
func SecurityHeaders() map[string]string {
	return map[string]string{
		constants.HeaderContentTypeOptions:      "nosniff",
		constants.HeaderFrameOptions:            "DENY",
		constants.HeaderXSSProtection:           "1; mode=block",
		constants.HeaderStrictTransportSecurity: "max-age=31536000; includeSubDomains",
		constants.HeaderReferrerPolicy:          "strict-origin-when-cross-origin",
		constants.HeaderContentSecurityPolicy:   "default-src 'self'",
	}
}
