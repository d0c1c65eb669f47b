// Package constants defines system-wide constants for the apiguard admission-control service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Violation Constants
// ================================================================================

// ViolationType classifies a recorded security violation.
type ViolationType string

const (
	// ViolationRateLimit indicates a request was denied by a rate limiter
	ViolationRateLimit ViolationType = "rate_limit"

	// ViolationDDoS indicates a request matched a volumetric attack heuristic
	ViolationDDoS ViolationType = "ddos"

	// ViolationAbuse indicates a request matched a behavioral abuse pattern
	ViolationAbuse ViolationType = "abuse"

	// ViolationValidation indicates a request failed request validation
	ViolationValidation ViolationType = "validation"

	// ViolationBlockedAgent indicates a request carried a blocked user agent
	ViolationBlockedAgent ViolationType = "blocked_agent"
)

// Severity expresses how serious a security violation is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ================================================================================
// Blocklist Constants
// ================================================================================

// BlockType selects which blocklist an identifier belongs to.
type BlockType string

const (
	// BlockTypeIP blocks by source IP address
	BlockTypeIP BlockType = "ip"

	// BlockTypeUser blocks by user ID
	BlockTypeUser BlockType = "user"
)

// ================================================================================
// Endpoint Category Constants
// ================================================================================

// EndpointCategory is the rate-limiting bucket an endpoint path resolves to.
type EndpointCategory string

const (
	CategoryAuth          EndpointCategory = "auth"
	CategoryPayment       EndpointCategory = "payment"
	CategoryUpload        EndpointCategory = "upload"
	CategorySearch        EndpointCategory = "search"
	CategoryPasswordReset EndpointCategory = "passwordReset"
	CategoryAPI           EndpointCategory = "api"
)

// ================================================================================
// Subscription Tier Constants
// ================================================================================

const (
	// TierFree is the default tier for unpaid callers
	TierFree = "free"

	// TierPremium is the paid subscription tier
	TierPremium = "premium"

	// TierEnterprise is the contract subscription tier
	TierEnterprise = "enterprise"
)

// ================================================================================
// Detection Window and Threshold Constants
// ================================================================================

const (
	// AnonymousIdentifier is the history/rate-limit key for requests carrying
	// no user ID, client ID or IP address
	AnonymousIdentifier = "anonymous"

	// MaxHistoryPerIdentifier caps the request history ring kept per identifier
	MaxHistoryPerIdentifier = 1000

	// HistoryRetention is how long request history entries are kept
	HistoryRetention = 24 * time.Hour

	// HistoryPruneInterval is how often the history janitor runs
	HistoryPruneInterval = 5 * time.Minute

	// ViolationRetention is how long violation log entries are kept
	ViolationRetention = 7 * 24 * time.Hour

	// ViolationPruneInterval is how often the violation janitor runs
	ViolationPruneInterval = 60 * time.Minute

	// MaxViolationEntries caps the violation log regardless of age
	MaxViolationEntries = 10000

	// RecentViolationWindow is the window reported by security stats
	RecentViolationWindow = 24 * time.Hour
)

const (
	// DDoSWindow is the trailing interval inspected per source IP
	DDoSWindow = 60 * time.Second

	// DDoSRequestsPerSecondLimit triggers the volumetric rule when exceeded
	DDoSRequestsPerSecondLimit = 10.0

	// DDoSFloodRequestCount is the window count bound for the distributed rule
	DDoSFloodRequestCount = 50

	// DDoSFloodEndpointCount is the unique-endpoint bound for the distributed rule
	DDoSFloodEndpointCount = 10

	// DDoSFloodAgentCount is the unique-user-agent bound for the distributed rule
	DDoSFloodAgentCount = 3

	// DDoSAutoBlockTTL is the auto-block duration applied on the volumetric rule
	DDoSAutoBlockTTL = 15 * time.Minute
)

const (
	// RapidFireThreshold is the request count bound for the rapid-fire pattern
	RapidFireThreshold = 50

	// RapidFireWindow is the window for the rapid-fire pattern
	RapidFireWindow = 1 * time.Minute

	// FailedAuthThreshold is the auth-endpoint hit bound for the failed-auth pattern
	FailedAuthThreshold = 10

	// FailedAuthWindow is the window for the failed-auth pattern
	FailedAuthWindow = 15 * time.Minute

	// SuspiciousEndpointThreshold is the sensitive-endpoint hit bound
	SuspiciousEndpointThreshold = 5

	// SuspiciousEndpointWindow is the window for the sensitive-endpoint pattern
	SuspiciousEndpointWindow = 5 * time.Minute

	// ScrapingThreshold is the request count bound for the data-scraping pattern
	ScrapingThreshold = 100

	// ScrapingWindow is the window for the data-scraping pattern
	ScrapingWindow = 1 * time.Hour

	// ScrapingEndpointSpread is the unique-endpoint bound for the data-scraping pattern
	ScrapingEndpointSpread = 20
)

// ================================================================================
// Audit Event Constants
// ================================================================================

// AuditEventType identifies the kind of security audit event.
type AuditEventType string

const (
	// AuditEventRateLimitExceeded is emitted once per identifier per window-exceed transition
	AuditEventRateLimitExceeded AuditEventType = "rate_limit_exceeded"

	// AuditEventIdentifierBlocked is emitted when an identifier enters a blocklist
	AuditEventIdentifierBlocked AuditEventType = "identifier_blocked"

	// AuditEventIdentifierUnblocked is emitted when an identifier leaves a blocklist
	AuditEventIdentifierUnblocked AuditEventType = "identifier_unblocked"

	// AuditEventViolationRecorded is emitted for every recorded security violation
	AuditEventViolationRecorded AuditEventType = "violation_recorded"
)

// ================================================================================
// Context Key Constants
// ================================================================================

// ContextKey is the type used for request-scoped context values.
type ContextKey string

const (
	// ContextKeyRequestID carries the per-request correlation ID
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyUserID carries the authenticated user ID, when present
	ContextKeyUserID ContextKey = "user_id"

	// ContextKeyUserTier carries the caller's subscription tier, when present
	ContextKeyUserTier ContextKey = "user_tier"

	// ContextKeyClientID carries the API client ID, when present
	ContextKeyClientID ContextKey = "client_id"
)

// ================================================================================
// Security Response Header Constants
// ================================================================================

const (
	HeaderContentTypeOptions      = "X-Content-Type-Options"
	HeaderFrameOptions            = "X-Frame-Options"
	HeaderXSSProtection           = "X-XSS-Protection"
	HeaderStrictTransportSecurity = "Strict-Transport-Security"
	HeaderReferrerPolicy          = "Referrer-Policy"
	HeaderContentSecurityPolicy   = "Content-Security-Policy"
)
