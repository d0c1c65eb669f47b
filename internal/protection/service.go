package protection

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/turtacn/apiguard/internal/config"
	"github.com/turtacn/apiguard/internal/monitoring"
	"github.com/turtacn/apiguard/pkg/constants"
	"github.com/turtacn/apiguard/pkg/logger"
)

// Alerter receives violations whose pattern actions include alert, plus
// critical DDoS events. Implementations must be safe for concurrent use.
type Alerter interface {
	Alert(ctx context.Context, violation SecurityViolation) error
}

type noopAlerter struct{}

func (noopAlerter) Alert(context.Context, SecurityViolation) error { return nil }

// CheckResult is the outcome of one admission check.
type CheckResult struct {
	Allowed bool `json:"allowed"`
	// Reason is populated only when the request is denied
	Reason string `json:"reason,omitempty"`
	// RateLimitInfo is populated when a rate limiter produced the denial
	RateLimitInfo *RateLimitInfo `json:"rate_limit_info,omitempty"`
	// Headers is the fixed set of security response headers, present on allow
	Headers map[string]string `json:"security_headers,omitempty"`
}

// SecurityStats is the observability snapshot returned by Stats.
type SecurityStats struct {
	ActiveConnections int                     `json:"active_connections"`
	BlockedIPs        int                     `json:"blocked_ips"`
	BlockedUsers      int                     `json:"blocked_users"`
	RecentViolations  int                     `json:"recent_violations"`
	RateLimiterStats  map[string]LimiterStats `json:"rate_limiter_stats"`
}

// Service is the admission orchestrator: it composes the blocklist, the
// category and tier rate limiters, the DDoS detector and the abuse engine into
// one ordered, short-circuiting decision pipeline.
//
// CheckRequest never returns an error and never panics outward: any unexpected
// fault inside the pipeline is logged and converted to an allow (fail-open),
// prioritizing availability over strict enforcement.
type Service struct {
	cfg   config.SecurityConfig
	clock Clock

	log     logger.Logger
	audit   *logger.AuditLogger
	metrics *monitoring.Metrics
	alerter Alerter

	blocklist  *Blocklist
	history    *HistoryStore
	violations *ViolationLog

	categoryLimiters map[constants.EndpointCategory]*SlidingWindowLimiter
	tierLimiter      *TieredLimiter

	ddos  *DDoSDetector
	abuse *AbuseEngine

	stop      chan struct{}
	janitorWG sync.WaitGroup
	closeOnce sync.Once
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithMetrics wires Prometheus metrics into the pipeline.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAlerter wires an alerting sink for alert-action violations.
func WithAlerter(a Alerter) Option {
	return func(s *Service) { s.alerter = a }
}

// NewService constructs the orchestrator. A nil security or rate-limit config
// falls back to the defaults. The service owns all sub-component lifetimes and
// starts the history and violation janitors; Close releases them.
func NewService(secCfg *config.SecurityConfig, rlCfg *config.RateLimitConfig, log logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewNoopLogger()
	}

	cfg := config.DefaultSecurityConfig()
	if secCfg != nil {
		cfg = *secCfg
	}
	limits := config.DefaultRateLimitConfig()
	if rlCfg != nil {
		limits = *rlCfg
	}

	s := &Service{
		cfg:     cfg,
		clock:   SystemClock(),
		log:     log.WithComponent("protection"),
		audit:   logger.NewAuditLogger(log),
		alerter: noopAlerter{},
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.blocklist = NewBlocklist(log)
	s.history = NewHistoryStore()
	s.violations = NewViolationLog(s.clock)
	s.ddos = NewDDoSDetector()
	s.abuse = NewAbuseEngine(DefaultAbusePatterns(), cfg.SensitiveEndpoints, s.clock)

	s.categoryLimiters = make(map[constants.EndpointCategory]*SlidingWindowLimiter, len(limits.Categories))
	for name, quota := range limits.Categories {
		category := constants.EndpointCategory(name)
		s.categoryLimiters[category] = NewSlidingWindowLimiter(SlidingWindowConfig{
			Window:         quota.Window,
			MaxRequests:    quota.MaxRequests,
			OnLimitReached: s.limitReached("category:" + name),
		}, s.clock)
	}

	tierConfigs := make(map[string]SlidingWindowConfig, len(limits.Tiers))
	for name, quota := range limits.Tiers {
		tierConfigs[name] = SlidingWindowConfig{
			Window:         quota.Window,
			MaxRequests:    quota.MaxRequests,
			OnLimitReached: s.limitReached("tier:" + name),
		}
	}
	s.tierLimiter = NewTieredLimiter(tierConfigs, s.clock)

	s.janitorWG.Add(2)
	go s.historyJanitor()
	go s.violationJanitor()

	return s
}

// CheckRequest runs the ordered admission pipeline for one request. It is safe
// for concurrent use, performs no blocking I/O, and always returns a result.
func (s *Service) CheckRequest(ctx context.Context, req *APIRequest) (result CheckResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			// Fail open: availability beats enforcement when the protection
			// layer itself faults.
			s.log.Error(ctx, "Admission check failed internally; allowing request",
				fmt.Errorf("panic: %v", r))
			result = CheckResult{Allowed: true, Headers: SecurityHeaders()}
		}
		s.metrics.RecordCheck(result.Allowed, time.Since(start))
	}()

	if req == nil {
		return CheckResult{Allowed: true, Headers: SecurityHeaders()}
	}

	// 1. IP blocklist
	if req.IPAddress != "" && s.blocklist.IsBlocked(constants.BlockTypeIP, req.IPAddress) {
		s.metrics.RecordDenial("ip_blocklist")
		return CheckResult{Allowed: false, Reason: "IP blocked"}
	}

	// 2. User blocklist
	if req.UserID != "" && s.blocklist.IsBlocked(constants.BlockTypeUser, req.UserID) {
		s.metrics.RecordDenial("user_blocklist")
		return CheckResult{Allowed: false, Reason: "User blocked"}
	}

	// 3. Blocked user agents
	if s.cfg.EnableRequestValidation && s.isBlockedUserAgent(req.UserAgent) {
		s.recordViolation(ctx, constants.ViolationBlockedAgent, constants.SeverityMedium, req,
			fmt.Sprintf("blocked user agent: %s", req.UserAgent), false)
		s.metrics.RecordDenial("user_agent")
		return CheckResult{Allowed: false, Reason: "Blocked user agent"}
	}

	// 4. Rate limiting, on both the endpoint-category and the tier axis
	if s.cfg.EnableRateLimiting {
		if denied, res := s.checkRateLimits(ctx, req); denied {
			return res
		}
	}

	// 5. DDoS heuristics
	if s.cfg.EnableDDoSProtection {
		if denied, res := s.checkDDoS(ctx, req); denied {
			return res
		}
	}

	// 6. Abuse patterns
	if s.cfg.EnableAbuseDetection {
		if denied, res := s.checkAbuse(ctx, req); denied {
			return res
		}
	}

	// 7. Record and allow
	s.history.Record(req)
	return CheckResult{Allowed: true, Headers: SecurityHeaders()}
}

// checkRateLimits applies the endpoint-category limiter and, when the request
// carries both a user ID and tier, the tier limiter. Both axes run; either may
// deny. Denied requests do not consume budget on the axis that denied them.
func (s *Service) checkRateLimits(ctx context.Context, req *APIRequest) (bool, CheckResult) {
	category := CategorizeEndpoint(req.Endpoint)
	if limiter, ok := s.categoryLimiters[category]; ok {
		info := limiter.Allow(req.Identifier())
		if info.Limited {
			s.recordViolation(ctx, constants.ViolationRateLimit, constants.SeverityMedium, req,
				fmt.Sprintf("category %s quota exceeded by %s", category, req.Identifier()), false)
			s.metrics.RecordDenial("rate_limit_category")
			return true, CheckResult{
				Allowed:       false,
				Reason:        fmt.Sprintf("Rate limit exceeded for %s", category),
				RateLimitInfo: &info,
			}
		}
	}

	if req.UserID != "" && req.UserTier != "" {
		info := s.tierLimiter.Allow(req.UserTier, req.UserID)
		if info.Limited {
			s.recordViolation(ctx, constants.ViolationRateLimit, constants.SeverityMedium, req,
				fmt.Sprintf("tier %s quota exceeded by %s", req.UserTier, req.UserID), false)
			s.metrics.RecordDenial("rate_limit_tier")
			return true, CheckResult{
				Allowed:       false,
				Reason:        "User tier rate limit exceeded",
				RateLimitInfo: &info,
			}
		}
	}

	return false, CheckResult{}
}

func (s *Service) checkDDoS(ctx context.Context, req *APIRequest) (bool, CheckResult) {
	cutoff := s.clock.Now().Add(-constants.DDoSWindow)
	verdict := s.ddos.Evaluate(req, s.history.IPWindow(req.IPAddress, cutoff))
	if verdict == nil {
		return false, CheckResult{}
	}

	alert := verdict.Severity == constants.SeverityCritical
	s.recordViolation(ctx, constants.ViolationDDoS, verdict.Severity, req, verdict.Details, alert)

	if verdict.AutoBlockIP {
		if err := s.blocklist.Block(constants.BlockTypeIP, req.IPAddress, constants.DDoSAutoBlockTTL); err == nil {
			s.audit.LogIdentifierBlocked(ctx, constants.BlockTypeIP, req.IPAddress, constants.DDoSAutoBlockTTL)
		}
	}

	s.metrics.RecordDenial("ddos")
	return true, CheckResult{Allowed: false, Reason: verdict.Reason}
}

func (s *Service) checkAbuse(ctx context.Context, req *APIRequest) (bool, CheckResult) {
	cutoff := s.clock.Now().Add(-constants.ScrapingWindow) // widest pattern window
	history := s.history.IdentifierWindow(req.Identifier(), cutoff)

	verdict := s.abuse.Evaluate(req, history)
	for _, t := range verdict.Triggered {
		alert := t.Pattern.Actions.Has(ActionAlert)
		s.recordViolation(ctx, constants.ViolationAbuse, constants.SeverityMedium, req,
			fmt.Sprintf("%s: %s (%d hits in %s)", t.Pattern.Name, t.Pattern.Description, t.Count, t.Pattern.Window), alert)
	}

	if !verdict.Blocked {
		return false, CheckResult{}
	}

	// Blocking patterns ban the offender outright: both the source IP and the
	// user, whichever are present, with no expiry.
	if req.IPAddress != "" {
		if err := s.blocklist.Block(constants.BlockTypeIP, req.IPAddress, 0); err == nil {
			s.audit.LogIdentifierBlocked(ctx, constants.BlockTypeIP, req.IPAddress, 0)
		}
	}
	if req.UserID != "" {
		if err := s.blocklist.Block(constants.BlockTypeUser, req.UserID, 0); err == nil {
			s.audit.LogIdentifierBlocked(ctx, constants.BlockTypeUser, req.UserID, 0)
		}
	}

	s.metrics.RecordDenial("abuse")
	return true, CheckResult{Allowed: false, Reason: verdict.Reason}
}

// BlockIdentifier adds an identifier to the selected blocklist. A positive ttl
// auto-expires the block. Administrative path; argument errors surface.
func (s *Service) BlockIdentifier(ctx context.Context, blockType constants.BlockType, identifier string, ttl time.Duration) error {
	if err := s.blocklist.Block(blockType, identifier, ttl); err != nil {
		return err
	}
	s.audit.LogIdentifierBlocked(ctx, blockType, identifier, ttl)
	return nil
}

// UnblockIdentifier removes an identifier from the selected blocklist.
func (s *Service) UnblockIdentifier(ctx context.Context, blockType constants.BlockType, identifier string) error {
	if err := s.blocklist.Unblock(blockType, identifier); err != nil {
		return err
	}
	s.audit.LogIdentifierUnblocked(ctx, blockType, identifier)
	return nil
}

// Stats returns the current observability snapshot.
func (s *Service) Stats() SecurityStats {
	limiterStats := make(map[string]LimiterStats, len(s.categoryLimiters))
	for category, limiter := range s.categoryLimiters {
		limiterStats[string(category)] = limiter.Stats()
	}
	for tier, stats := range s.tierLimiter.Stats() {
		limiterStats["tier:"+tier] = stats
	}

	return SecurityStats{
		ActiveConnections: s.history.ActiveIdentifiers(),
		BlockedIPs:        s.blocklist.Count(constants.BlockTypeIP),
		BlockedUsers:      s.blocklist.Count(constants.BlockTypeUser),
		RecentViolations:  s.violations.CountSince(constants.RecentViolationWindow),
		RateLimiterStats:  limiterStats,
	}
}

// RecentViolations returns the violations recorded within the trailing window.
func (s *Service) RecentViolations(window time.Duration) []SecurityViolation {
	return s.violations.Recent(window)
}

// Close stops the janitors and clears all in-memory state. Idempotent; safe to
// call while checks are in flight, which then complete against stale but
// consistent state.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.janitorWG.Wait()

		for _, limiter := range s.categoryLimiters {
			limiter.Close()
		}
		s.tierLimiter.Close()
		s.blocklist.Clear()
		s.history.Clear()
		s.violations.Clear()

		s.log.Info(context.Background(), "Protection service closed")
	})
}

// limitReached builds the audit callback for one limiter scope. The limiter
// guarantees the callback fires once per window-exceed transition, so this
// cannot storm the audit log.
func (s *Service) limitReached(scope string) LimitReachedFunc {
	return func(identifier string, info RateLimitInfo) {
		s.audit.LogRateLimitExceeded(context.Background(), scope, identifier, info.TotalRequests)
	}
}

func (s *Service) isBlockedUserAgent(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	agent := strings.ToLower(userAgent)
	for _, blocked := range s.cfg.BlockedUserAgents {
		if blocked != "" && strings.Contains(agent, strings.ToLower(blocked)) {
			return true
		}
	}
	return false
}

func (s *Service) recordViolation(ctx context.Context, violationType constants.ViolationType, severity constants.Severity, req *APIRequest, details string, alert bool) {
	violation := s.violations.Record(violationType, severity, req, details)
	s.metrics.RecordViolation(string(violationType), string(severity))
	s.audit.LogViolation(ctx, violationType, severity, details)

	if alert {
		if err := s.alerter.Alert(ctx, violation); err != nil {
			s.log.Warn(ctx, "Failed to publish security alert",
				logger.String("violation_id", violation.ID),
				logger.Error(err),
			)
		}
	}
}

func (s *Service) historyJanitor() {
	defer s.janitorWG.Done()
	ticker := time.NewTicker(constants.HistoryPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			cutoff := s.clock.Now().Add(-constants.HistoryRetention)
			dropped := s.history.Prune(cutoff)
			for _, limiter := range s.categoryLimiters {
				limiter.Prune()
			}
			s.tierLimiter.Prune()
			if dropped > 0 {
				s.log.Debug(context.Background(), "Pruned request history",
					logger.Int("dropped", dropped))
			}
		}
	}
}

func (s *Service) violationJanitor() {
	defer s.janitorWG.Done()
	ticker := time.NewTicker(constants.ViolationPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if dropped := s.violations.Prune(constants.ViolationRetention); dropped > 0 {
				s.log.Debug(context.Background(), "Pruned violation log",
					logger.Int("dropped", dropped))
			}
		}
	}
}
