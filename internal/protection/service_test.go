package protection

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/apiguard/internal/config"
	"github.com/turtacn/apiguard/pkg/constants"
)

// recordingAlerter captures alerts for assertions.
type recordingAlerter struct {
	mu     sync.Mutex
	alerts []SecurityViolation
}

func (a *recordingAlerter) Alert(_ context.Context, v SecurityViolation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, v)
	return nil
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

// panickingAlerter simulates a faulty alert sink.
type panickingAlerter struct{}

func (panickingAlerter) Alert(context.Context, SecurityViolation) error {
	panic("alert sink down")
}

func policyWith(mutate func(*config.SecurityConfig)) *config.SecurityConfig {
	cfg := config.DefaultSecurityConfig()
	cfg.EnableRateLimiting = false
	cfg.EnableDDoSProtection = false
	cfg.EnableAbuseDetection = false
	cfg.EnableRequestValidation = false
	if mutate != nil {
		mutate(&cfg)
	}
	return &cfg
}

func newTestService(t *testing.T, secCfg *config.SecurityConfig, rlCfg *config.RateLimitConfig, opts ...Option) *Service {
	t.Helper()
	svc := NewService(secCfg, rlCfg, nil, opts...)
	t.Cleanup(svc.Close)
	return svc
}

func TestServiceBlocklistStages(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked IP is denied and unblocking restores access", func(t *testing.T) {
		svc := newTestService(t, policyWith(nil), nil)
		req := &APIRequest{Endpoint: "/items", Method: "GET", IPAddress: "203.0.113.7", Timestamp: time.Now()}

		require.NoError(t, svc.BlockIdentifier(ctx, constants.BlockTypeIP, "203.0.113.7", 0))
		result := svc.CheckRequest(ctx, req)
		assert.False(t, result.Allowed)
		assert.Equal(t, "IP blocked", result.Reason)

		require.NoError(t, svc.UnblockIdentifier(ctx, constants.BlockTypeIP, "203.0.113.7"))
		assert.True(t, svc.CheckRequest(ctx, req).Allowed)
	})

	t.Run("blocked user is denied regardless of IP", func(t *testing.T) {
		svc := newTestService(t, policyWith(nil), nil)
		req := &APIRequest{Endpoint: "/items", Method: "GET", UserID: "user-1", IPAddress: "198.51.100.1", Timestamp: time.Now()}

		require.NoError(t, svc.BlockIdentifier(ctx, constants.BlockTypeUser, "user-1", 0))
		result := svc.CheckRequest(ctx, req)
		assert.False(t, result.Allowed)
		assert.Equal(t, "User blocked", result.Reason)
	})

	t.Run("TTL blocks expire on their own", func(t *testing.T) {
		svc := newTestService(t, policyWith(nil), nil)
		req := &APIRequest{Endpoint: "/items", Method: "GET", IPAddress: "203.0.113.8", Timestamp: time.Now()}

		require.NoError(t, svc.BlockIdentifier(ctx, constants.BlockTypeIP, "203.0.113.8", 100*time.Millisecond))
		assert.False(t, svc.CheckRequest(ctx, req).Allowed)

		time.Sleep(150 * time.Millisecond)
		assert.True(t, svc.CheckRequest(ctx, req).Allowed)
	})

	t.Run("administrative argument errors surface", func(t *testing.T) {
		svc := newTestService(t, policyWith(nil), nil)

		assert.Error(t, svc.BlockIdentifier(ctx, constants.BlockTypeIP, "", 0))
		assert.Error(t, svc.BlockIdentifier(ctx, constants.BlockType("subnet"), "203.0.113.0/24", 0))
		assert.Error(t, svc.UnblockIdentifier(ctx, constants.BlockType("subnet"), "203.0.113.0/24"))
	})
}

func TestServiceUserAgentValidation(t *testing.T) {
	ctx := context.Background()
	req := &APIRequest{Endpoint: "/items", Method: "GET", IPAddress: "203.0.113.7", UserAgent: "Googlebot/2.1", Timestamp: time.Now()}

	t.Run("blocked agent substrings deny when validation is on", func(t *testing.T) {
		svc := newTestService(t, policyWith(func(c *config.SecurityConfig) {
			c.EnableRequestValidation = true
		}), nil)

		result := svc.CheckRequest(ctx, req)
		assert.False(t, result.Allowed)
		assert.Equal(t, "Blocked user agent", result.Reason)

		violations := svc.RecentViolations(time.Hour)
		require.NotEmpty(t, violations)
		assert.Equal(t, constants.ViolationBlockedAgent, violations[0].Type)
	})

	t.Run("matching is case-insensitive", func(t *testing.T) {
		svc := newTestService(t, policyWith(func(c *config.SecurityConfig) {
			c.EnableRequestValidation = true
		}), nil)

		shouting := *req
		shouting.UserAgent = "MYCRAWLER/1.0"
		assert.False(t, svc.CheckRequest(ctx, &shouting).Allowed)
	})

	t.Run("agents pass when validation is off", func(t *testing.T) {
		svc := newTestService(t, policyWith(nil), nil)
		assert.True(t, svc.CheckRequest(ctx, req).Allowed)
	})

	t.Run("an empty agent is never blocked", func(t *testing.T) {
		svc := newTestService(t, policyWith(func(c *config.SecurityConfig) {
			c.EnableRequestValidation = true
		}), nil)

		anonymous := *req
		anonymous.UserAgent = ""
		assert.True(t, svc.CheckRequest(ctx, &anonymous).Allowed)
	})
}

func TestServiceRateLimiting(t *testing.T) {
	ctx := context.Background()

	rlCfg := &config.RateLimitConfig{
		Categories: map[string]config.QuotaConfig{
			string(constants.CategoryAuth): {Window: time.Minute, MaxRequests: 3},
			string(constants.CategoryAPI):  {Window: time.Minute, MaxRequests: 1000},
		},
		Tiers: map[string]config.QuotaConfig{
			constants.TierFree: {Window: time.Minute, MaxRequests: 2},
		},
	}

	t.Run("category quota denies with rate limit info", func(t *testing.T) {
		svc := newTestService(t, policyWith(func(c *config.SecurityConfig) {
			c.EnableRateLimiting = true
		}), rlCfg)

		req := &APIRequest{Endpoint: "/auth/login", Method: "POST", IPAddress: "203.0.113.7", Timestamp: time.Now()}
		for i := 0; i < 3; i++ {
			assert.True(t, svc.CheckRequest(ctx, req).Allowed, "request %d", i)
		}

		result := svc.CheckRequest(ctx, req)
		assert.False(t, result.Allowed)
		assert.Equal(t, "Rate limit exceeded for auth", result.Reason)
		require.NotNil(t, result.RateLimitInfo)
		assert.True(t, result.RateLimitInfo.Limited)
		assert.Equal(t, 3, result.RateLimitInfo.TotalRequests)

		// Denied requests do not consume budget.
		again := svc.CheckRequest(ctx, req)
		assert.False(t, again.Allowed)
		assert.Equal(t, 3, again.RateLimitInfo.TotalRequests)
	})

	t.Run("tier quota denies once the category still has room", func(t *testing.T) {
		svc := newTestService(t, policyWith(func(c *config.SecurityConfig) {
			c.EnableRateLimiting = true
		}), rlCfg)

		req := &APIRequest{Endpoint: "/items", Method: "GET", UserID: "user-1", UserTier: constants.TierFree, Timestamp: time.Now()}
		for i := 0; i < 2; i++ {
			assert.True(t, svc.CheckRequest(ctx, req).Allowed, "request %d", i)
		}

		result := svc.CheckRequest(ctx, req)
		assert.False(t, result.Allowed)
		assert.Equal(t, "User tier rate limit exceeded", result.Reason)
		require.NotNil(t, result.RateLimitInfo)
	})

	t.Run("unknown tiers bypass the tier axis", func(t *testing.T) {
		svc := newTestService(t, policyWith(func(c *config.SecurityConfig) {
			c.EnableRateLimiting = true
		}), rlCfg)

		req := &APIRequest{Endpoint: "/items", Method: "GET", UserID: "user-2", UserTier: "bespoke", Timestamp: time.Now()}
		for i := 0; i < 20; i++ {
			assert.True(t, svc.CheckRequest(ctx, req).Allowed, "request %d", i)
		}
	})

	t.Run("denials record rate limit violations", func(t *testing.T) {
		svc := newTestService(t, policyWith(func(c *config.SecurityConfig) {
			c.EnableRateLimiting = true
		}), rlCfg)

		req := &APIRequest{Endpoint: "/auth/login", Method: "POST", IPAddress: "203.0.113.9", Timestamp: time.Now()}
		for i := 0; i < 4; i++ {
			svc.CheckRequest(ctx, req)
		}

		violations := svc.RecentViolations(time.Hour)
		require.NotEmpty(t, violations)
		assert.Equal(t, constants.ViolationRateLimit, violations[0].Type)
	})
}

func TestServiceDDoSProtection(t *testing.T) {
	ctx := context.Background()

	t.Run("volumetric flood trips protection and auto-blocks the IP", func(t *testing.T) {
		svc := newTestService(t, policyWith(func(c *config.SecurityConfig) {
			c.EnableDDoSProtection = true
		}), nil)

		req := &APIRequest{Endpoint: "/items", Method: "GET", IPAddress: "203.0.113.50", UserAgent: "curl/8.0", Timestamp: time.Now()}

		// 601 recorded requests push the trailing window past 10 req/s.
		for i := 0; i < 601; i++ {
			require.True(t, svc.CheckRequest(ctx, req).Allowed, "request %d", i)
		}

		result := svc.CheckRequest(ctx, req)
		assert.False(t, result.Allowed)
		assert.Equal(t, "DDoS protection triggered", result.Reason)

		assert.Equal(t, 1, svc.Stats().BlockedIPs)

		// The auto-block now denies at the first pipeline stage.
		blocked := svc.CheckRequest(ctx, req)
		assert.False(t, blocked.Allowed)
		assert.Equal(t, "IP blocked", blocked.Reason)

		violations := svc.RecentViolations(time.Hour)
		require.NotEmpty(t, violations)
		last := violations[len(violations)-1]
		assert.Equal(t, constants.ViolationDDoS, last.Type)
		assert.Equal(t, constants.SeverityCritical, last.Severity)
	})

	t.Run("wide probing with few agents is flagged without blocking", func(t *testing.T) {
		svc := newTestService(t, policyWith(func(c *config.SecurityConfig) {
			c.EnableDDoSProtection = true
		}), nil)

		for i := 0; i < 60; i++ {
			req := &APIRequest{
				Endpoint:  fmt.Sprintf("/probe/%d", i),
				Method:    "GET",
				IPAddress: "203.0.113.51",
				UserAgent: "curl/8.0",
				Timestamp: time.Now(),
			}
			require.True(t, svc.CheckRequest(ctx, req).Allowed, "request %d", i)
		}

		next := &APIRequest{Endpoint: "/probe/0", Method: "GET", IPAddress: "203.0.113.51", UserAgent: "curl/8.0", Timestamp: time.Now()}
		result := svc.CheckRequest(ctx, next)
		assert.False(t, result.Allowed)
		assert.Equal(t, "Suspicious request pattern", result.Reason)
		assert.Equal(t, 0, svc.Stats().BlockedIPs, "the distributed rule never auto-blocks")
	})

	t.Run("requests without an IP skip the detector", func(t *testing.T) {
		svc := newTestService(t, policyWith(func(c *config.SecurityConfig) {
			c.EnableDDoSProtection = true
		}), nil)

		req := &APIRequest{Endpoint: "/items", Method: "GET", UserID: "user-1", Timestamp: time.Now()}
		for i := 0; i < 700; i++ {
			require.True(t, svc.CheckRequest(ctx, req).Allowed, "request %d", i)
		}
	})
}

func TestServiceAbuseDetection(t *testing.T) {
	ctx := context.Background()

	abuseOnly := func() *config.SecurityConfig {
		return policyWith(func(c *config.SecurityConfig) {
			c.EnableAbuseDetection = true
		})
	}

	t.Run("rapid fire blocks the user permanently", func(t *testing.T) {
		svc := newTestService(t, abuseOnly(), nil)

		req := &APIRequest{Endpoint: "/items", Method: "GET", UserID: "user-rapid", Timestamp: time.Now()}
		for i := 0; i < 50; i++ {
			require.True(t, svc.CheckRequest(ctx, req).Allowed, "request %d", i)
		}

		result := svc.CheckRequest(ctx, req)
		assert.False(t, result.Allowed)
		assert.Equal(t, "Abuse detected: Rapid fire requests detected", result.Reason)
		assert.Equal(t, 1, svc.Stats().BlockedUsers)

		blocked := svc.CheckRequest(ctx, req)
		assert.Equal(t, "User blocked", blocked.Reason)
	})

	t.Run("abuse from an IP blocks that IP too", func(t *testing.T) {
		svc := newTestService(t, abuseOnly(), nil)

		req := &APIRequest{Endpoint: "/items", Method: "GET", UserID: "user-both", IPAddress: "203.0.113.60", Timestamp: time.Now()}
		for i := 0; i < 50; i++ {
			require.True(t, svc.CheckRequest(ctx, req).Allowed, "request %d", i)
		}

		assert.False(t, svc.CheckRequest(ctx, req).Allowed)

		stats := svc.Stats()
		assert.Equal(t, 1, stats.BlockedUsers)
		assert.Equal(t, 1, stats.BlockedIPs)
	})

	t.Run("repeated auth failures block the user", func(t *testing.T) {
		svc := newTestService(t, abuseOnly(), nil)

		req := &APIRequest{Endpoint: "/auth/login", Method: "POST", UserID: "user-auth", Timestamp: time.Now()}
		for i := 0; i < 10; i++ {
			require.True(t, svc.CheckRequest(ctx, req).Allowed, "request %d", i)
		}

		result := svc.CheckRequest(ctx, req)
		assert.False(t, result.Allowed)
		assert.Equal(t, "Abuse detected: Excessive failed authentication attempts", result.Reason)
	})

	t.Run("sensitive endpoint probing alerts without denying", func(t *testing.T) {
		alerter := &recordingAlerter{}
		svc := newTestService(t, abuseOnly(), nil, WithAlerter(alerter))

		req := &APIRequest{Endpoint: "/admin/config", Method: "GET", UserID: "user-probe", Timestamp: time.Now()}
		for i := 0; i < 8; i++ {
			require.True(t, svc.CheckRequest(ctx, req).Allowed, "request %d", i)
		}

		assert.Equal(t, 0, svc.Stats().BlockedUsers)
		assert.Greater(t, alerter.count(), 0, "alert-action patterns must reach the sink")

		violations := svc.RecentViolations(time.Hour)
		require.NotEmpty(t, violations)
		assert.Equal(t, constants.ViolationAbuse, violations[0].Type)
	})

	t.Run("data scraping blocks on volume with endpoint spread", func(t *testing.T) {
		svc := newTestService(t, abuseOnly(), nil)

		// Spread the recorded traffic over ~17 minutes so only the scraping
		// pattern accumulates enough hits in its window.
		now := time.Now()
		for i := 0; i < 100; i++ {
			req := &APIRequest{
				Endpoint:  fmt.Sprintf("/data/%d", i%30),
				Method:    "GET",
				UserID:    "user-scraper",
				Timestamp: now.Add(-time.Duration(100-i) * 10 * time.Second),
			}
			require.True(t, svc.CheckRequest(ctx, req).Allowed, "request %d", i)
		}

		final := &APIRequest{Endpoint: "/data/0", Method: "GET", UserID: "user-scraper", Timestamp: now}
		result := svc.CheckRequest(ctx, final)
		assert.False(t, result.Allowed)
		assert.Equal(t, "Abuse detected: Potential data scraping activity", result.Reason)
		assert.Equal(t, 1, svc.Stats().BlockedUsers)
	})
}

func TestServiceFailOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("nil requests are allowed with headers", func(t *testing.T) {
		svc := newTestService(t, policyWith(nil), nil)

		result := svc.CheckRequest(ctx, nil)
		assert.True(t, result.Allowed)
		assert.Equal(t, "nosniff", result.Headers["X-Content-Type-Options"])
	})

	t.Run("a panicking alert sink cannot deny requests", func(t *testing.T) {
		svc := newTestService(t, policyWith(func(c *config.SecurityConfig) {
			c.EnableAbuseDetection = true
		}), nil, WithAlerter(panickingAlerter{}))

		req := &APIRequest{Endpoint: "/admin/config", Method: "GET", UserID: "user-1", Timestamp: time.Now()}
		for i := 0; i < 8; i++ {
			result := svc.CheckRequest(ctx, req)
			assert.True(t, result.Allowed, "request %d", i)
			assert.NotEmpty(t, result.Headers)
		}
	})

	t.Run("zero-value requests are allowed", func(t *testing.T) {
		svc := newTestService(t, policyWith(nil), nil)
		assert.True(t, svc.CheckRequest(ctx, &APIRequest{}).Allowed)
	})
}

func TestServiceStats(t *testing.T) {
	ctx := context.Background()

	svc := newTestService(t, policyWith(func(c *config.SecurityConfig) {
		c.EnableRequestValidation = true
	}), nil)

	svc.CheckRequest(ctx, &APIRequest{Endpoint: "/items", Method: "GET", UserID: "user-1", Timestamp: time.Now()})
	svc.CheckRequest(ctx, &APIRequest{Endpoint: "/items", Method: "GET", UserID: "user-2", Timestamp: time.Now()})
	svc.CheckRequest(ctx, &APIRequest{Endpoint: "/items", Method: "GET", IPAddress: "203.0.113.7", UserAgent: "badbot/1.0", Timestamp: time.Now()})
	require.NoError(t, svc.BlockIdentifier(ctx, constants.BlockTypeIP, "198.51.100.1", 0))

	stats := svc.Stats()
	assert.Equal(t, 2, stats.ActiveConnections, "denied requests are not recorded")
	assert.Equal(t, 1, stats.BlockedIPs)
	assert.Equal(t, 0, stats.BlockedUsers)
	assert.Equal(t, 1, stats.RecentViolations)
	assert.Contains(t, stats.RateLimiterStats, "api")
	assert.Contains(t, stats.RateLimiterStats, "tier:free")
}

func TestServiceAllDetectorsDisabled(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, policyWith(nil), nil)

	for i := 0; i < 200; i++ {
		req := &APIRequest{
			Endpoint:  "/auth/login",
			Method:    "POST",
			IPAddress: "203.0.113.70",
			UserAgent: "scraperbot/1.0",
			Timestamp: time.Now(),
		}
		result := svc.CheckRequest(ctx, req)
		require.True(t, result.Allowed, "request %d", i)
		assert.Equal(t, "DENY", result.Headers["X-Frame-Options"])
	}
}

func TestServiceConcurrentChecks(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil, nil)

	var g errgroup.Group
	for i := 0; i < 100; i++ {
		i := i
		g.Go(func() error {
			req := &APIRequest{
				Endpoint:  "/items",
				Method:    "GET",
				IPAddress: fmt.Sprintf("203.0.113.%d", i+1),
				UserAgent: "curl/8.0",
				Timestamp: time.Now(),
			}
			result := svc.CheckRequest(ctx, req)
			if !result.Allowed {
				return fmt.Errorf("request %d denied: %s", i, result.Reason)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 100, svc.Stats().ActiveConnections)
}

func TestServiceClose(t *testing.T) {
	svc := NewService(policyWith(nil), nil, nil)

	svc.CheckRequest(context.Background(), &APIRequest{Endpoint: "/items", Method: "GET", UserID: "user-1", Timestamp: time.Now()})
	svc.Close()
	svc.Close() // idempotent

	assert.Equal(t, 0, svc.Stats().ActiveConnections)
}
