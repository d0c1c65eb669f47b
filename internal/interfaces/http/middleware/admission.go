// Package middleware contains the Gin middleware that fronts the admission
// pipeline for every inbound request.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/apiguard/internal/protection"
	"github.com/turtacn/apiguard/pkg/constants"
	"github.com/turtacn/apiguard/pkg/logger"
)

// Admission invokes the protection service once per inbound request, before
// business handlers run. Denials abort with 403 (429 for rate limits);
// allowed requests proceed with the security response headers attached.
//
// Identity fields are read from request-scoped context keys populated by the
// authentication layer upstream of this middleware (when one is present).
func Admission(svc *protection.Service, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := &protection.APIRequest{
			Endpoint:  c.Request.URL.Path,
			Method:    c.Request.Method,
			UserID:    c.GetString(string(constants.ContextKeyUserID)),
			UserTier:  c.GetString(string(constants.ContextKeyUserTier)),
			ClientID:  clientID(c),
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Timestamp: time.Now(),
		}

		result := svc.CheckRequest(c.Request.Context(), req)

		for key, value := range result.Headers {
			c.Header(key, value)
		}

		if !result.Allowed {
			log.Warn(c.Request.Context(), "Request denied by admission control",
				logger.String("reason", result.Reason),
				logger.String("endpoint", req.Endpoint),
				logger.String("identifier", req.Identifier()),
			)

			status := http.StatusForbidden
			if strings.Contains(result.Reason, "ate limit") {
				status = http.StatusTooManyRequests
			}

			body := gin.H{"error": result.Reason}
			if result.RateLimitInfo != nil {
				body["rate_limit"] = result.RateLimitInfo
			}
			c.AbortWithStatusJSON(status, body)
			return
		}

		c.Next()
	}
}

// MaxRequestSize rejects requests whose declared body size exceeds the
// configured bound. The body itself is never inspected.
func MaxRequestSize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "request body too large",
			})
			return
		}
		c.Next()
	}
}

func clientID(c *gin.Context) string {
	if id := c.GetString(string(constants.ContextKeyClientID)); id != "" {
		return id
	}
	return c.GetHeader("X-Client-ID")
}
