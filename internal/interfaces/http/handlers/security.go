// Package handlers implements the administrative HTTP endpoints of the
// apiguard gateway.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/apiguard/internal/protection"
	"github.com/turtacn/apiguard/pkg/constants"
	"github.com/turtacn/apiguard/pkg/errors"
	"github.com/turtacn/apiguard/pkg/logger"
)

// SecurityHandler exposes manual blocklist controls and protection statistics.
type SecurityHandler struct {
	svc    *protection.Service
	logger logger.Logger
}

// NewSecurityHandler creates the handler.
func NewSecurityHandler(svc *protection.Service, log logger.Logger) *SecurityHandler {
	return &SecurityHandler{
		svc:    svc,
		logger: log.WithComponent("security-handler"),
	}
}

// blockRequest is the payload for block/unblock operations.
type blockRequest struct {
	Type       string `json:"type" binding:"required"`
	Identifier string `json:"identifier" binding:"required"`
	DurationMs int64  `json:"duration_ms"`
}

// GetStats returns the current security statistics.
//
// GET /admin/security/stats
func (h *SecurityHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Stats())
}

// Block adds an identifier to a blocklist, optionally with an expiry.
//
// POST /admin/security/block
func (h *SecurityHandler) Block(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToGenericErrorResponse(
			errors.ErrInvalidArgument(err.Error())))
		return
	}

	ttl := time.Duration(req.DurationMs) * time.Millisecond
	err := h.svc.BlockIdentifier(c.Request.Context(), constants.BlockType(req.Type), req.Identifier, ttl)
	if err != nil {
		status := http.StatusInternalServerError
		if guardErr, ok := errors.AsGuardError(err); ok {
			status = guardErr.HTTPStatus()
		}
		c.JSON(status, errors.ToGenericErrorResponse(err))
		return
	}

	c.Status(http.StatusNoContent)
}

// Unblock removes an identifier from a blocklist.
//
// POST /admin/security/unblock
func (h *SecurityHandler) Unblock(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToGenericErrorResponse(
			errors.ErrInvalidArgument(err.Error())))
		return
	}

	err := h.svc.UnblockIdentifier(c.Request.Context(), constants.BlockType(req.Type), req.Identifier)
	if err != nil {
		status := http.StatusInternalServerError
		if guardErr, ok := errors.AsGuardError(err); ok {
			status = guardErr.HTTPStatus()
		}
		c.JSON(status, errors.ToGenericErrorResponse(err))
		return
	}

	c.Status(http.StatusNoContent)
}

// GetViolations returns the violations recorded in the last 24 hours.
//
// GET /admin/security/violations
func (h *SecurityHandler) GetViolations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"violations": h.svc.RecentViolations(constants.RecentViolationWindow),
	})
}

// Health reports process liveness.
//
// GET /healthz
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
