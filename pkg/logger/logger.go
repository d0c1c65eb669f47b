// Package logger provides structured logging capabilities for the apiguard service.
// It defines a backend-agnostic Logger interface with typed fields and integrates
// with OpenTelemetry for trace correlation.
package logger

import (
	"context"
	"time"

	"github.com/turtacn/apiguard/pkg/constants"
)

// ================================================================================
// Logger Interface
// ================================================================================

// Logger defines the interface for structured logging
type Logger interface {
	// Debug logs a debug message
	Debug(ctx context.Context, message string, fields ...Field)

	// Info logs an informational message
	Info(ctx context.Context, message string, fields ...Field)

	// Warn logs a warning message
	Warn(ctx context.Context, message string, fields ...Field)

	// Error logs an error message
	Error(ctx context.Context, message string, err error, fields ...Field)

	// Fatal logs a fatal message and exits the application
	Fatal(ctx context.Context, message string, err error, fields ...Field)

	// WithFields creates a new logger with additional base fields
	WithFields(fields ...Field) Logger

	// WithComponent creates a new logger for a specific component
	WithComponent(component string) Logger
}

// ================================================================================
// Field Type for Structured Logging
// ================================================================================

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// F is a shorthand constructor for Field
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// String creates a string field
func String(key string, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float64 field
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Error creates an error field
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Time creates a time field
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value.Format(time.RFC3339)}
}

// Any creates a field with any type
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// ================================================================================
// Audit Logging
// ================================================================================

// AuditLogger is a specialized logger for security audit events
type AuditLogger struct {
	logger Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger.WithComponent("audit"),
	}
}

// LogAuditEvent logs an audit event
func (a *AuditLogger) LogAuditEvent(ctx context.Context, eventType constants.AuditEventType, fields ...Field) {
	auditFields := append([]Field{
		String("event_type", string(eventType)),
		String("event_category", "audit"),
		Time("event_timestamp", time.Now().UTC()),
	}, fields...)

	a.logger.Info(ctx, "Audit event", auditFields...)
}

// LogRateLimitExceeded logs a rate limit exceeded event
func (a *AuditLogger) LogRateLimitExceeded(ctx context.Context, scope string, identifier string, total int) {
	a.LogAuditEvent(ctx, constants.AuditEventRateLimitExceeded,
		String("scope", scope),
		String("identifier", identifier),
		Int("total_requests", total),
	)
}

// LogIdentifierBlocked logs a blocklist insertion event
func (a *AuditLogger) LogIdentifierBlocked(ctx context.Context, blockType constants.BlockType, identifier string, ttl time.Duration) {
	fields := []Field{
		String("block_type", string(blockType)),
		String("identifier", identifier),
	}
	if ttl > 0 {
		fields = append(fields, Duration("ttl", ttl))
	} else {
		fields = append(fields, Bool("permanent", true))
	}

	a.LogAuditEvent(ctx, constants.AuditEventIdentifierBlocked, fields...)
}

// LogIdentifierUnblocked logs a blocklist removal event
func (a *AuditLogger) LogIdentifierUnblocked(ctx context.Context, blockType constants.BlockType, identifier string) {
	a.LogAuditEvent(ctx, constants.AuditEventIdentifierUnblocked,
		String("block_type", string(blockType)),
		String("identifier", identifier),
	)
}

// LogViolation logs a recorded security violation
func (a *AuditLogger) LogViolation(ctx context.Context, violationType constants.ViolationType, severity constants.Severity, details string) {
	a.LogAuditEvent(ctx, constants.AuditEventViolationRecorded,
		String("violation_type", string(violationType)),
		String("severity", string(severity)),
		String("details", details),
	)
}
