package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSessionID is the standardized structured logging key for session identifiers.
	FieldSessionID = "session_id"
	// FieldPhase is the standardized structured logging key for workflow phases.
	FieldPhase = "phase"
	// FieldStep is the standardized structured logging key for step names.
	FieldStep = "step"
	// FieldShotID is the standardized structured logging key for shot identifiers.
	FieldShotID = "shot_id"
	// FieldProvider is the standardized structured logging key for video provider names.
	FieldProvider = "provider"
	// FieldEventType marks lifecycle events (step_start, step_complete, step_failure).
	FieldEventType = "event_type"
)

type contextKey string

const (
	sessionIDKey contextKey = "logging.session_id"
	phaseKey     contextKey = "logging.phase"
	stepKey      contextKey = "logging.step"
)

// WithSession stamps a session identifier onto the context for log enrichment.
func WithSession(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithPhase stamps the active workflow phase onto the context.
func WithPhase(ctx context.Context, phase string) context.Context {
	if phase == "" {
		return ctx
	}
	return context.WithValue(ctx, phaseKey, phase)
}

// WithStep stamps the active step name onto the context.
func WithStep(ctx context.Context, step string) context.Context {
	if step == "" {
		return ctx
	}
	return context.WithValue(ctx, stepKey, step)
}

// WithContext returns a logger enriched with any identifiers stored in ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		logger = logger.With(String(FieldSessionID, v))
	}
	if v, ok := ctx.Value(phaseKey).(string); ok && v != "" {
		logger = logger.With(String(FieldPhase, v))
	}
	if v, ok := ctx.Value(stepKey).(string); ok && v != "" {
		logger = logger.With(String(FieldStep, v))
	}
	return logger
}
