package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Fields flow through context enrichment, so pipeline code does not
// need to repeat review_id/chunk_index on every log statement.
type LogFields struct {
	ReviewID   *string // Review record ID
	ChunkIndex *int    // Index of the chunk being processed
	Phase      *string // Pipeline phase ("detection", "implementation")
	MessageID  *string // Redis stream message ID
	Component  string  // Component name (e.g., "reviewd.review.coordinator")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking
// precedence. Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, updated LogFields) LogFields {
	result := existing

	if updated.ReviewID != nil {
		result.ReviewID = updated.ReviewID
	}
	if updated.ChunkIndex != nil {
		result.ChunkIndex = updated.ChunkIndex
	}
	if updated.Phase != nil {
		result.Phase = updated.Phase
	}
	if updated.MessageID != nil {
		result.MessageID = updated.MessageID
	}
	if updated.Component != "" {
		result.Component = updated.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{ReviewID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like raw LLM output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
