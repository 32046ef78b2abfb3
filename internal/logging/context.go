package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldTransferID identifies one request/response exchange.
	FieldTransferID = "transfer_id"
	// FieldRequester is the pid that submitted a request.
	FieldRequester = "requester"
	// FieldDestination is the address a transfer's chunks are sent to.
	FieldDestination = "destination"
	// FieldFilename is the requested file name.
	FieldFilename = "filename"
	// FieldQueueKey is the System V key of the shared queue.
	FieldQueueKey = "queue_key"
	// FieldEventType classifies a warning or error for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step for an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey int

const (
	transferIDKey contextKey = iota
	requesterKey
)

// WithTransferID stores a transfer identifier on ctx.
func WithTransferID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, transferIDKey, id)
}

// WithRequester stores the requesting pid on ctx.
func WithRequester(ctx context.Context, pid int64) context.Context {
	return context.WithValue(ctx, requesterKey, pid)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := ctx.Value(transferIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldTransferID, id))
	}
	if pid, ok := ctx.Value(requesterKey).(int64); ok && pid > 0 {
		fields = append(fields, slog.Int64(FieldRequester, pid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
