package logging

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	userIDKey    contextKey = "user_id"
	triggerIDKey contextKey = "trigger_id"
)

var contextKeys = []contextKey{requestIDKey, userIDKey, triggerIDKey}

func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func WithUserID(ctx context.Context, id string) context.Context {
	return withValue(ctx, userIDKey, id)
}

func WithTriggerID(ctx context.Context, id string) context.Context {
	return withValue(ctx, triggerIDKey, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func withValue(ctx context.Context, key contextKey, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, key, id)
}

// contextFields returns the correlation ids present in ctx in a fixed order.
func contextFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}
	var fields []Field
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			fields = append(fields, Field{Key: string(key), Value: v})
		}
	}
	return fields
}
