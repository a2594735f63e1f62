package userctx

import "context"

// Context key type
type contextKey string

const sessionIDKey contextKey = "session_id"
const authenticatedKey contextKey = "authenticated"

// SetSessionID adds the browser session identifier to the request context
func SetSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// GetSessionID retrieves the browser session identifier from the request context
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}

// SetAuthenticated marks the request context as belonging to an
// authenticated session
func SetAuthenticated(ctx context.Context, authenticated bool) context.Context {
	return context.WithValue(ctx, authenticatedKey, authenticated)
}

// IsAuthenticated reports whether the request context belongs to an
// authenticated session; unmarked contexts are anonymous
func IsAuthenticated(ctx context.Context) bool {
	if v, ok := ctx.Value(authenticatedKey).(bool); ok {
		return v
	}
	return false
}
