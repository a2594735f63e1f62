package models

import "time"

// AuditLogEntry represents a single authentication-flow event
type AuditLogEntry struct {
	ID        int64
	Timestamp time.Time
	SessionID string
	Event     string
	Path      string
	Detail    string
	UserAgent string
	IPAddress string
}

// Audit event names recorded by the flow controller
const (
	EventLoginRedirect  = "login_redirect"
	EventCallbackOK     = "callback_ok"
	EventCallbackFailed = "callback_failed"
	EventProtectedView  = "protected_view"
	EventLogout         = "logout"
)
