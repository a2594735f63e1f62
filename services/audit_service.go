package services

import (
	"log"
	"net/http"
	"strings"
	"time"

	"feidelogin/models"
	"feidelogin/repositories"
	"feidelogin/userctx"
)

// AuditService records authentication-flow events to the audit log.
type AuditService struct {
	repo repositories.AuditRepository
}

// NewAuditService creates a new audit service
func NewAuditService(repo repositories.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

// Record persists an audit entry for the request. Writes happen
// asynchronously so the request path is never blocked on the database.
func (s *AuditService) Record(r *http.Request, event, detail string) {
	if s == nil || s.repo == nil {
		return
	}

	entry := &models.AuditLogEntry{
		Timestamp: time.Now(),
		SessionID: userctx.GetSessionID(r.Context()),
		Event:     event,
		Path:      r.URL.Path,
		Detail:    detail,
		UserAgent: r.UserAgent(),
		IPAddress: clientIP(r),
	}

	go func() {
		if err := s.repo.Create(entry); err != nil {
			log.Printf("failed to create audit log entry: %v", err)
		}
	}()
}

// clientIP extracts the client address, checking proxy headers first
func clientIP(r *http.Request) string {
	// X-Forwarded-For may hold a chain; the first entry is the client
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}

	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
