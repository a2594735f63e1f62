package repositories

import (
	"database/sql"
	"time"

	"feidelogin/models"
)

// AuditRepository handles audit log persistence
type AuditRepository interface {
	Create(entry *models.AuditLogEntry) error
	ListBySession(sessionID string) ([]models.AuditLogEntry, error)
}

type sqliteAuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) AuditRepository {
	return &sqliteAuditRepository{db: db}
}

// Create inserts a new audit log entry
func (r *sqliteAuditRepository) Create(entry *models.AuditLogEntry) error {
	query := `
		INSERT INTO audit_log (timestamp, session_id, event, path, detail, user_agent, ip_address)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := r.db.Exec(
		query,
		ts,
		entry.SessionID,
		entry.Event,
		entry.Path,
		entry.Detail,
		entry.UserAgent,
		entry.IPAddress,
	)

	return err
}

// ListBySession returns all audit entries recorded for a session, oldest
// first
func (r *sqliteAuditRepository) ListBySession(sessionID string) ([]models.AuditLogEntry, error) {
	rows, err := r.db.Query(`
		SELECT id, timestamp, session_id, event, path, detail, user_agent, ip_address
		FROM audit_log
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditLogEntry
	for rows.Next() {
		var entry models.AuditLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&entry.SessionID,
			&entry.Event,
			&entry.Path,
			&entry.Detail,
			&entry.UserAgent,
			&entry.IPAddress,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
