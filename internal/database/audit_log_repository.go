package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wawire/kq-alumni-platform/internal/models"
)

// AuditLogRepository handles the append-only registration audit trail
type AuditLogRepository struct {
	db DB
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db DB) *AuditLogRepository {
	return &AuditLogRepository{
		db: db,
	}
}

// Append records one audit log entry. Entries are insert-only; there is
// no update or delete path.
func (r *AuditLogRepository) Append(entry *models.AuditLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_log_entries (
			id, registration_id, action, previous_status, new_status,
			automated, actor_id, ip_address, user_agent, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.Exec(
		query,
		entry.ID,
		entry.RegistrationID,
		entry.Action,
		entry.PreviousStatus,
		entry.NewStatus,
		entry.Automated,
		entry.ActorID,
		entry.IPAddress,
		entry.UserAgent,
		detailsJSON,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit log entry: %w", err)
	}

	return nil
}

// ListByRegistration returns the audit trail for one registration,
// oldest first
func (r *AuditLogRepository) ListByRegistration(registrationID uuid.UUID) ([]*models.AuditLogEntry, error) {
	query := `
		SELECT id, registration_id, action, previous_status, new_status,
		       automated, actor_id, ip_address, user_agent, details, created_at
		FROM audit_log_entries
		WHERE registration_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Query(query, registrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLogEntry
	for rows.Next() {
		var entry models.AuditLogEntry
		var detailsJSON []byte

		if err := rows.Scan(
			&entry.ID,
			&entry.RegistrationID,
			&entry.Action,
			&entry.PreviousStatus,
			&entry.NewStatus,
			&entry.Automated,
			&entry.ActorID,
			&entry.IPAddress,
			&entry.UserAgent,
			&detailsJSON,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log entry: %w", err)
		}

		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
			}
		}

		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log entries: %w", err)
	}

	return entries, nil
}
