package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded against registrations
const (
	AuditRegistrationCreated = "registration_created"
	AuditAutoApproved        = "auto_approved"
	AuditAutoRejected        = "auto_rejected"
	AuditManualReviewFlagged = "manual_review_flagged"
	AuditManuallyApproved    = "manually_approved"
	AuditManuallyRejected    = "manually_rejected"
	AuditAccountActivated    = "account_activated"
	AuditNotificationSent    = "notification_sent"
	AuditNotificationFailed  = "notification_failed"
)

// AuditLogEntry is an append-only record of a registration state
// transition or notification outcome. Entries are never mutated.
type AuditLogEntry struct {
	ID             uuid.UUID              `json:"id" db:"id"`
	RegistrationID uuid.UUID              `json:"registration_id" db:"registration_id"`
	Action         string                 `json:"action" db:"action"`
	PreviousStatus NullString             `json:"previous_status" db:"previous_status"`
	NewStatus      NullString             `json:"new_status" db:"new_status"`
	Automated      bool                   `json:"automated" db:"automated"`
	ActorID        NullString             `json:"actor_id" db:"actor_id"`
	IPAddress      NullString             `json:"ip_address" db:"ip_address"`
	UserAgent      NullString             `json:"user_agent" db:"user_agent"`
	Details        map[string]interface{} `json:"details" db:"-"`
	CreatedAt      time.Time              `json:"created_at" db:"created_at"`
}
