package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// RegistrationStatus represents the workflow state of a registration
type RegistrationStatus string

const (
	StatusPending  RegistrationStatus = "pending"
	StatusApproved RegistrationStatus = "approved"
	StatusRejected RegistrationStatus = "rejected"
	StatusActive   RegistrationStatus = "active"
)

// MessageType identifies an outbound notification category.
// Each type is sent at most once automatically per registration.
type MessageType string

const (
	MessageConfirmation MessageType = "confirmation"
	MessageApproval     MessageType = "approval"
	MessageRejection    MessageType = "rejection"
)

// DedupField identifies one of the identity fields that must be unique
// across registrations when present. Ordering of conflict reporting is
// fixed: ID/passport, staff number, email, mobile, network handle.
type DedupField string

const (
	FieldIDOrPassport  DedupField = "id_or_passport"
	FieldStaffNumber   DedupField = "staff_number"
	FieldEmail         DedupField = "email"
	FieldMobile        DedupField = "mobile"
	FieldNetworkHandle DedupField = "professional_network_handle"
)

// DuplicateIdentityError reports which identity field collided with an
// existing registration. Surfaced synchronously to the submitting caller.
type DuplicateIdentityError struct {
	Field DedupField
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("duplicate identity: %s already registered", e.Field)
}

// Registration represents an alumni registration application
type Registration struct {
	ID uuid.UUID `json:"id" db:"id"`

	// Identity fields
	IDOrPassport              string         `json:"id_or_passport" db:"id_or_passport"`
	StaffNumber               NullString     `json:"staff_number" db:"staff_number"`
	FullName                  string         `json:"full_name" db:"full_name"`
	Email                     string         `json:"email" db:"email"`
	MobileCountryCode         NullString     `json:"mobile_country_code" db:"mobile_country_code"`
	MobileNumber              NullString     `json:"mobile_number" db:"mobile_number"`
	ProfessionalNetworkHandle NullString     `json:"professional_network_handle" db:"professional_network_handle"`
	EngagementPreferences     pq.StringArray `json:"engagement_preferences" db:"engagement_preferences"`

	// Workflow fields
	Status               RegistrationStatus `json:"status" db:"status"`
	RequiresManualReview bool               `json:"requires_manual_review" db:"requires_manual_review"`
	ManuallyReviewed     bool               `json:"manually_reviewed" db:"manually_reviewed"`
	VerificationAttempts int                `json:"verification_attempts" db:"verification_attempts"`
	NameSimilarityScore  NullInt64          `json:"name_similarity_score" db:"name_similarity_score"`
	NextAttemptAt        NullTime           `json:"next_attempt_at" db:"next_attempt_at"`

	// Notification idempotency guards
	ConfirmationSent   bool     `json:"confirmation_sent" db:"confirmation_sent"`
	ConfirmationSentAt NullTime `json:"confirmation_sent_at" db:"confirmation_sent_at"`
	ApprovalSent       bool     `json:"approval_sent" db:"approval_sent"`
	ApprovalSentAt     NullTime `json:"approval_sent_at" db:"approval_sent_at"`
	RejectionSent      bool     `json:"rejection_sent" db:"rejection_sent"`
	RejectionSentAt    NullTime `json:"rejection_sent_at" db:"rejection_sent_at"`

	// Verification token fields
	VerificationToken NullString `json:"-" db:"verification_token"`
	TokenExpiry       NullTime   `json:"token_expiry" db:"token_expiry"`

	// Audit fields
	ReviewedBy      NullString `json:"reviewed_by" db:"reviewed_by"`
	ReviewNotes     NullString `json:"review_notes" db:"review_notes"`
	RejectionReason NullString `json:"rejection_reason" db:"rejection_reason"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// HasMobile reports whether both halves of the mobile pair are present
func (r *Registration) HasMobile() bool {
	return r.MobileCountryCode.Valid && r.MobileCountryCode.String != "" &&
		r.MobileNumber.Valid && r.MobileNumber.String != ""
}

// NotificationSent reports the idempotency guard for the given message type
func (r *Registration) NotificationSent(t MessageType) bool {
	switch t {
	case MessageConfirmation:
		return r.ConfirmationSent
	case MessageApproval:
		return r.ApprovalSent
	case MessageRejection:
		return r.RejectionSent
	}
	return false
}
