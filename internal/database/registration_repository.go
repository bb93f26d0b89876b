package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/wawire/kq-alumni-platform/internal/models"
)

var (
	// ErrRegistrationNotFound indicates no registration matched the lookup
	ErrRegistrationNotFound = fmt.Errorf("registration not found")

	// ErrStaleTransition indicates a state transition matched no rows,
	// usually because a concurrent writer got there first
	ErrStaleTransition = fmt.Errorf("registration state changed concurrently")
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations
const uniqueViolation = "23505"

// registrationColumns is the canonical column list for scanning registrations
const registrationColumns = `
	id, id_or_passport, staff_number, full_name, email,
	mobile_country_code, mobile_number, professional_network_handle,
	engagement_preferences, status, requires_manual_review, manually_reviewed,
	verification_attempts, name_similarity_score, next_attempt_at,
	confirmation_sent, confirmation_sent_at, approval_sent, approval_sent_at,
	rejection_sent, rejection_sent_at, verification_token, token_expiry,
	reviewed_by, review_notes, rejection_reason, created_at, updated_at`

// RegistrationRepository handles registration database operations
type RegistrationRepository struct {
	db DB
}

// NewRegistrationRepository creates a new registration repository
func NewRegistrationRepository(db DB) *RegistrationRepository {
	return &RegistrationRepository{
		db: db,
	}
}

// Create inserts a new registration in Pending state. A unique constraint
// violation is mapped to a DuplicateIdentityError naming the offending
// field, so a race past the advisory dedup check still surfaces as a
// conflict rather than a silently admitted duplicate.
func (r *RegistrationRepository) Create(reg *models.Registration) error {
	query := `
		INSERT INTO registrations (
			id, id_or_passport, staff_number, full_name, email,
			mobile_country_code, mobile_number, professional_network_handle,
			engagement_preferences, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Exec(
		query,
		reg.ID,
		reg.IDOrPassport,
		reg.StaffNumber,
		reg.FullName,
		reg.Email,
		reg.MobileCountryCode,
		reg.MobileNumber,
		reg.ProfessionalNetworkHandle,
		pq.Array([]string(reg.EngagementPreferences)),
		reg.Status,
		reg.CreatedAt,
		reg.UpdatedAt,
	)
	if err != nil {
		if dup := duplicateFieldFromError(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to create registration: %w", err)
	}

	return nil
}

// duplicateFieldFromError maps a pq unique violation to the identity
// field whose constraint was hit, or nil for unrelated errors.
func duplicateFieldFromError(err error) *models.DuplicateIdentityError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != uniqueViolation {
		return nil
	}

	switch {
	case strings.Contains(pqErr.Constraint, "id_or_passport"):
		return &models.DuplicateIdentityError{Field: models.FieldIDOrPassport}
	case strings.Contains(pqErr.Constraint, "staff_number"):
		return &models.DuplicateIdentityError{Field: models.FieldStaffNumber}
	case strings.Contains(pqErr.Constraint, "email"):
		return &models.DuplicateIdentityError{Field: models.FieldEmail}
	case strings.Contains(pqErr.Constraint, "mobile"):
		return &models.DuplicateIdentityError{Field: models.FieldMobile}
	case strings.Contains(pqErr.Constraint, "network_handle"):
		return &models.DuplicateIdentityError{Field: models.FieldNetworkHandle}
	}
	// Unique violation on a constraint we don't recognize; treat the
	// primary identity field as the conflict rather than admitting it.
	return &models.DuplicateIdentityError{Field: models.FieldIDOrPassport}
}

// GetByID fetches a registration by its ID
func (r *RegistrationRepository) GetByID(id uuid.UUID) (*models.Registration, error) {
	var reg models.Registration
	query := `SELECT` + registrationColumns + ` FROM registrations WHERE id = $1`

	if err := r.db.Get(&reg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}

	return &reg, nil
}

// GetByToken fetches a registration holding the given verification token
func (r *RegistrationRepository) GetByToken(token string) (*models.Registration, error) {
	var reg models.Registration
	query := `SELECT` + registrationColumns + ` FROM registrations WHERE verification_token = $1`

	if err := r.db.Get(&reg, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to get registration by token: %w", err)
	}

	return &reg, nil
}

// ExistsIDOrPassport reports whether an ID/passport number is already registered
func (r *RegistrationRepository) ExistsIDOrPassport(value string) (bool, error) {
	return r.exists(`SELECT EXISTS(SELECT 1 FROM registrations WHERE UPPER(id_or_passport) = UPPER($1))`, value)
}

// ExistsStaffNumber reports whether a staff number is already registered
func (r *RegistrationRepository) ExistsStaffNumber(value string) (bool, error) {
	return r.exists(`SELECT EXISTS(SELECT 1 FROM registrations WHERE UPPER(staff_number) = UPPER($1))`, value)
}

// ExistsEmail reports whether an email address is already registered
func (r *RegistrationRepository) ExistsEmail(value string) (bool, error) {
	return r.exists(`SELECT EXISTS(SELECT 1 FROM registrations WHERE LOWER(email) = LOWER($1))`, value)
}

// ExistsMobile reports whether a mobile number pair is already registered
func (r *RegistrationRepository) ExistsMobile(countryCode, number string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM registrations WHERE mobile_country_code = $1 AND mobile_number = $2)`
	if err := r.db.Get(&exists, query, countryCode, number); err != nil {
		return false, fmt.Errorf("failed to check mobile: %w", err)
	}
	return exists, nil
}

// ExistsNetworkHandle reports whether a professional network handle is already registered
func (r *RegistrationRepository) ExistsNetworkHandle(value string) (bool, error) {
	return r.exists(`SELECT EXISTS(SELECT 1 FROM registrations WHERE LOWER(professional_network_handle) = LOWER($1))`, value)
}

func (r *RegistrationRepository) exists(query, value string) (bool, error) {
	var exists bool
	if err := r.db.Get(&exists, query, value); err != nil {
		return false, fmt.Errorf("failed to check uniqueness: %w", err)
	}
	return exists, nil
}

// ListDueForVerification selects Pending registrations eligible for an
// automated verification attempt: not flagged for manual review, inside
// the retry budget, and due for (re)attempt.
func (r *RegistrationRepository) ListDueForVerification(now time.Time, maxAttempts, limit int) ([]*models.Registration, error) {
	var regs []*models.Registration
	query := `
		SELECT` + registrationColumns + `
		FROM registrations
		WHERE status = 'pending'
		  AND requires_manual_review = false
		  AND verification_attempts < $1
		  AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
		ORDER BY created_at
		LIMIT $3
	`

	if err := r.db.Select(&regs, query, maxAttempts, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list due registrations: %w", err)
	}

	return regs, nil
}

// ListByIDs fetches all registrations for the given IDs in one read
func (r *RegistrationRepository) ListByIDs(ids []uuid.UUID) ([]*models.Registration, error) {
	var regs []*models.Registration
	query := `SELECT` + registrationColumns + ` FROM registrations WHERE id = ANY($1)`

	if err := r.db.Select(&regs, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}

	return regs, nil
}

// ListByStatus fetches registrations filtered by status, optionally
// restricted to those awaiting manual review
func (r *RegistrationRepository) ListByStatus(status models.RegistrationStatus, manualReviewOnly bool, limit, offset int) ([]*models.Registration, error) {
	var regs []*models.Registration
	query := `
		SELECT` + registrationColumns + `
		FROM registrations
		WHERE status = $1
		  AND ($2 = false OR requires_manual_review = true)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	if err := r.db.Select(&regs, query, status, manualReviewOnly, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list registrations by status: %w", err)
	}

	return regs, nil
}

// MarkApproved transitions a Pending registration to Approved with its
// verification token. The WHERE clause serializes against concurrent
// transitions: zero rows affected means someone else moved it first.
func (r *RegistrationRepository) MarkApproved(id uuid.UUID, score int, token string, tokenExpiry time.Time) error {
	query := `
		UPDATE registrations
		SET status = 'approved', name_similarity_score = $2,
		    verification_token = $3, token_expiry = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND requires_manual_review = false
	`
	return r.execTransition(query, id, score, token, tokenExpiry)
}

// MarkRejected transitions a Pending registration to Rejected
func (r *RegistrationRepository) MarkRejected(id uuid.UUID, score int, reason string) error {
	query := `
		UPDATE registrations
		SET status = 'rejected', name_similarity_score = $2,
		    rejection_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND requires_manual_review = false
	`
	return r.execTransition(query, id, score, reason)
}

// FlagManualReview marks a Pending registration as requiring human
// review. Status stays Pending; the scheduler will skip it from now on.
func (r *RegistrationRepository) FlagManualReview(id uuid.UUID, note string) error {
	query := `
		UPDATE registrations
		SET requires_manual_review = true, review_notes = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND requires_manual_review = false
	`
	return r.execTransition(query, id, note)
}

// RecordFailedAttempt increments the verification attempt counter after a
// transient lookup failure and schedules the next attempt
func (r *RegistrationRepository) RecordFailedAttempt(id uuid.UUID, nextAttemptAt time.Time) error {
	query := `
		UPDATE registrations
		SET verification_attempts = verification_attempts + 1,
		    next_attempt_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	return r.execTransition(query, id, nextAttemptAt)
}

// MarkApprovedManually transitions a Pending registration to Approved on
// behalf of a human reviewer. Manual review flags do not block this path.
func (r *RegistrationRepository) MarkApprovedManually(id uuid.UUID, token string, tokenExpiry time.Time, reviewedBy, notes string) error {
	query := `
		UPDATE registrations
		SET status = 'approved', manually_reviewed = true,
		    verification_token = $2, token_expiry = $3,
		    reviewed_by = $4, review_notes = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	return r.execTransition(query, id, token, tokenExpiry, reviewedBy, notes)
}

// MarkRejectedManually transitions a Pending registration to Rejected on
// behalf of a human reviewer
func (r *RegistrationRepository) MarkRejectedManually(id uuid.UUID, reviewedBy, reason, notes string) error {
	query := `
		UPDATE registrations
		SET status = 'rejected', manually_reviewed = true,
		    rejection_reason = $2, reviewed_by = $3, review_notes = $4,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	return r.execTransition(query, id, reason, reviewedBy, notes)
}

// MarkActive transitions an Approved registration to Active. The token is
// kept in place so a repeated verification click can be answered
// idempotently instead of erroring.
func (r *RegistrationRepository) MarkActive(id uuid.UUID) error {
	query := `
		UPDATE registrations
		SET status = 'active', updated_at = NOW()
		WHERE id = $1 AND status = 'approved'
	`
	return r.execTransition(query, id)
}

// MarkNotificationSent sets the send-idempotency guard for a message
// type. The guard is only ever set, never cleared.
func (r *RegistrationRepository) MarkNotificationSent(id uuid.UUID, msgType models.MessageType, sentAt time.Time) error {
	var query string
	switch msgType {
	case models.MessageConfirmation:
		query = `UPDATE registrations SET confirmation_sent = true, confirmation_sent_at = $2, updated_at = NOW() WHERE id = $1 AND confirmation_sent = false`
	case models.MessageApproval:
		query = `UPDATE registrations SET approval_sent = true, approval_sent_at = $2, updated_at = NOW() WHERE id = $1 AND approval_sent = false`
	case models.MessageRejection:
		query = `UPDATE registrations SET rejection_sent = true, rejection_sent_at = $2, updated_at = NOW() WHERE id = $1 AND rejection_sent = false`
	default:
		return fmt.Errorf("unknown message type: %s", msgType)
	}

	return r.execTransition(query, id, sentAt)
}

// BulkApprove transitions a batch of Pending registrations to Approved in
// a single write, assigning each its own verification token. Returns the
// IDs actually transitioned; rows already out of Pending are left alone.
func (r *RegistrationRepository) BulkApprove(ids []uuid.UUID, tokens []string, tokenExpiry time.Time, reviewedBy, notes string) ([]uuid.UUID, error) {
	if len(ids) != len(tokens) {
		return nil, fmt.Errorf("ids and tokens length mismatch")
	}

	query := `
		UPDATE registrations r
		SET status = 'approved', manually_reviewed = true,
		    verification_token = v.token, token_expiry = $3,
		    reviewed_by = $4, review_notes = $5, updated_at = NOW()
		FROM (SELECT UNNEST($1::uuid[]) AS id, UNNEST($2::text[]) AS token) v
		WHERE r.id = v.id AND r.status = 'pending'
		RETURNING r.id
	`

	return r.bulkTransition(query, pq.Array(ids), pq.Array(tokens), tokenExpiry, reviewedBy, notes)
}

// BulkReject transitions a batch of Pending registrations to Rejected in
// a single write. Returns the IDs actually transitioned.
func (r *RegistrationRepository) BulkReject(ids []uuid.UUID, reviewedBy, reason, notes string) ([]uuid.UUID, error) {
	query := `
		UPDATE registrations
		SET status = 'rejected', manually_reviewed = true,
		    rejection_reason = $2, reviewed_by = $3, review_notes = $4,
		    updated_at = NOW()
		WHERE id = ANY($1) AND status = 'pending'
		RETURNING id
	`

	return r.bulkTransition(query, pq.Array(ids), reason, reviewedBy, notes)
}

func (r *RegistrationRepository) bulkTransition(query string, args ...interface{}) ([]uuid.UUID, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to apply bulk transition: %w", err)
	}
	defer rows.Close()

	var updated []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan transitioned id: %w", err)
		}
		updated = append(updated, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transitioned ids: %w", err)
	}

	return updated, nil
}

// execTransition runs a guarded UPDATE and converts "no rows matched"
// into ErrStaleTransition
func (r *RegistrationRepository) execTransition(query string, args ...interface{}) error {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to apply transition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleTransition
	}

	return nil
}
