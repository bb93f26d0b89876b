package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wawire/kq-alumni-platform/internal/database"
	"github.com/wawire/kq-alumni-platform/internal/models"
)

var (
	// ErrAlreadyApproved indicates the registration is already approved or active
	ErrAlreadyApproved = fmt.Errorf("registration is already approved")

	// ErrAlreadyRejected indicates the registration is already rejected
	ErrAlreadyRejected = fmt.Errorf("registration is already rejected")

	// ErrNotPending indicates the registration left Pending and cannot be
	// transitioned manually
	ErrNotPending = fmt.Errorf("registration is not pending")
)

// AdminService performs manual registration transitions on behalf of a
// human reviewer recorded in the audit trail
type AdminService struct {
	registrationRepo *database.RegistrationRepository
	tokens           *TokenService
	notifications    *NotificationService
	auditService     *AuditService
	logger           *logrus.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(
	registrationRepo *database.RegistrationRepository,
	tokens *TokenService,
	notifications *NotificationService,
	auditService *AuditService,
	logger *logrus.Logger,
) *AdminService {
	return &AdminService{
		registrationRepo: registrationRepo,
		tokens:           tokens,
		notifications:    notifications,
		auditService:     auditService,
		logger:           logger,
	}
}

// Approve manually transitions a Pending registration to Approved. Fails
// if the registration is already approved or active rather than silently
// ignoring the request.
func (s *AdminService) Approve(ctx context.Context, id uuid.UUID, actor ActorContext, notes string) (*models.Registration, error) {
	reg, err := s.registrationRepo.GetByID(id)
	if err != nil {
		return nil, err
	}

	switch reg.Status {
	case models.StatusApproved, models.StatusActive:
		return nil, ErrAlreadyApproved
	case models.StatusRejected:
		return nil, ErrNotPending
	}

	token, expiry, err := s.tokens.Issue()
	if err != nil {
		return nil, err
	}

	if err := s.registrationRepo.MarkApprovedManually(id, token, expiry, actor.ActorID.String(), notes); err != nil {
		if errors.Is(err, database.ErrStaleTransition) {
			return nil, ErrNotPending
		}
		return nil, err
	}

	if err := s.auditService.LogManualTransition(id, models.AuditManuallyApproved, models.StatusPending, models.StatusApproved, actor, map[string]interface{}{
		"notes": notes,
	}); err != nil {
		s.logger.WithError(err).WithField("registration_id", id).Error("Failed to audit manual approval")
	}

	reg.Status = models.StatusApproved
	reg.VerificationToken = models.NewNullString(token)
	reg.TokenExpiry = models.NewNullTime(expiry)

	if err := s.notifications.SendFor(ctx, reg, models.MessageApproval); err != nil {
		s.logger.WithError(err).WithField("registration_id", id).Warn("Approval notification failed")
	}

	return reg, nil
}

// Reject manually transitions a Pending registration to Rejected. Fails
// if the registration is already rejected.
func (s *AdminService) Reject(ctx context.Context, id uuid.UUID, actor ActorContext, reason, notes string) (*models.Registration, error) {
	reg, err := s.registrationRepo.GetByID(id)
	if err != nil {
		return nil, err
	}

	switch reg.Status {
	case models.StatusRejected:
		return nil, ErrAlreadyRejected
	case models.StatusApproved, models.StatusActive:
		return nil, ErrNotPending
	}

	if err := s.registrationRepo.MarkRejectedManually(id, actor.ActorID.String(), reason, notes); err != nil {
		if errors.Is(err, database.ErrStaleTransition) {
			return nil, ErrNotPending
		}
		return nil, err
	}

	if err := s.auditService.LogManualTransition(id, models.AuditManuallyRejected, models.StatusPending, models.StatusRejected, actor, map[string]interface{}{
		"reason": reason,
		"notes":  notes,
	}); err != nil {
		s.logger.WithError(err).WithField("registration_id", id).Error("Failed to audit manual rejection")
	}

	reg.Status = models.StatusRejected
	reg.RejectionReason = models.NewNullString(reason)

	if err := s.notifications.SendFor(ctx, reg, models.MessageRejection); err != nil {
		s.logger.WithError(err).WithField("registration_id", id).Warn("Rejection notification failed")
	}

	return reg, nil
}

// BulkResult reports the per-item outcome of a bulk operation
type BulkResult struct {
	RegistrationID   uuid.UUID `json:"registration_id"`
	Transitioned     bool      `json:"transitioned"`
	NotificationSent bool      `json:"notification_sent"`
	Error            string    `json:"error,omitempty"`
}

// BulkApprove approves many Pending registrations at once: one read for
// all targets, one write for all state changes, then per-item
// notifications with failure isolation. A failed send for one item never
// blocks the rest or undoes any approval.
func (s *AdminService) BulkApprove(ctx context.Context, ids []uuid.UUID, actor ActorContext, notes string) ([]BulkResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	tokens := make([]string, len(ids))
	var tokenExpiry time.Time
	for i := range ids {
		t, exp, err := s.tokens.Issue()
		if err != nil {
			return nil, err
		}
		tokens[i] = t
		tokenExpiry = exp
	}

	updated, err := s.registrationRepo.BulkApprove(ids, tokens, tokenExpiry, actor.ActorID.String(), notes)
	if err != nil {
		return nil, fmt.Errorf("bulk approve failed: %w", err)
	}

	updatedSet := make(map[uuid.UUID]bool, len(updated))
	for _, id := range updated {
		updatedSet[id] = true
	}

	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		result := BulkResult{RegistrationID: id, Transitioned: updatedSet[id]}

		if !result.Transitioned {
			result.Error = "not in pending state"
			results = append(results, result)
			continue
		}

		if err := s.auditService.LogManualTransition(id, models.AuditManuallyApproved, models.StatusPending, models.StatusApproved, actor, map[string]interface{}{
			"notes": notes,
			"bulk":  true,
		}); err != nil {
			s.logger.WithError(err).WithField("registration_id", id).Error("Failed to audit bulk approval")
		}

		if err := s.notifications.Send(ctx, id, models.MessageApproval); err != nil {
			// Isolated: record and continue to the next item
			result.Error = err.Error()
		} else {
			result.NotificationSent = true
		}

		results = append(results, result)
	}

	return results, nil
}

// BulkReject rejects many Pending registrations at once with the same
// batch shape and per-item notification isolation as BulkApprove
func (s *AdminService) BulkReject(ctx context.Context, ids []uuid.UUID, actor ActorContext, reason, notes string) ([]BulkResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	updated, err := s.registrationRepo.BulkReject(ids, actor.ActorID.String(), reason, notes)
	if err != nil {
		return nil, fmt.Errorf("bulk reject failed: %w", err)
	}

	updatedSet := make(map[uuid.UUID]bool, len(updated))
	for _, id := range updated {
		updatedSet[id] = true
	}

	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		result := BulkResult{RegistrationID: id, Transitioned: updatedSet[id]}

		if !result.Transitioned {
			result.Error = "not in pending state"
			results = append(results, result)
			continue
		}

		if err := s.auditService.LogManualTransition(id, models.AuditManuallyRejected, models.StatusPending, models.StatusRejected, actor, map[string]interface{}{
			"reason": reason,
			"notes":  notes,
			"bulk":   true,
		}); err != nil {
			s.logger.WithError(err).WithField("registration_id", id).Error("Failed to audit bulk rejection")
		}

		if err := s.notifications.Send(ctx, id, models.MessageRejection); err != nil {
			result.Error = err.Error()
		} else {
			result.NotificationSent = true
		}

		results = append(results, result)
	}

	return results, nil
}
