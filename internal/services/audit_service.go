package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/wawire/kq-alumni-platform/internal/database"
	"github.com/wawire/kq-alumni-platform/internal/models"
	"github.com/wawire/kq-alumni-platform/internal/utils"
)

// AuditService records registration state transitions and notification
// outcomes in the append-only audit trail
type AuditService struct {
	auditRepo *database.AuditLogRepository
}

// NewAuditService creates a new audit service
func NewAuditService(auditRepo *database.AuditLogRepository) *AuditService {
	return &AuditService{
		auditRepo: auditRepo,
	}
}

// ActorContext carries who performed a manual action and from where
type ActorContext struct {
	ActorID   uuid.UUID
	IPAddress string
	UserAgent string
}

// LogRegistrationCreated records the initial Pending creation
func (s *AuditService) LogRegistrationCreated(registrationID uuid.UUID) error {
	return s.auditRepo.Append(&models.AuditLogEntry{
		RegistrationID: registrationID,
		Action:         models.AuditRegistrationCreated,
		NewStatus:      models.NewNullString(string(models.StatusPending)),
		Automated:      true,
	})
}

// LogAutomatedTransition records a transition performed by the scheduler
func (s *AuditService) LogAutomatedTransition(registrationID uuid.UUID, action string, previous, next models.RegistrationStatus, details map[string]interface{}) error {
	return s.auditRepo.Append(&models.AuditLogEntry{
		RegistrationID: registrationID,
		Action:         action,
		PreviousStatus: models.NewNullString(string(previous)),
		NewStatus:      models.NewNullString(string(next)),
		Automated:      true,
		Details:        details,
	})
}

// LogManualTransition records a transition performed by an admin,
// including parsed device information for the audit trail
func (s *AuditService) LogManualTransition(registrationID uuid.UUID, action string, previous, next models.RegistrationStatus, actor ActorContext, details map[string]interface{}) error {
	if details == nil {
		details = make(map[string]interface{})
	}
	details["device_info"] = utils.ParseUserAgent(actor.UserAgent)

	return s.auditRepo.Append(&models.AuditLogEntry{
		RegistrationID: registrationID,
		Action:         action,
		PreviousStatus: models.NewNullString(string(previous)),
		NewStatus:      models.NewNullString(string(next)),
		Automated:      false,
		ActorID:        models.NewNullString(actor.ActorID.String()),
		IPAddress:      models.NewNullString(actor.IPAddress),
		UserAgent:      models.NewNullString(actor.UserAgent),
		Details:        details,
	})
}

// LogNotificationOutcome records one notification delivery attempt with
// its duration and error detail, success or not
func (s *AuditService) LogNotificationOutcome(registrationID uuid.UUID, msgType models.MessageType, success bool, durationMs int64, sendErr error) error {
	action := models.AuditNotificationFailed
	if success {
		action = models.AuditNotificationSent
	}

	details := map[string]interface{}{
		"message_type": string(msgType),
		"duration_ms":  durationMs,
	}
	if sendErr != nil {
		details["error"] = sendErr.Error()
	}

	return s.auditRepo.Append(&models.AuditLogEntry{
		RegistrationID: registrationID,
		Action:         action,
		Automated:      true,
		Details:        details,
	})
}

// History returns the full audit trail for one registration
func (s *AuditService) History(registrationID uuid.UUID) ([]*models.AuditLogEntry, error) {
	entries, err := s.auditRepo.ListByRegistration(registrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit history: %w", err)
	}
	return entries, nil
}
