package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wawire/kq-alumni-platform/internal/database"
	"github.com/wawire/kq-alumni-platform/internal/models"
	"github.com/wawire/kq-alumni-platform/pkg/mailer"
)

// ErrAlreadySent indicates the message type was already delivered for
// this registration; manual resends refuse rather than double-send
var ErrAlreadySent = fmt.Errorf("notification already sent")

// NotificationService dispatches registration lifecycle emails. Each
// message type is delivered at most once per registration: the sent flag
// on the registration is the idempotency guard, and it is only set after
// a confirmed delivery.
type NotificationService struct {
	registrationRepo *database.RegistrationRepository
	auditService     *AuditService
	mail             mailer.Mailer
	baseURL          string
	timeout          time.Duration
	logger           *logrus.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(
	registrationRepo *database.RegistrationRepository,
	auditService *AuditService,
	mail mailer.Mailer,
	baseURL string,
	timeout time.Duration,
	logger *logrus.Logger,
) *NotificationService {
	return &NotificationService{
		registrationRepo: registrationRepo,
		auditService:     auditService,
		mail:             mail,
		baseURL:          baseURL,
		timeout:          timeout,
		logger:           logger,
	}
}

// Send delivers the given message type for a registration. It is a no-op
// when the type's sent flag is already true. Delivery outcome, duration
// and error detail are recorded in the audit trail regardless of
// success; a failure is reported to the caller but must never abort a
// containing batch.
func (s *NotificationService) Send(ctx context.Context, registrationID uuid.UUID, msgType models.MessageType) error {
	reg, err := s.registrationRepo.GetByID(registrationID)
	if err != nil {
		return fmt.Errorf("failed to load registration for notification: %w", err)
	}

	return s.send(ctx, reg, msgType)
}

// SendFor is like Send but uses an already-loaded registration
func (s *NotificationService) SendFor(ctx context.Context, reg *models.Registration, msgType models.MessageType) error {
	return s.send(ctx, reg, msgType)
}

func (s *NotificationService) send(ctx context.Context, reg *models.Registration, msgType models.MessageType) error {
	if reg.NotificationSent(msgType) {
		s.logger.WithFields(logrus.Fields{
			"registration_id": reg.ID,
			"message_type":    msgType,
		}).Debug("Notification already sent, skipping")
		return nil
	}

	msg, err := s.compose(reg, msgType)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	sendErr := s.mail.Send(sendCtx, msg)
	durationMs := time.Since(start).Milliseconds()

	if auditErr := s.auditService.LogNotificationOutcome(reg.ID, msgType, sendErr == nil, durationMs, sendErr); auditErr != nil {
		s.logger.WithError(auditErr).WithField("registration_id", reg.ID).Error("Failed to record notification outcome")
	}

	if sendErr != nil {
		s.logger.WithError(sendErr).WithFields(logrus.Fields{
			"registration_id": reg.ID,
			"message_type":    msgType,
			"duration_ms":     durationMs,
		}).Error("Notification delivery failed")
		return fmt.Errorf("failed to send %s notification: %w", msgType, sendErr)
	}

	if err := s.registrationRepo.MarkNotificationSent(reg.ID, msgType, time.Now()); err != nil {
		// The mail went out; a concurrent sender may have set the flag
		s.logger.WithError(err).WithFields(logrus.Fields{
			"registration_id": reg.ID,
			"message_type":    msgType,
		}).Warn("Failed to set notification sent flag")
		return nil
	}

	s.logger.WithFields(logrus.Fields{
		"registration_id": reg.ID,
		"message_type":    msgType,
		"duration_ms":     durationMs,
	}).Info("Notification delivered")

	return nil
}

// Resend re-attempts a previously failed delivery on explicit admin
// request. It still refuses to double-send a delivered message.
func (s *NotificationService) Resend(ctx context.Context, registrationID uuid.UUID, msgType models.MessageType) error {
	reg, err := s.registrationRepo.GetByID(registrationID)
	if err != nil {
		return fmt.Errorf("failed to load registration for resend: %w", err)
	}

	if reg.NotificationSent(msgType) {
		return ErrAlreadySent
	}

	return s.send(ctx, reg, msgType)
}

// compose builds the plain-text message for a type. Rich templating is
// an external concern; these bodies are the operational fallback.
func (s *NotificationService) compose(reg *models.Registration, msgType models.MessageType) (mailer.Message, error) {
	switch msgType {
	case models.MessageConfirmation:
		return mailer.Message{
			To:      reg.Email,
			Subject: "KQ Alumni Network - Registration Received",
			Body: fmt.Sprintf(
				"Dear %s,\n\nThank you for registering with the KQ Alumni Network. "+
					"Your application has been received and is being verified against "+
					"our personnel records. You will hear from us once verification "+
					"is complete.\n\nKQ Alumni Team\n", reg.FullName),
		}, nil
	case models.MessageApproval:
		link := fmt.Sprintf("%s/api/v1/verify?token=%s", s.baseURL, reg.VerificationToken.String)
		return mailer.Message{
			To:      reg.Email,
			Subject: "KQ Alumni Network - Registration Approved",
			Body: fmt.Sprintf(
				"Dear %s,\n\nYour alumni registration has been approved. Activate "+
					"your account within 30 days using the link below:\n\n%s\n\n"+
					"KQ Alumni Team\n", reg.FullName, link),
		}, nil
	case models.MessageRejection:
		reason := "your details could not be verified"
		if reg.RejectionReason.Valid && reg.RejectionReason.String != "" {
			reason = reg.RejectionReason.String
		}
		return mailer.Message{
			To:      reg.Email,
			Subject: "KQ Alumni Network - Registration Update",
			Body: fmt.Sprintf(
				"Dear %s,\n\nWe were unable to approve your alumni registration: "+
					"%s. If you believe this is an error, please contact the alumni "+
					"office.\n\nKQ Alumni Team\n", reg.FullName, reason),
		}, nil
	}

	return mailer.Message{}, fmt.Errorf("unknown message type: %s", msgType)
}
