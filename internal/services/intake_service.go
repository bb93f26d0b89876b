package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/wawire/kq-alumni-platform/internal/database"
	"github.com/wawire/kq-alumni-platform/internal/models"
)

// IntakeRequest carries a fully-formed candidate registration. Field
// level input validation happens at the web form; this layer normalizes
// and enforces identity uniqueness.
type IntakeRequest struct {
	IDOrPassport              string
	StaffNumber               string
	FullName                  string
	Email                     string
	MobileCountryCode         string
	MobileNumber              string
	ProfessionalNetworkHandle string
	EngagementPreferences     []string
}

// IntakeService creates new Pending registrations and triggers the
// confirmation notification
type IntakeService struct {
	registrationRepo *database.RegistrationRepository
	duplicateGuard   *DuplicateGuard
	auditService     *AuditService
	notifications    *NotificationService
	logger           *logrus.Logger
}

// NewIntakeService creates a new intake service
func NewIntakeService(
	registrationRepo *database.RegistrationRepository,
	duplicateGuard *DuplicateGuard,
	auditService *AuditService,
	notifications *NotificationService,
	logger *logrus.Logger,
) *IntakeService {
	return &IntakeService{
		registrationRepo: registrationRepo,
		duplicateGuard:   duplicateGuard,
		auditService:     auditService,
		notifications:    notifications,
		logger:           logger,
	}
}

// Register creates a new Pending registration. On an identity conflict it
// fails with a DuplicateIdentityError and writes nothing. The
// confirmation send failure is logged and swallowed: it never rolls back
// the created registration or blocks the caller's success response.
func (s *IntakeService) Register(ctx context.Context, req IntakeRequest) (*models.Registration, error) {
	if strings.TrimSpace(req.IDOrPassport) == "" {
		return nil, fmt.Errorf("id_or_passport is required")
	}
	if strings.TrimSpace(req.FullName) == "" {
		return nil, fmt.Errorf("full_name is required")
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, fmt.Errorf("email is required")
	}

	now := time.Now()
	reg := &models.Registration{
		ID:                        uuid.New(),
		IDOrPassport:              NormalizeIdentifier(req.IDOrPassport),
		StaffNumber:               models.NewNullString(NormalizeIdentifier(req.StaffNumber)),
		FullName:                  strings.TrimSpace(req.FullName),
		Email:                     NormalizeEmail(req.Email),
		MobileCountryCode:         models.NewNullString(strings.TrimSpace(req.MobileCountryCode)),
		MobileNumber:              models.NewNullString(strings.TrimSpace(req.MobileNumber)),
		ProfessionalNetworkHandle: models.NewNullString(NormalizeHandle(req.ProfessionalNetworkHandle)),
		EngagementPreferences:     pq.StringArray(req.EngagementPreferences),
		Status:                    models.StatusPending,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}

	// Advisory pre-check; the database constraints catch races past it
	conflict, err := s.duplicateGuard.Check(reg)
	if err != nil {
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}
	if conflict != nil {
		return nil, conflict
	}

	if err := s.registrationRepo.Create(reg); err != nil {
		return nil, err
	}

	if err := s.auditService.LogRegistrationCreated(reg.ID); err != nil {
		s.logger.WithError(err).WithField("registration_id", reg.ID).Error("Failed to audit registration creation")
	}

	s.logger.WithFields(logrus.Fields{
		"registration_id": reg.ID,
		"email":           reg.Email,
	}).Info("Registration created")

	if err := s.notifications.SendFor(ctx, reg, models.MessageConfirmation); err != nil {
		// Swallowed: intake succeeded, the confirmation can be resent
		s.logger.WithError(err).WithField("registration_id", reg.ID).Warn("Confirmation notification failed")
	}

	return reg, nil
}
