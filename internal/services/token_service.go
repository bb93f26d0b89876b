package services

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wawire/kq-alumni-platform/internal/database"
	"github.com/wawire/kq-alumni-platform/internal/models"
)

// tokenBytes sized so tokens are unguessable (256-bit)
const tokenBytes = 32

var (
	// ErrTokenNotFound indicates no approved registration holds this token
	ErrTokenNotFound = fmt.Errorf("verification token not found")

	// ErrTokenExpired indicates the token's expiry has passed
	ErrTokenExpired = fmt.Errorf("verification token has expired")
)

// TokenService issues and validates the time-limited tokens that move a
// registration from Approved to Active
type TokenService struct {
	registrationRepo *database.RegistrationRepository
	auditService     *AuditService
	ttl              time.Duration
	logger           *logrus.Logger
}

// NewTokenService creates a new verification token service
func NewTokenService(registrationRepo *database.RegistrationRepository, auditService *AuditService, ttl time.Duration, logger *logrus.Logger) *TokenService {
	return &TokenService{
		registrationRepo: registrationRepo,
		auditService:     auditService,
		ttl:              ttl,
		logger:           logger,
	}
}

// Issue generates an opaque token and its expiry. The caller persists
// both as part of the Approved transition.
func (s *TokenService) Issue() (token string, expiry time.Time, err error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate verification token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), time.Now().Add(s.ttl), nil
}

// ValidationResult is the outcome of a successful token validation
type ValidationResult struct {
	Registration    *models.Registration
	AlreadyVerified bool
}

// Validate resolves a token to its registration and activates the
// account. A second validation of an already-Active registration's token
// succeeds idempotently so double-clicked links don't error.
func (s *TokenService) Validate(token string) (*ValidationResult, error) {
	if token == "" {
		return nil, ErrTokenNotFound
	}

	reg, err := s.registrationRepo.GetByToken(token)
	if err != nil {
		if errors.Is(err, database.ErrRegistrationNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to resolve verification token: %w", err)
	}

	if reg.Status == models.StatusActive {
		return &ValidationResult{Registration: reg, AlreadyVerified: true}, nil
	}

	if reg.Status != models.StatusApproved {
		// Tokens are only meaningful while Approved
		return nil, ErrTokenNotFound
	}

	if !reg.TokenExpiry.Valid || time.Now().After(reg.TokenExpiry.Time) {
		return nil, ErrTokenExpired
	}

	if err := s.registrationRepo.MarkActive(reg.ID); err != nil {
		if errors.Is(err, database.ErrStaleTransition) {
			// Lost the race to a concurrent validation of the same token
			return s.revalidate(reg.ID)
		}
		return nil, fmt.Errorf("failed to activate registration: %w", err)
	}

	if err := s.auditService.LogAutomatedTransition(reg.ID, models.AuditAccountActivated, models.StatusApproved, models.StatusActive, nil); err != nil {
		// Activation already happened; don't fail the user over the audit row
		s.logger.WithError(err).WithField("registration_id", reg.ID).Error("Failed to write activation audit entry")
	}

	reg.Status = models.StatusActive
	return &ValidationResult{Registration: reg}, nil
}

func (s *TokenService) revalidate(id uuid.UUID) (*ValidationResult, error) {
	reg, err := s.registrationRepo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read registration: %w", err)
	}
	if reg.Status == models.StatusActive {
		return &ValidationResult{Registration: reg, AlreadyVerified: true}, nil
	}
	return nil, ErrTokenNotFound
}
