package services

import (
	"fmt"
	"strings"

	"github.com/wawire/kq-alumni-platform/internal/database"
	"github.com/wawire/kq-alumni-platform/internal/models"
)

// DuplicateGuard checks a candidate registration's identity fields
// against already-stored registrations. The check is advisory: the
// database enforces the same uniqueness with constraints, because two
// concurrent submissions can race between this check and the write.
type DuplicateGuard struct {
	registrationRepo *database.RegistrationRepository
}

// NewDuplicateGuard creates a new duplicate guard
func NewDuplicateGuard(registrationRepo *database.RegistrationRepository) *DuplicateGuard {
	return &DuplicateGuard{
		registrationRepo: registrationRepo,
	}
}

// Check reports the first identity field, in fixed priority order, that
// already exists among stored registrations. Empty fields are skipped;
// absence never conflicts. Returns nil when no conflict exists.
func (g *DuplicateGuard) Check(candidate *models.Registration) (*models.DuplicateIdentityError, error) {
	if v := NormalizeIdentifier(candidate.IDOrPassport); v != "" {
		exists, err := g.registrationRepo.ExistsIDOrPassport(v)
		if err != nil {
			return nil, fmt.Errorf("failed to check id_or_passport: %w", err)
		}
		if exists {
			return &models.DuplicateIdentityError{Field: models.FieldIDOrPassport}, nil
		}
	}

	if candidate.StaffNumber.Valid {
		if v := NormalizeIdentifier(candidate.StaffNumber.String); v != "" {
			exists, err := g.registrationRepo.ExistsStaffNumber(v)
			if err != nil {
				return nil, fmt.Errorf("failed to check staff_number: %w", err)
			}
			if exists {
				return &models.DuplicateIdentityError{Field: models.FieldStaffNumber}, nil
			}
		}
	}

	if v := NormalizeEmail(candidate.Email); v != "" {
		exists, err := g.registrationRepo.ExistsEmail(v)
		if err != nil {
			return nil, fmt.Errorf("failed to check email: %w", err)
		}
		if exists {
			return &models.DuplicateIdentityError{Field: models.FieldEmail}, nil
		}
	}

	// The mobile pair only participates when both halves are present
	if candidate.HasMobile() {
		exists, err := g.registrationRepo.ExistsMobile(
			strings.TrimSpace(candidate.MobileCountryCode.String),
			strings.TrimSpace(candidate.MobileNumber.String),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to check mobile: %w", err)
		}
		if exists {
			return &models.DuplicateIdentityError{Field: models.FieldMobile}, nil
		}
	}

	if candidate.ProfessionalNetworkHandle.Valid {
		if v := NormalizeHandle(candidate.ProfessionalNetworkHandle.String); v != "" {
			exists, err := g.registrationRepo.ExistsNetworkHandle(v)
			if err != nil {
				return nil, fmt.Errorf("failed to check professional_network_handle: %w", err)
			}
			if exists {
				return &models.DuplicateIdentityError{Field: models.FieldNetworkHandle}, nil
			}
		}
	}

	return nil, nil
}

// NormalizeIdentifier trims and uppercases IDs and staff numbers
func NormalizeIdentifier(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// NormalizeEmail trims and lowercases email addresses
func NormalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// NormalizeHandle trims and lowercases professional network handles
func NormalizeHandle(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
