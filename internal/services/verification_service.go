package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/wawire/kq-alumni-platform/internal/models"
	"github.com/wawire/kq-alumni-platform/pkg/identity"
	"github.com/wawire/kq-alumni-platform/pkg/namematch"
)

// VerificationOutcome is the decision reached for one Pending registration
type VerificationOutcome string

const (
	OutcomeApprove           VerificationOutcome = "approve"
	OutcomeReject            VerificationOutcome = "reject"
	OutcomeManualReview      VerificationOutcome = "manual_review"
	OutcomeLookupUnavailable VerificationOutcome = "lookup_unavailable"
)

// Decision carries the verification outcome and its supporting evidence
type Decision struct {
	Outcome         VerificationOutcome
	Reason          string
	SimilarityScore int              // valid only when ScoreComputed is true
	ScoreComputed   bool
	MatchedRecord   *identity.Record // set when the registry found a candidate
}

// VerificationService decides whether a Pending registration's identity
// can be trusted. Decision logic is deterministic; the only side effect
// is the single registry lookup.
type VerificationService struct {
	registry            identity.Registry
	similarityThreshold int
	trustedMode         bool
	logger              *logrus.Logger
}

// NewVerificationService creates a new verification service
func NewVerificationService(registry identity.Registry, similarityThreshold int, trustedMode bool, logger *logrus.Logger) *VerificationService {
	return &VerificationService{
		registry:            registry,
		similarityThreshold: similarityThreshold,
		trustedMode:         trustedMode,
		logger:              logger,
	}
}

// Verify produces a decision for one Pending registration. Registry
// outages surface as OutcomeLookupUnavailable so the scheduler retries
// later instead of rejecting prematurely.
func (s *VerificationService) Verify(ctx context.Context, reg *models.Registration) (Decision, error) {
	query := identity.Query{
		IDOrPassport: reg.IDOrPassport,
	}
	if reg.StaffNumber.Valid {
		query.StaffNumber = reg.StaffNumber.String
	}

	record, err := s.registry.Lookup(ctx, query)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return Decision{
				Outcome: OutcomeManualReview,
				Reason:  "identity not found",
			}, nil
		}
		if errors.Is(err, identity.ErrUnavailable) {
			s.logger.WithFields(logrus.Fields{
				"registration_id": reg.ID,
			}).Warn("Personnel registry unavailable, verification deferred")
			return Decision{
				Outcome: OutcomeLookupUnavailable,
				Reason:  "verification service unavailable",
			}, nil
		}
		return Decision{}, fmt.Errorf("identity lookup failed: %w", err)
	}

	score := 100
	if !s.trustedMode {
		score = namematch.Similarity(reg.FullName, record.FullName)
	}

	s.logger.WithFields(logrus.Fields{
		"registration_id": reg.ID,
		"score":           score,
		"trusted_mode":    s.trustedMode,
	}).Debug("Computed name similarity")

	if score >= s.similarityThreshold {
		return Decision{
			Outcome:         OutcomeApprove,
			SimilarityScore: score,
			ScoreComputed:   true,
			MatchedRecord:   record,
		}, nil
	}

	return Decision{
		Outcome:         OutcomeReject,
		Reason:          "name does not match records",
		SimilarityScore: score,
		ScoreComputed:   true,
		MatchedRecord:   record,
	}, nil
}
