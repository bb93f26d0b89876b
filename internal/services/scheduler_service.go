package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/wawire/kq-alumni-platform/internal/config"
	"github.com/wawire/kq-alumni-platform/internal/database"
	"github.com/wawire/kq-alumni-platform/internal/models"
)

// SchedulerService drives the automated approval state machine. On each
// pass it selects due Pending registrations, runs the verification
// decision for each, and applies the resulting transition. Registrations
// flagged for manual review are never selected; humans own those.
type SchedulerService struct {
	cron             *cron.Cron
	registrationRepo *database.RegistrationRepository
	verification     *VerificationService
	tokens           *TokenService
	notifications    *NotificationService
	auditService     *AuditService
	schedulerCfg     config.SchedulerConfig
	verificationCfg  config.VerificationConfig
	logger           *logrus.Logger

	// passMu keeps passes from overlapping when a slow pass outlives
	// its cron slot
	passMu sync.Mutex
}

// NewSchedulerService creates a new approval scheduler
func NewSchedulerService(
	registrationRepo *database.RegistrationRepository,
	verification *VerificationService,
	tokens *TokenService,
	notifications *NotificationService,
	auditService *AuditService,
	schedulerCfg config.SchedulerConfig,
	verificationCfg config.VerificationConfig,
	logger *logrus.Logger,
) *SchedulerService {
	return &SchedulerService{
		cron:             cron.New(cron.WithSeconds()),
		registrationRepo: registrationRepo,
		verification:     verification,
		tokens:           tokens,
		notifications:    notifications,
		auditService:     auditService,
		schedulerCfg:     schedulerCfg,
		verificationCfg:  verificationCfg,
		logger:           logger,
	}
}

// Start registers the cadence table and starts the scheduler. Cadence
// only tunes latency to decision; correctness is identical across specs.
func (s *SchedulerService) Start() error {
	specs := map[string]string{
		"business hours": s.schedulerCfg.BusinessHoursSpec,
		"off hours":      s.schedulerCfg.OffHoursSpec,
		"weekends":       s.schedulerCfg.WeekendSpec,
	}

	for name, spec := range specs {
		if _, err := s.cron.AddFunc(spec, s.verificationPassJob); err != nil {
			return fmt.Errorf("failed to schedule %s verification pass: %w", name, err)
		}
		s.logger.Infof("Scheduled verification pass (%s): %s", name, spec)
	}

	s.cron.Start()
	s.logger.Info("Approval scheduler started")

	return nil
}

// Stop stops the scheduler and waits for a running pass to finish
func (s *SchedulerService) Stop() {
	s.logger.Info("Stopping approval scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Approval scheduler stopped")
}

// verificationPassJob is the cron entry point
func (s *SchedulerService) verificationPassJob() {
	start := time.Now()

	processed, err := s.RunPass(context.Background())
	if err != nil {
		s.logger.WithError(err).Error("Verification pass failed")
		return
	}

	if processed > 0 {
		s.logger.WithFields(logrus.Fields{
			"processed": processed,
			"duration":  time.Since(start).String(),
		}).Info("Verification pass complete")
	}
}

// RunPass executes one scheduler pass and returns how many registrations
// were processed. Each registration is handled at most once per pass;
// ordering within the pass carries no meaning.
func (s *SchedulerService) RunPass(ctx context.Context) (int, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	due, err := s.registrationRepo.ListDueForVerification(
		time.Now(),
		s.verificationCfg.MaxAttempts,
		s.schedulerCfg.BatchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to select due registrations: %w", err)
	}

	if len(due) == 0 {
		return 0, nil
	}

	// Bounded worker pool; registrations share no state except the store
	sem := make(chan struct{}, s.schedulerCfg.Workers)
	var wg sync.WaitGroup

	for _, reg := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(reg *models.Registration) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.processOne(ctx, reg); err != nil {
				s.logger.WithError(err).WithField("registration_id", reg.ID).Error("Failed to process registration")
			}
		}(reg)
	}

	wg.Wait()

	return len(due), nil
}

// processOne runs the verification decision for a single registration
// and applies it. Transition failures from concurrent writers are
// treated as "someone else already decided" and skipped quietly.
func (s *SchedulerService) processOne(ctx context.Context, reg *models.Registration) error {
	decision, err := s.verification.Verify(ctx, reg)
	if err != nil {
		return fmt.Errorf("verification decision failed: %w", err)
	}

	switch decision.Outcome {
	case OutcomeApprove:
		return s.applyApproval(ctx, reg, decision)
	case OutcomeReject:
		return s.applyRejection(ctx, reg, decision)
	case OutcomeManualReview:
		return s.applyManualReview(reg, decision.Reason)
	case OutcomeLookupUnavailable:
		return s.applyLookupFailure(reg)
	}

	return fmt.Errorf("unknown verification outcome: %s", decision.Outcome)
}

func (s *SchedulerService) applyApproval(ctx context.Context, reg *models.Registration, decision Decision) error {
	token, expiry, err := s.tokens.Issue()
	if err != nil {
		return err
	}

	if err := s.registrationRepo.MarkApproved(reg.ID, decision.SimilarityScore, token, expiry); err != nil {
		if errors.Is(err, database.ErrStaleTransition) {
			return nil
		}
		return err
	}

	if err := s.auditService.LogAutomatedTransition(reg.ID, models.AuditAutoApproved, models.StatusPending, models.StatusApproved, map[string]interface{}{
		"similarity_score": decision.SimilarityScore,
	}); err != nil {
		s.logger.WithError(err).WithField("registration_id", reg.ID).Error("Failed to audit auto-approval")
	}

	// Keep the in-memory row consistent with what MarkApproved wrote
	reg.Status = models.StatusApproved
	reg.NameSimilarityScore = models.NewNullInt64(int64(decision.SimilarityScore))
	reg.VerificationToken = models.NewNullString(token)
	reg.TokenExpiry = models.NewNullTime(expiry)

	if err := s.notifications.SendFor(ctx, reg, models.MessageApproval); err != nil {
		// Absorbed: the approval stands, the mail can be resent
		s.logger.WithError(err).WithField("registration_id", reg.ID).Warn("Approval notification failed")
	}

	return nil
}

func (s *SchedulerService) applyRejection(ctx context.Context, reg *models.Registration, decision Decision) error {
	if err := s.registrationRepo.MarkRejected(reg.ID, decision.SimilarityScore, decision.Reason); err != nil {
		if errors.Is(err, database.ErrStaleTransition) {
			return nil
		}
		return err
	}

	if err := s.auditService.LogAutomatedTransition(reg.ID, models.AuditAutoRejected, models.StatusPending, models.StatusRejected, map[string]interface{}{
		"similarity_score": decision.SimilarityScore,
		"reason":           decision.Reason,
	}); err != nil {
		s.logger.WithError(err).WithField("registration_id", reg.ID).Error("Failed to audit auto-rejection")
	}

	reg.Status = models.StatusRejected
	reg.NameSimilarityScore = models.NewNullInt64(int64(decision.SimilarityScore))
	reg.RejectionReason = models.NewNullString(decision.Reason)

	if err := s.notifications.SendFor(ctx, reg, models.MessageRejection); err != nil {
		s.logger.WithError(err).WithField("registration_id", reg.ID).Warn("Rejection notification failed")
	}

	return nil
}

// applyManualReview parks the registration for a human. Status stays
// Pending and no automated email goes out.
func (s *SchedulerService) applyManualReview(reg *models.Registration, reason string) error {
	if err := s.registrationRepo.FlagManualReview(reg.ID, reason); err != nil {
		if errors.Is(err, database.ErrStaleTransition) {
			return nil
		}
		return err
	}

	if err := s.auditService.LogAutomatedTransition(reg.ID, models.AuditManualReviewFlagged, models.StatusPending, models.StatusPending, map[string]interface{}{
		"reason": reason,
	}); err != nil {
		s.logger.WithError(err).WithField("registration_id", reg.ID).Error("Failed to audit manual review flag")
	}

	return nil
}

// applyLookupFailure burns one attempt from the retry budget; exhausting
// the budget converts the registration to manual review
func (s *SchedulerService) applyLookupFailure(reg *models.Registration) error {
	if reg.VerificationAttempts+1 >= s.verificationCfg.MaxAttempts {
		return s.applyManualReview(reg, "verification service unavailable")
	}

	nextAttempt := time.Now().Add(s.verificationCfg.RetryInterval)
	if err := s.registrationRepo.RecordFailedAttempt(reg.ID, nextAttempt); err != nil {
		if errors.Is(err, database.ErrStaleTransition) {
			return nil
		}
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"registration_id": reg.ID,
		"attempts":        reg.VerificationAttempts + 1,
		"next_attempt_at": nextAttempt,
	}).Info("Verification deferred, registry unavailable")

	return nil
}
