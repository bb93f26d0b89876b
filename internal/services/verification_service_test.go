package services

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wawire/kq-alumni-platform/internal/models"
	"github.com/wawire/kq-alumni-platform/pkg/identity"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func pendingRegistration(fullName string) *models.Registration {
	return &models.Registration{
		ID:           uuid.New(),
		IDOrPassport: "A1234567",
		StaffNumber:  models.NewNullString("KQ001234"),
		FullName:     fullName,
		Email:        "john.doe@example.com",
		Status:       models.StatusPending,
	}
}

func TestVerify(t *testing.T) {
	t.Run("Exact Name Match Approves", func(t *testing.T) {
		registry := identity.NewMockRegistry()
		registry.AddRecord("KQ001234", "A1234567", identity.Record{
			StaffNumber: "KQ001234",
			FullName:    "John Doe",
			Department:  "Flight Operations",
			ExitDate:    time.Date(2019, 6, 30, 0, 0, 0, 0, time.UTC),
		})
		svc := NewVerificationService(registry, 80, false, testLogger())

		decision, err := svc.Verify(context.Background(), pendingRegistration("John Doe"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeApprove, decision.Outcome)
		assert.True(t, decision.ScoreComputed)
		assert.Equal(t, 100, decision.SimilarityScore)
		require.NotNil(t, decision.MatchedRecord)
		assert.Equal(t, "Flight Operations", decision.MatchedRecord.Department)
	})

	t.Run("Minor Typo Still Approves", func(t *testing.T) {
		registry := identity.NewMockRegistry()
		registry.AddRecord("KQ001234", "A1234567", identity.Record{
			StaffNumber: "KQ001234",
			FullName:    "John Doe",
		})
		svc := NewVerificationService(registry, 80, false, testLogger())

		decision, err := svc.Verify(context.Background(), pendingRegistration("Jon Doe"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeApprove, decision.Outcome)
		assert.GreaterOrEqual(t, decision.SimilarityScore, 80)
	})

	t.Run("Name Mismatch Rejects", func(t *testing.T) {
		registry := identity.NewMockRegistry()
		registry.AddRecord("KQ001234", "A1234567", identity.Record{
			StaffNumber: "KQ001234",
			FullName:    "Margaret Atieno Odhiambo",
		})
		svc := NewVerificationService(registry, 80, false, testLogger())

		decision, err := svc.Verify(context.Background(), pendingRegistration("John Doe"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeReject, decision.Outcome)
		assert.Equal(t, "name does not match records", decision.Reason)
		assert.True(t, decision.ScoreComputed)
		assert.Less(t, decision.SimilarityScore, 80)
	})

	t.Run("Trusted Mode Skips Name Comparison", func(t *testing.T) {
		registry := identity.NewMockRegistry()
		registry.AddRecord("KQ001234", "A1234567", identity.Record{
			StaffNumber: "KQ001234",
			FullName:    "Completely Different Name",
		})
		svc := NewVerificationService(registry, 80, true, testLogger())

		decision, err := svc.Verify(context.Background(), pendingRegistration("John Doe"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeApprove, decision.Outcome)
		assert.Equal(t, 100, decision.SimilarityScore)
	})

	t.Run("Identity Not Found Flags Manual Review", func(t *testing.T) {
		registry := identity.NewMockRegistry()
		svc := NewVerificationService(registry, 80, false, testLogger())

		decision, err := svc.Verify(context.Background(), pendingRegistration("John Doe"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeManualReview, decision.Outcome)
		assert.Equal(t, "identity not found", decision.Reason)
		assert.False(t, decision.ScoreComputed)
	})

	t.Run("Registry Unavailable Defers", func(t *testing.T) {
		registry := identity.NewMockRegistry()
		registry.SetUnavailable(true)
		svc := NewVerificationService(registry, 80, false, testLogger())

		decision, err := svc.Verify(context.Background(), pendingRegistration("John Doe"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeLookupUnavailable, decision.Outcome)
		assert.Equal(t, "verification service unavailable", decision.Reason)
	})

	t.Run("Falls Back To National ID Lookup", func(t *testing.T) {
		registry := identity.NewMockRegistry()
		registry.AddRecord("", "A1234567", identity.Record{
			FullName: "John Doe",
		})
		svc := NewVerificationService(registry, 80, false, testLogger())

		reg := pendingRegistration("John Doe")
		reg.StaffNumber = models.NullString{}

		decision, err := svc.Verify(context.Background(), reg)
		require.NoError(t, err)
		assert.Equal(t, OutcomeApprove, decision.Outcome)
	})
}
