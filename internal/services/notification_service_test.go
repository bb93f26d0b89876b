package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wawire/kq-alumni-platform/internal/database"
	"github.com/wawire/kq-alumni-platform/internal/models"
	"github.com/wawire/kq-alumni-platform/pkg/mailer"
)

// fakeMailer records sent messages and can be told to fail, either
// outright or after a number of successful deliveries
type fakeMailer struct {
	mu        sync.Mutex
	sent      []mailer.Message
	failErr   error
	failAfter int
}

func (f *fakeMailer) Send(ctx context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	if f.failAfter > 0 && len(f.sent) >= f.failAfter {
		return fmt.Errorf("smtp: mailbox unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newNotificationFixture(t *testing.T) (*NotificationService, sqlmock.Sqlmock, *fakeMailer) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mockDB := &mockDatabase{db: sqlx.NewDb(db, "sqlmock")}
	repo := database.NewRegistrationRepository(mockDB)
	audit := NewAuditService(database.NewAuditLogRepository(mockDB))
	mail := &fakeMailer{}

	svc := NewNotificationService(repo, audit, mail, "https://alumni.kq.example.com", 10*time.Second, testLogger())
	return svc, mock, mail
}

func approvedRegistration(id uuid.UUID) *models.Registration {
	return &models.Registration{
		ID:                id,
		IDOrPassport:      "A1234567",
		FullName:          "John Doe",
		Email:             "john.doe@example.com",
		Status:            models.StatusApproved,
		VerificationToken: models.NewNullString("tok-abc"),
		TokenExpiry:       models.NewNullTime(time.Now().Add(30 * 24 * time.Hour)),
	}
}

func TestSendNotification(t *testing.T) {
	t.Run("Approval Includes Verification Link", func(t *testing.T) {
		svc, mock, mail := newNotificationFixture(t)
		reg := approvedRegistration(uuid.New())

		mock.ExpectExec(`INSERT INTO audit_log_entries`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`UPDATE registrations SET approval_sent = true`).
			WithArgs(reg.ID, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := svc.SendFor(context.Background(), reg, models.MessageApproval)
		require.NoError(t, err)
		require.Equal(t, 1, mail.sentCount())
		assert.Equal(t, "john.doe@example.com", mail.sent[0].To)
		assert.Contains(t, mail.sent[0].Body, "https://alumni.kq.example.com/api/v1/verify?token=tok-abc")

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Already Sent Is A No-Op", func(t *testing.T) {
		svc, mock, mail := newNotificationFixture(t)
		reg := approvedRegistration(uuid.New())
		reg.ApprovalSent = true

		err := svc.SendFor(context.Background(), reg, models.MessageApproval)
		require.NoError(t, err)
		assert.Equal(t, 0, mail.sentCount())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Delivery Failure Leaves Flag Unset", func(t *testing.T) {
		svc, mock, mail := newNotificationFixture(t)
		mail.failErr = fmt.Errorf("smtp: connection refused")
		reg := approvedRegistration(uuid.New())

		// The failed outcome is still audited; the sent flag is not touched
		mock.ExpectExec(`INSERT INTO audit_log_entries`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := svc.SendFor(context.Background(), reg, models.MessageApproval)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to send approval notification")

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Flag Race After Delivery Is Tolerated", func(t *testing.T) {
		svc, mock, _ := newNotificationFixture(t)
		reg := approvedRegistration(uuid.New())

		mock.ExpectExec(`INSERT INTO audit_log_entries`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`UPDATE registrations SET approval_sent = true`).
			WithArgs(reg.ID, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := svc.SendFor(context.Background(), reg, models.MessageApproval)
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rejection Uses Recorded Reason", func(t *testing.T) {
		svc, mock, mail := newNotificationFixture(t)
		reg := approvedRegistration(uuid.New())
		reg.Status = models.StatusRejected
		reg.RejectionReason = models.NewNullString("name does not match records")

		mock.ExpectExec(`INSERT INTO audit_log_entries`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`UPDATE registrations SET rejection_sent = true`).
			WithArgs(reg.ID, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := svc.SendFor(context.Background(), reg, models.MessageRejection)
		require.NoError(t, err)
		require.Equal(t, 1, mail.sentCount())
		assert.Contains(t, mail.sent[0].Body, "name does not match records")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResendNotification(t *testing.T) {
	t.Run("Refuses Delivered Message", func(t *testing.T) {
		svc, mock, _ := newNotificationFixture(t)
		id := uuid.New()

		rows := registrationRow(sqlmock.NewRows(registrationTestColumns), id, "approved", "tok-abc", time.Now().Add(time.Hour))
		mock.ExpectQuery(`SELECT (.+) FROM registrations WHERE id`).
			WithArgs(id).
			WillReturnRows(rows)

		err := svc.Resend(context.Background(), id, models.MessageConfirmation)
		assert.ErrorIs(t, err, ErrAlreadySent)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Resends Failed Message", func(t *testing.T) {
		svc, mock, mail := newNotificationFixture(t)
		id := uuid.New()

		// Approval was never delivered; approval_sent is still false
		rows := registrationRow(sqlmock.NewRows(registrationTestColumns), id, "approved", "tok-abc", time.Now().Add(time.Hour))
		mock.ExpectQuery(`SELECT (.+) FROM registrations WHERE id`).
			WithArgs(id).
			WillReturnRows(rows)
		mock.ExpectExec(`INSERT INTO audit_log_entries`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`UPDATE registrations SET approval_sent = true`).
			WithArgs(id, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := svc.Resend(context.Background(), id, models.MessageApproval)
		require.NoError(t, err)
		assert.Equal(t, 1, mail.sentCount())

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
