package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wawire/kq-alumni-platform/internal/database"
	"github.com/wawire/kq-alumni-platform/internal/models"
)

func newIntakeFixture(t *testing.T) (*IntakeService, sqlmock.Sqlmock, *fakeMailer) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mockDB := &mockDatabase{db: sqlx.NewDb(db, "sqlmock")}
	repo := database.NewRegistrationRepository(mockDB)
	audit := NewAuditService(database.NewAuditLogRepository(mockDB))
	mail := &fakeMailer{}
	notifications := NewNotificationService(repo, audit, mail, "https://alumni.kq.example.com", 10*time.Second, testLogger())

	svc := NewIntakeService(repo, NewDuplicateGuard(repo), audit, notifications, testLogger())
	return svc, mock, mail
}

func pqUniqueViolation(constraint string) error {
	return &pq.Error{Code: "23505", Constraint: constraint}
}

func validIntakeRequest() IntakeRequest {
	return IntakeRequest{
		IDOrPassport:          " a1234567 ",
		StaffNumber:           "kq001234",
		FullName:              "  John Doe ",
		Email:                 "John.Doe@Example.com",
		MobileCountryCode:     "+254",
		MobileNumber:          "712345678",
		EngagementPreferences: []string{"newsletter", "events"},
	}
}

func TestRegister(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		svc, mock, mail := newIntakeFixture(t)

		// Four dedup probes: the handle is absent and skipped
		expectExists(mock, `WHERE UPPER\(id_or_passport\)`, false)
		expectExists(mock, `WHERE UPPER\(staff_number\)`, false)
		expectExists(mock, `WHERE LOWER\(email\)`, false)
		expectExists(mock, `WHERE mobile_country_code`, false)

		mock.ExpectExec(`INSERT INTO registrations`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`INSERT INTO audit_log_entries`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		// confirmation notification: outcome audit row plus the sent flag
		mock.ExpectExec(`INSERT INTO audit_log_entries`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`UPDATE registrations SET confirmation_sent = true`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		reg, err := svc.Register(context.Background(), validIntakeRequest())
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, reg.Status)
		assert.Equal(t, "A1234567", reg.IDOrPassport)
		assert.Equal(t, "KQ001234", reg.StaffNumber.String)
		assert.Equal(t, "John Doe", reg.FullName)
		assert.Equal(t, "john.doe@example.com", reg.Email)
		assert.Equal(t, 1, mail.sentCount())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Staff Number Is Optional", func(t *testing.T) {
		svc, mock, mail := newIntakeFixture(t)

		// The staff number probe is skipped along with the handle probe
		expectExists(mock, `WHERE UPPER\(id_or_passport\)`, false)
		expectExists(mock, `WHERE LOWER\(email\)`, false)
		expectExists(mock, `WHERE mobile_country_code`, false)

		mock.ExpectExec(`INSERT INTO registrations`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`INSERT INTO audit_log_entries`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`INSERT INTO audit_log_entries`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`UPDATE registrations SET confirmation_sent = true`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		req := validIntakeRequest()
		req.StaffNumber = ""
		reg, err := svc.Register(context.Background(), req)
		require.NoError(t, err)

		// Absent staff number persists as SQL NULL, never an empty string
		assert.False(t, reg.StaffNumber.Valid)
		assert.Equal(t, models.StatusPending, reg.Status)
		assert.Equal(t, 1, mail.sentCount())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate Reported Before Write", func(t *testing.T) {
		svc, mock, mail := newIntakeFixture(t)

		expectExists(mock, `WHERE UPPER\(id_or_passport\)`, true)

		reg, err := svc.Register(context.Background(), validIntakeRequest())
		assert.Nil(t, reg)

		var dup *models.DuplicateIdentityError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, models.FieldIDOrPassport, dup.Field)
		assert.Equal(t, 0, mail.sentCount())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Constraint Race Surfaces As Duplicate", func(t *testing.T) {
		svc, mock, _ := newIntakeFixture(t)

		expectExists(mock, `WHERE UPPER\(id_or_passport\)`, false)
		expectExists(mock, `WHERE UPPER\(staff_number\)`, false)
		expectExists(mock, `WHERE LOWER\(email\)`, false)
		expectExists(mock, `WHERE mobile_country_code`, false)

		// A concurrent submission won the race past the advisory check
		mock.ExpectExec(`INSERT INTO registrations`).
			WillReturnError(pqUniqueViolation("registrations_email_key"))

		reg, err := svc.Register(context.Background(), validIntakeRequest())
		assert.Nil(t, reg)

		var dup *models.DuplicateIdentityError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, models.FieldEmail, dup.Field)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Confirmation Failure Does Not Fail Intake", func(t *testing.T) {
		svc, mock, mail := newIntakeFixture(t)
		mail.failErr = fmt.Errorf("smtp: connection refused")

		expectExists(mock, `WHERE UPPER\(id_or_passport\)`, false)
		expectExists(mock, `WHERE UPPER\(staff_number\)`, false)
		expectExists(mock, `WHERE LOWER\(email\)`, false)
		expectExists(mock, `WHERE mobile_country_code`, false)

		mock.ExpectExec(`INSERT INTO registrations`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`INSERT INTO audit_log_entries`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		// failed delivery is still audited
		mock.ExpectExec(`INSERT INTO audit_log_entries`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		reg, err := svc.Register(context.Background(), validIntakeRequest())
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, reg.Status)
		assert.False(t, reg.ConfirmationSent)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing Required Fields", func(t *testing.T) {
		svc, _, _ := newIntakeFixture(t)

		req := validIntakeRequest()
		req.IDOrPassport = "  "
		_, err := svc.Register(context.Background(), req)
		assert.ErrorContains(t, err, "id_or_passport is required")

		req = validIntakeRequest()
		req.FullName = ""
		_, err = svc.Register(context.Background(), req)
		assert.ErrorContains(t, err, "full_name is required")

		req = validIntakeRequest()
		req.Email = ""
		_, err = svc.Register(context.Background(), req)
		assert.ErrorContains(t, err, "email is required")
	})
}
