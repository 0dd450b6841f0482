package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/testmentor-api/internal/models"
)

func newUnitOfWork(t *testing.T) (*BookingUnitOfWork, sqlmock.Sqlmock, func()) {
	db, mock, cleanup := newRepoMock(t)
	uow := NewBookingUnitOfWork(db,
		NewAvailabilityRuleRepository(db),
		NewUnavailableExceptionRepository(db),
		NewBookingRepository(db),
		NewTestSelectionRepository(db),
		NewConversationRepository(db),
		NewSessionRepository(db),
	)
	return uow, mock, cleanup
}

func TestBookingUnitOfWorkCommitsCreateFlow(t *testing.T) {
	uow, mock, cleanup := newUnitOfWork(t)
	defer cleanup()

	at := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(SlotLockKey("t-1", at)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings")).
		WillReturnRows(sqlmock.NewRows(bookingRowColumns))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_test_selections")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := uow.Do(context.Background(), func(ctx context.Context, tx BookingTx) error {
		require.NoError(t, tx.LockSlot(ctx, "t-1", at))
		active, err := tx.ListActiveAtSlot(ctx, "t-1", at)
		require.NoError(t, err)
		assert.Empty(t, active)
		selection := &models.StudentTestSelection{StudentID: "s-1", TestCategory: models.TestCategoryCLA, TestDateTime: at}
		require.NoError(t, tx.InsertSelection(ctx, selection))
		return tx.InsertBooking(ctx, &models.Booking{StudentID: "s-1", TeacherID: "t-1", StudentTestSelectionID: selection.ID, StartDateTime: at})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingUnitOfWorkRollsBackOnError(t *testing.T) {
	uow, mock, cleanup := newUnitOfWork(t)
	defer cleanup()

	boom := errors.New("provisioning failed")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := uow.Do(context.Background(), func(ctx context.Context, tx BookingTx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotLockKeyIsStablePerSlot(t *testing.T) {
	at := time.Date(2026, 2, 9, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, SlotLockKey("t-1", at), SlotLockKey("t-1", at.UTC()))
	assert.NotEqual(t, SlotLockKey("t-1", at), SlotLockKey("t-2", at))
	assert.NotEqual(t, SlotLockKey("t-1", at), SlotLockKey("t-1", at.Add(30*time.Minute)))
}
