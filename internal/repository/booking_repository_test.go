package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/testmentor-api/internal/models"
)

func TestBookingRepositoryInsertDefaultsPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	booking := &models.Booking{StudentID: "s-1", TeacherID: "t-1", StudentTestSelectionID: "sel-1",
		StartDateTime: time.Date(2026, 2, 9, 9, 0, 0, 0, time.FixedZone("CET", 3600)), ReceiptPath: "s-1/r.pdf", ReceiptMime: "application/pdf"}
	require.NoError(t, NewBookingRepository(db).Insert(context.Background(), nil, booking))

	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Equal(t, time.UTC, booking.StartDateTime.Location())
	assert.Equal(t, 8, booking.StartDateTime.Hour())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryListActiveAtSlot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	at := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(bookingRowColumns).
		AddRow("b-1", "s-1", "t-1", "sel-1", at, "pending", "s-1/r.pdf", "application/pdf", nil, at, at).
		AddRow("b-2", "s-2", "t-1", "sel-2", at, "confirmed", "s-2/r.pdf", "image/png", "r.png", at, at)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE teacher_id = ANY($1) AND start_date_time = $2 AND status IN ('pending', 'confirmed')")).
		WithArgs(sqlmock.AnyArg(), at).
		WillReturnRows(rows)

	bookings, err := NewBookingRepository(db).ListActiveAtSlot(context.Background(), nil, []string{"t-1"}, at)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, models.BookingStatusConfirmed, bookings[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryUpdateStatusIsConditional(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE bookings SET status = $3")).
		WithArgs("b-1", models.BookingStatusPending, models.BookingStatusConfirmed, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(bookingRowColumns))

	_, err := NewBookingRepository(db).UpdateStatus(context.Background(), nil, "b-1", models.BookingStatusPending, models.BookingStatusConfirmed)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryListFiltersAndCounts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	status := models.BookingStatusPending
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM bookings WHERE teacher_id = $1 AND status = $2")).
		WithArgs("t-1", status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	at := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY start_date_time DESC, created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("t-1", status).
		WillReturnRows(sqlmock.NewRows(bookingRowColumns).
			AddRow("b-1", "s-1", "t-1", "sel-1", at, "pending", "s-1/r.pdf", "application/pdf", nil, at, at))

	bookings, total, err := NewBookingRepository(db).List(context.Background(), models.BookingFilter{TeacherID: "t-1", Status: &status})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, bookings, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
