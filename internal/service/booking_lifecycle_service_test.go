package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/testmentor-api/internal/models"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
)

var (
	teacherActor = &models.JWTClaims{UserID: bookingTeacher, Role: models.RoleTeacher}
	studentActor = &models.JWTClaims{UserID: bookingStudent, Role: models.RoleStudent}
)

func seedBooking(fx *bookingFixture, status models.BookingStatus) *models.Booking {
	return fx.store.addBooking(models.Booking{
		TeacherID:     bookingTeacher,
		StudentID:     bookingStudent,
		StartDateTime: mondayNine,
		Status:        status,
	})
}

func TestLifecycleAcceptProvisionsConversationAndSession(t *testing.T) {
	fx := newBookingFixture(4, nil)
	booking := seedBooking(fx, models.BookingStatusPending)

	res, err := fx.manager.Accept(context.Background(), booking.ID, teacherActor)
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusConfirmed, res.Booking.Status)
	assert.NotEmpty(t, res.ConversationID)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, models.BookingStatusConfirmed, fx.store.booking(booking.ID).Status)

	session := fx.store.sessions[booking.ID]
	require.NotNil(t, session)
	assert.Equal(t, models.SessionStatusScheduled, session.Status)
	assert.True(t, session.EndDateTime.Equal(mondayNine.Add(time.Hour)))
	require.NotNil(t, session.ConversationID)
	assert.Equal(t, res.ConversationID, *session.ConversationID)

	assert.Equal(t, []string{booking.ID + ":pending->confirmed"}, fx.notifier.changed)
	assert.Equal(t, 1, fx.metrics.transitions["accept:ok"])
}

func TestLifecycleRejectCancelsPending(t *testing.T) {
	fx := newBookingFixture(4, nil)
	booking := seedBooking(fx, models.BookingStatusPending)

	res, err := fx.manager.Reject(context.Background(), booking.ID, teacherActor)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, res.Booking.Status)
	assert.Empty(t, res.ConversationID)
	assert.Empty(t, fx.store.conversations)
}

func TestLifecycleAcceptTwiceIsInvalid(t *testing.T) {
	fx := newBookingFixture(4, nil)
	booking := seedBooking(fx, models.BookingStatusPending)

	_, err := fx.manager.Accept(context.Background(), booking.ID, teacherActor)
	require.NoError(t, err)

	_, err = fx.manager.Accept(context.Background(), booking.ID, teacherActor)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
	assert.Len(t, fx.store.conversations, 1)
}

func TestLifecycleOwnership(t *testing.T) {
	fx := newBookingFixture(4, nil)
	booking := seedBooking(fx, models.BookingStatusPending)

	_, err := fx.manager.Accept(context.Background(), booking.ID, &models.JWTClaims{UserID: "another-teacher", Role: models.RoleTeacher})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = fx.manager.Accept(context.Background(), booking.ID, studentActor)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	_, err = fx.manager.Cancel(context.Background(), booking.ID, &models.JWTClaims{UserID: "another-student", Role: models.RoleStudent})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = fx.manager.Accept(context.Background(), "missing", teacherActor)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = fx.manager.Accept(context.Background(), booking.ID, nil)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	assert.Equal(t, models.BookingStatusPending, fx.store.booking(booking.ID).Status)
}

func TestLifecycleProvisioningFailureRollsBack(t *testing.T) {
	for name, setup := range map[string]func(*memStore){
		"conversation": func(s *memStore) { s.conversationErr = errStubFailure },
		"session":      func(s *memStore) { s.sessionErr = errStubFailure },
	} {
		t.Run(name, func(t *testing.T) {
			fx := newBookingFixture(4, nil)
			setup(fx.store)
			booking := seedBooking(fx, models.BookingStatusPending)

			_, err := fx.manager.Accept(context.Background(), booking.ID, teacherActor)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrDependencyFailure))
			assert.True(t, appErrors.FromError(err).Retryable)
			assert.ErrorIs(t, err, errStubFailure)

			assert.Equal(t, models.BookingStatusPending, fx.store.booking(booking.ID).Status)
			assert.Empty(t, fx.store.sessions)
			assert.Empty(t, fx.notifier.changed)
		})
	}
}

func TestLifecycleCancelConfirmedCancelsSession(t *testing.T) {
	fx := newBookingFixture(4, nil)
	booking := seedBooking(fx, models.BookingStatusPending)
	_, err := fx.manager.Accept(context.Background(), booking.ID, teacherActor)
	require.NoError(t, err)

	res, err := fx.manager.Cancel(context.Background(), booking.ID, teacherActor)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, res.Booking.Status)
	assert.Equal(t, models.SessionStatusCancelled, fx.store.sessions[booking.ID].Status)
	assert.Equal(t, 0, fx.store.countActiveAt(bookingTeacher, mondayNine))
}

func TestLifecycleCancelConfirmedAfterSessionStartIsInvalid(t *testing.T) {
	fx := newBookingFixture(4, nil)
	started := fx.store.addBooking(models.Booking{
		TeacherID:     bookingTeacher,
		StudentID:     bookingStudent,
		StartDateTime: bookingNow.Add(-48 * time.Hour),
		Status:        models.BookingStatusConfirmed,
	})
	atStart := fx.store.addBooking(models.Booking{
		TeacherID:     bookingTeacher,
		StudentID:     bookingStudent,
		StartDateTime: bookingNow,
		Status:        models.BookingStatusConfirmed,
	})

	for _, actor := range []*models.JWTClaims{studentActor, teacherActor} {
		for _, id := range []string{started.ID, atStart.ID} {
			_, err := fx.manager.Cancel(context.Background(), id, actor)
			assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
			assert.Equal(t, models.BookingStatusConfirmed, fx.store.booking(id).Status)
		}
	}
	assert.Empty(t, fx.notifier.changed)
	assert.Equal(t, 4, fx.metrics.transitions["cancel:INVALID_TRANSITION"])

	// pending requests stay withdrawable by the student
	stale := fx.store.addBooking(models.Booking{
		TeacherID:     bookingTeacher,
		StudentID:     bookingStudent,
		StartDateTime: bookingNow.Add(-time.Hour),
		Status:        models.BookingStatusPending,
	})
	_, err := fx.manager.Cancel(context.Background(), stale.ID, studentActor)
	require.NoError(t, err)
}

func TestNextBookingStatusTable(t *testing.T) {
	pending, confirmed, cancelled := models.BookingStatusPending, models.BookingStatusConfirmed, models.BookingStatusCancelled
	accept, reject, cancel := models.BookingActionAccept, models.BookingActionReject, models.BookingActionCancel
	teacher, student := models.RoleTeacher, models.RoleStudent

	allowed := []struct {
		from   models.BookingStatus
		action models.BookingAction
		role   models.UserRole
		to     models.BookingStatus
	}{
		{pending, accept, teacher, confirmed},
		{pending, reject, teacher, cancelled},
		{pending, cancel, student, cancelled},
		{confirmed, cancel, student, cancelled},
		{confirmed, cancel, teacher, cancelled},
	}
	for _, tc := range allowed {
		got, err := NextBookingStatus(tc.from, tc.action, tc.role)
		require.NoError(t, err, "%s %s by %s", tc.action, tc.from, tc.role)
		assert.Equal(t, tc.to, got)
	}

	denied := []struct {
		from   models.BookingStatus
		action models.BookingAction
		role   models.UserRole
	}{
		{pending, accept, student},
		{pending, reject, student},
		{pending, cancel, teacher},
		{confirmed, accept, teacher},
		{confirmed, reject, teacher},
	}
	for _, tc := range denied {
		_, err := NextBookingStatus(tc.from, tc.action, tc.role)
		assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition), "%s %s by %s", tc.action, tc.from, tc.role)
	}
}

func TestCancelledIsAbsorbing(t *testing.T) {
	for _, action := range []models.BookingAction{models.BookingActionAccept, models.BookingActionReject, models.BookingActionCancel} {
		for _, role := range []models.UserRole{models.RoleTeacher, models.RoleStudent} {
			_, err := NextBookingStatus(models.BookingStatusCancelled, action, role)
			assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition), "%s by %s", action, role)
		}
	}

	fx := newBookingFixture(4, nil)
	booking := seedBooking(fx, models.BookingStatusCancelled)
	_, err := fx.manager.Accept(context.Background(), booking.ID, teacherActor)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
	assert.Equal(t, models.BookingStatusCancelled, fx.store.booking(booking.ID).Status)
}
