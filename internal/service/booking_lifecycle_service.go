package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/testmentor-api/internal/dto"
	"github.com/noah-isme/testmentor-api/internal/models"
	"github.com/noah-isme/testmentor-api/internal/repository"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
)

// NextBookingStatus returns the status action moves current to when
// performed by role. cancelled is terminal.
func NextBookingStatus(current models.BookingStatus, action models.BookingAction, role models.UserRole) (models.BookingStatus, error) {
	switch {
	case action == models.BookingActionAccept && role == models.RoleTeacher && current == models.BookingStatusPending:
		return models.BookingStatusConfirmed, nil
	case action == models.BookingActionReject && role == models.RoleTeacher && current == models.BookingStatusPending:
		return models.BookingStatusCancelled, nil
	case action == models.BookingActionCancel && role == models.RoleStudent &&
		(current == models.BookingStatusPending || current == models.BookingStatusConfirmed):
		return models.BookingStatusCancelled, nil
	case action == models.BookingActionCancel && role == models.RoleTeacher && current == models.BookingStatusConfirmed:
		return models.BookingStatusCancelled, nil
	}
	return "", appErrors.Clone(appErrors.ErrInvalidTransition,
		fmt.Sprintf("cannot %s a %s booking as %s", action, current, role))
}

// BookingLifecycleService moves bookings between statuses and provisions the
// conversation and session of confirmed bookings.
type BookingLifecycleService struct {
	uow             bookingUnitOfWork
	notifier        bookingNotifier
	metrics         bookingMetrics
	sessionDuration time.Duration
	now             func() time.Time
	logger          *zap.Logger
}

// BookingLifecycleOption configures BookingLifecycleService.
type BookingLifecycleOption func(*BookingLifecycleService)

// WithLifecycleNotifier sets the post-commit notifier.
func WithLifecycleNotifier(n bookingNotifier) BookingLifecycleOption {
	return func(s *BookingLifecycleService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLifecycleMetrics sets the metrics sink.
func WithLifecycleMetrics(m bookingMetrics) BookingLifecycleOption {
	return func(s *BookingLifecycleService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLifecycleClock overrides the clock used to decide whether a confirmed
// booking's session has already started.
func WithLifecycleClock(now func() time.Time) BookingLifecycleOption {
	return func(s *BookingLifecycleService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionDuration sets the length of provisioned sessions.
func WithSessionDuration(d time.Duration) BookingLifecycleOption {
	return func(s *BookingLifecycleService) {
		if d > 0 {
			s.sessionDuration = d
		}
	}
}

// NewBookingLifecycleService constructs the manager.
func NewBookingLifecycleService(uow bookingUnitOfWork, logger *zap.Logger, opts ...BookingLifecycleOption) *BookingLifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &BookingLifecycleService{
		uow:             uow,
		notifier:        noopNotifier{},
		metrics:         noopBookingMetrics{},
		sessionDuration: time.Hour,
		now:             time.Now,
		logger:          logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Accept confirms a pending booking owned by the calling teacher.
func (s *BookingLifecycleService) Accept(ctx context.Context, bookingID string, actor *models.JWTClaims) (*dto.BookingTransitionResponse, error) {
	return s.Transition(ctx, bookingID, models.BookingActionAccept, actor)
}

// Reject declines a pending booking owned by the calling teacher.
func (s *BookingLifecycleService) Reject(ctx context.Context, bookingID string, actor *models.JWTClaims) (*dto.BookingTransitionResponse, error) {
	return s.Transition(ctx, bookingID, models.BookingActionReject, actor)
}

// Cancel withdraws a booking on behalf of either participant.
func (s *BookingLifecycleService) Cancel(ctx context.Context, bookingID string, actor *models.JWTClaims) (*dto.BookingTransitionResponse, error) {
	return s.Transition(ctx, bookingID, models.BookingActionCancel, actor)
}

// Transition applies action to bookingID in one transaction. Accepting
// fetches or creates the conversation and session; a failure there rolls the
// status change back and surfaces as a retryable dependency failure.
func (s *BookingLifecycleService) Transition(ctx context.Context, bookingID string, action models.BookingAction, actor *models.JWTClaims) (*dto.BookingTransitionResponse, error) {
	if actor == nil || actor.Identity() == "" {
		return nil, appErrors.ErrUnauthorized
	}
	actorID := actor.Identity()

	var (
		result   dto.BookingTransitionResponse
		previous models.BookingStatus
	)
	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.BookingTx) error {
		current, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "booking not found")
			}
			return err
		}
		switch actor.Role {
		case models.RoleTeacher:
			if current.TeacherID != actorID {
				return appErrors.Clone(appErrors.ErrForbidden, "booking belongs to another teacher")
			}
		case models.RoleStudent:
			if current.StudentID != actorID {
				return appErrors.Clone(appErrors.ErrForbidden, "booking belongs to another student")
			}
		default:
			return appErrors.ErrForbidden
		}

		next, err := NextBookingStatus(current.Status, action, actor.Role)
		if err != nil {
			return err
		}
		if current.Status == models.BookingStatusConfirmed && next == models.BookingStatusCancelled &&
			!s.now().Before(current.StartDateTime) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "confirmed bookings can only be cancelled before the session starts")
		}
		previous = current.Status

		updated, err := tx.UpdateBookingStatus(ctx, current.ID, current.Status, next)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrInvalidTransition, "booking status changed concurrently")
			}
			return err
		}
		result.Booking = updated

		switch {
		case next == models.BookingStatusConfirmed:
			conv, err := tx.EnsureConversation(ctx, updated)
			if err != nil {
				return appErrors.WrapAs(err, appErrors.ErrDependencyFailure, "failed to open conversation")
			}
			session, err := tx.EnsureSession(ctx, updated, conv.ID, s.sessionDuration)
			if err != nil {
				return appErrors.WrapAs(err, appErrors.ErrDependencyFailure, "failed to schedule session")
			}
			result.ConversationID = conv.ID
			result.SessionID = session.ID
		case previous == models.BookingStatusConfirmed && next == models.BookingStatusCancelled:
			if err := tx.CancelSession(ctx, current.ID); err != nil {
				return appErrors.WrapAs(err, appErrors.ErrDependencyFailure, "failed to cancel session")
			}
		}
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			s.metrics.ObserveBookingTransition(action, appErr.Code)
			if errors.Is(appErr, appErrors.ErrDependencyFailure) {
				s.logger.Warn("booking transition rolled back",
					zap.String("booking_id", bookingID),
					zap.String("action", string(action)),
					zap.Error(err),
				)
			}
			return nil, appErr
		}
		s.metrics.ObserveBookingTransition(action, appErrors.ErrInternal.Code)
		s.logger.Error("booking transition failed", zap.String("booking_id", bookingID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update booking")
	}

	s.metrics.ObserveBookingTransition(action, "ok")
	s.logger.Info("booking status changed",
		zap.String("booking_id", bookingID),
		zap.String("from", string(previous)),
		zap.String("to", string(result.Booking.Status)),
		zap.String("actor_id", actorID),
	)
	s.notifier.BookingStatusChanged(ctx, result.Booking, action, previous, result.ConversationID)
	return &result, nil
}
