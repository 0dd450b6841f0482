package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/testmentor-api/internal/models"
	"github.com/noah-isme/testmentor-api/pkg/jobs"
	"github.com/noah-isme/testmentor-api/pkg/mailer"
)

// MailJobType is the queue job type carrying a booking email.
const MailJobType = "booking_mail"

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type mailSender interface {
	Configured() bool
	Send(ctx context.Context, msg mailer.Message) error
}

type profileReader interface {
	FindByID(ctx context.Context, userID string) (*models.Profile, error)
}

type selectionReader interface {
	GetByID(ctx context.Context, id string) (*models.StudentTestSelection, error)
}

// MailPayload is the queued description of one booking email.
type MailPayload struct {
	Kind        mailer.Kind
	RecipientID string
	BookingID   string
	SelectionID string
	StartsAt    time.Time
}

// NotificationService fans committed booking changes out to subscribers and
// the mail queue. Every failure is logged and dropped.
type NotificationService struct {
	events  eventPublisher
	queue   jobDispatcher
	enabled bool
	now     func() time.Time
	logger  *zap.Logger
}

// NewNotificationService constructs the service. A nil queue or enabled=false
// disables email; events may be nil.
func NewNotificationService(events eventPublisher, queue jobDispatcher, enabled bool, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		events:  events,
		queue:   queue,
		enabled: enabled && queue != nil,
		now:     time.Now,
		logger:  logger,
	}
}

// BookingCreated announces a new pending booking.
func (s *NotificationService) BookingCreated(ctx context.Context, booking *models.Booking, selection *models.StudentTestSelection) {
	start := booking.StartDateTime
	s.publish(ctx, models.BookingEvent{
		Type:          models.BookingEventCreated,
		BookingID:     booking.ID,
		TeacherID:     booking.TeacherID,
		StudentID:     booking.StudentID,
		Status:        booking.Status,
		StartDateTime: &start,
		OccurredAt:    s.now().UTC(),
	})

	payload := MailPayload{
		Kind:        mailer.KindRequestSubmitted,
		RecipientID: booking.StudentID,
		BookingID:   booking.ID,
		StartsAt:    booking.StartDateTime,
	}
	if selection != nil {
		payload.SelectionID = selection.ID
	} else {
		payload.SelectionID = booking.StudentTestSelectionID
	}
	s.enqueueMail(payload)
}

// BookingStatusChanged announces an accepted, rejected or cancelled booking.
func (s *NotificationService) BookingStatusChanged(ctx context.Context, booking *models.Booking, action models.BookingAction, previous models.BookingStatus, conversationID string) {
	start := booking.StartDateTime
	s.publish(ctx, models.BookingEvent{
		Type:           models.BookingEventStatusChanged,
		BookingID:      booking.ID,
		TeacherID:      booking.TeacherID,
		StudentID:      booking.StudentID,
		Status:         booking.Status,
		PreviousStatus: previous,
		ConversationID: conversationID,
		StartDateTime:  &start,
		OccurredAt:     s.now().UTC(),
	})

	var kind mailer.Kind
	switch action {
	case models.BookingActionAccept:
		kind = mailer.KindRequestAccepted
	case models.BookingActionReject:
		kind = mailer.KindRequestDeclined
	default:
		return
	}
	s.enqueueMail(MailPayload{
		Kind:        kind,
		RecipientID: booking.StudentID,
		BookingID:   booking.ID,
		SelectionID: booking.StudentTestSelectionID,
		StartsAt:    booking.StartDateTime,
	})
}

func (s *NotificationService) publish(ctx context.Context, event models.BookingEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("publish booking event failed",
			zap.String("type", string(event.Type)),
			zap.String("booking_id", event.BookingID),
			zap.Error(err),
		)
	}
}

func (s *NotificationService) enqueueMail(payload MailPayload) {
	if !s.enabled {
		return
	}
	job := jobs.Job{ID: payload.BookingID + ":" + string(payload.Kind), Type: MailJobType, Payload: payload}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("enqueue booking mail failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// MailWorker renders and sends queued booking emails.
type MailWorker struct {
	sender     mailSender
	profiles   profileReader
	selections selectionReader
	location   *time.Location
	logger     *zap.Logger
}

// NewMailWorker constructs a worker. Dates in emails are shown in loc.
func NewMailWorker(sender mailSender, profiles profileReader, selections selectionReader, loc *time.Location, logger *zap.Logger) *MailWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &MailWorker{sender: sender, profiles: profiles, selections: selections, location: loc, logger: logger}
}

// Handle processes a queue job. Returned errors are retried by the queue.
func (w *MailWorker) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(MailPayload)
	if !ok {
		w.logger.Warn("unexpected mail job payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	if !w.sender.Configured() {
		w.logger.Debug("mail provider not configured, skipping", zap.String("job_id", job.ID))
		return nil
	}

	profile, err := w.profiles.FindByID(ctx, payload.RecipientID)
	if err != nil {
		return fmt.Errorf("load recipient %s: %w", payload.RecipientID, err)
	}
	if profile.Email == "" {
		w.logger.Warn("recipient has no email", zap.String("user_id", payload.RecipientID))
		return nil
	}

	details := mailer.BookingDetails{StartsAt: payload.StartsAt, Location: w.location}
	if payload.SelectionID != "" {
		selection, err := w.selections.GetByID(ctx, payload.SelectionID)
		if err != nil {
			return fmt.Errorf("load selection %s: %w", payload.SelectionID, err)
		}
		details.TestCategory = string(selection.TestCategory)
		if selection.TestSubtype != nil {
			details.TestSubtype = *selection.TestSubtype
		}
	}

	msg, err := mailer.Render(payload.Kind, profile.Email, details)
	if err != nil {
		w.logger.Warn("render booking mail failed", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}
	if err := w.sender.Send(ctx, msg); err != nil {
		if errors.Is(err, mailer.ErrNotConfigured) {
			return nil
		}
		return err
	}
	w.logger.Info("booking mail sent", zap.String("booking_id", payload.BookingID), zap.String("kind", string(payload.Kind)))
	return nil
}
