package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/testmentor-api/internal/dto"
	"github.com/noah-isme/testmentor-api/internal/models"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
	"github.com/noah-isme/testmentor-api/pkg/export"
)

type sessionStore interface {
	GetByID(ctx context.Context, id string) (*models.Session, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
	UpdateMeetingLink(ctx context.Context, id, teacherID, link string) (*models.Session, error)
	MarkCompleted(ctx context.Context, id, teacherID string) (*models.Session, error)
}

// SessionExport is a rendered session schedule.
type SessionExport struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SessionService exposes the tutoring sessions created by accepted bookings.
type SessionService struct {
	store     sessionStore
	validator *validator.Validate
	logger    *zap.Logger
	location  *time.Location
}

// NewSessionService constructs the service. Exported times are rendered in loc.
func NewSessionService(store sessionStore, validate *validator.Validate, loc *time.Location, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SessionService{store: store, validator: validate, logger: logger, location: loc}
}

// List returns the caller's sessions.
func (s *SessionService) List(ctx context.Context, actor *models.JWTClaims, query dto.SessionQuery) ([]models.Session, error) {
	filter, err := sessionFilterFor(actor, query)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return sessions, nil
}

// UpdateMeetingLink sets the call link of a scheduled session owned by the teacher.
func (s *SessionService) UpdateMeetingLink(ctx context.Context, id string, actor *models.JWTClaims, req dto.MeetingLinkRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid meeting link")
	}
	if _, err := s.ownedScheduled(ctx, id, actor); err != nil {
		return nil, err
	}
	session, err := s.store.UpdateMeetingLink(ctx, id, actor.Identity(), strings.TrimSpace(req.MeetingLink))
	if err != nil {
		return nil, s.translateUpdate(err, "failed to update meeting link")
	}
	return session, nil
}

// Complete marks a scheduled session as held.
func (s *SessionService) Complete(ctx context.Context, id string, actor *models.JWTClaims) (*models.Session, error) {
	if _, err := s.ownedScheduled(ctx, id, actor); err != nil {
		return nil, err
	}
	session, err := s.store.MarkCompleted(ctx, id, actor.Identity())
	if err != nil {
		return nil, s.translateUpdate(err, "failed to complete session")
	}
	s.logger.Info("session completed", zap.String("session_id", id), zap.String("teacher_id", actor.Identity()))
	return session, nil
}

// Export renders the caller's sessions as CSV or PDF.
func (s *SessionService) Export(ctx context.Context, actor *models.JWTClaims, query dto.SessionQuery, format export.Format) (*SessionExport, error) {
	exporter, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	sessions, err := s.List(ctx, actor, query)
	if err != nil {
		return nil, err
	}

	table := export.Table{
		Title:   "Tutoring sessions",
		Headers: []string{"Start", "End", "Student", "Teacher", "Status", "Meeting link"},
		Rows:    make([][]string, 0, len(sessions)),
	}
	for _, session := range sessions {
		link := ""
		if session.MeetingLink != nil {
			link = *session.MeetingLink
		}
		table.Rows = append(table.Rows, []string{
			session.StartDateTime.In(s.location).Format("2006-01-02 15:04"),
			session.EndDateTime.In(s.location).Format("2006-01-02 15:04"),
			session.StudentID,
			session.TeacherID,
			string(session.Status),
			link,
		})
	}

	data, err := exporter.Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render sessions")
	}
	return &SessionExport{
		Filename:    fmt.Sprintf("sessions-%s.%s", time.Now().UTC().Format("20060102"), exporter.Extension()),
		ContentType: exporter.ContentType(),
		Data:        data,
	}, nil
}

func (s *SessionService) ownedScheduled(ctx context.Context, id string, actor *models.JWTClaims) (*models.Session, error) {
	if actor == nil || actor.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the session teacher can change it")
	}
	session, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.TeacherID != actor.Identity() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	if session.Status != models.SessionStatusScheduled {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("session is %s", session.Status))
	}
	return session, nil
}

func (s *SessionService) translateUpdate(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "session changed concurrently")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func sessionFilterFor(actor *models.JWTClaims, query dto.SessionQuery) (models.SessionFilter, error) {
	var filter models.SessionFilter
	if actor == nil {
		return filter, appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleTeacher:
		filter.TeacherID = actor.Identity()
	case models.RoleStudent:
		filter.StudentID = actor.Identity()
	default:
		return filter, appErrors.Clone(appErrors.ErrForbidden, "sessions are visible to participants only")
	}
	if query.Status != nil {
		switch *query.Status {
		case models.SessionStatusScheduled, models.SessionStatusCompleted, models.SessionStatusCancelled:
		default:
			return filter, appErrors.Clone(appErrors.ErrValidation, "invalid session status")
		}
		filter.Status = query.Status
	}
	if query.From != nil && query.To != nil && !query.To.After(*query.From) {
		return filter, appErrors.Clone(appErrors.ErrValidation, "to must be after from")
	}
	filter.From = query.From
	filter.To = query.To
	return filter, nil
}
