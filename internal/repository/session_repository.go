package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/testmentor-api/internal/models"
)

const sessionColumns = `id, booking_id, conversation_id, student_id, teacher_id, start_date_time, end_date_time,
       meeting_link, status, created_at, updated_at`

// SessionRepository persists tutoring sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// EnsureForBooking returns the session of a booking, creating a scheduled one
// spanning [booking start, booking start + duration] when absent.
func (r *SessionRepository) EnsureForBooking(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking, conversationID string, duration time.Duration) (*models.Session, error) {
	target := r.exec(exec)
	now := time.Now().UTC()
	start := booking.StartDateTime.UTC()
	const insert = `INSERT INTO sessions
	(id, booking_id, conversation_id, student_id, teacher_id, start_date_time, end_date_time, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, 'scheduled', $8, $8) ON CONFLICT (booking_id) DO NOTHING`
	if _, err := target.ExecContext(ctx, insert, uuid.NewString(), booking.ID, conversationID, booking.StudentID,
		booking.TeacherID, start, start.Add(duration), now); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	var session models.Session
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE booking_id = $1`
	if err := sqlx.GetContext(ctx, target, &session, query, booking.ID); err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &session, nil
}

// CancelForBooking cancels the scheduled session of a booking, if any.
func (r *SessionRepository) CancelForBooking(ctx context.Context, exec sqlx.ExtContext, bookingID string) error {
	const query = `UPDATE sessions SET status = 'cancelled', updated_at = $2 WHERE booking_id = $1 AND status = 'scheduled'`
	if _, err := r.exec(exec).ExecContext(ctx, query, bookingID, time.Now().UTC()); err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	return nil
}

// GetByID fetches a session.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// List returns sessions matching the filter in chronological order.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 5)
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, filter.From.UTC())
		conditions = append(conditions, fmt.Sprintf("start_date_time >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, filter.To.UTC())
		conditions = append(conditions, fmt.Sprintf("start_date_time < $%d", len(args)))
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY start_date_time ASC"

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// UpdateMeetingLink sets the link of a scheduled session owned by teacherID.
func (r *SessionRepository) UpdateMeetingLink(ctx context.Context, id, teacherID, link string) (*models.Session, error) {
	query := `UPDATE sessions SET meeting_link = $3, updated_at = $4
WHERE id = $1 AND teacher_id = $2 AND status = 'scheduled' RETURNING ` + sessionColumns
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id, teacherID, link, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &session, nil
}

// MarkCompleted moves a scheduled session owned by teacherID to completed.
func (r *SessionRepository) MarkCompleted(ctx context.Context, id, teacherID string) (*models.Session, error) {
	query := `UPDATE sessions SET status = 'completed', updated_at = $3
WHERE id = $1 AND teacher_id = $2 AND status = 'scheduled' RETURNING ` + sessionColumns
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id, teacherID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &session, nil
}
