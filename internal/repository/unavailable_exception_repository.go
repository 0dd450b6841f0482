package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/testmentor-api/internal/models"
)

const exceptionColumns = `id, teacher_id, start_date_time, end_date_time, reason, created_at`

// UnavailableExceptionRepository persists one-off blackout windows.
type UnavailableExceptionRepository struct {
	db *sqlx.DB
}

// NewUnavailableExceptionRepository constructs the repository.
func NewUnavailableExceptionRepository(db *sqlx.DB) *UnavailableExceptionRepository {
	return &UnavailableExceptionRepository{db: db}
}

func (r *UnavailableExceptionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListByTeacher returns a teacher's exceptions, optionally only those ending after since.
func (r *UnavailableExceptionRepository) ListByTeacher(ctx context.Context, teacherID string, since *time.Time) ([]models.UnavailableException, error) {
	query := `SELECT ` + exceptionColumns + ` FROM teacher_unavailable_dates WHERE teacher_id = $1`
	args := []interface{}{teacherID}
	if since != nil {
		args = append(args, since.UTC())
		query += fmt.Sprintf(" AND end_date_time > $%d", len(args))
	}
	query += " ORDER BY start_date_time ASC"

	var items []models.UnavailableException
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list unavailable dates: %w", err)
	}
	return items, nil
}

// ListOverlapping returns exceptions of the given teachers that intersect [from, to).
func (r *UnavailableExceptionRepository) ListOverlapping(ctx context.Context, exec sqlx.ExtContext, teacherIDs []string, from, to time.Time) ([]models.UnavailableException, error) {
	if len(teacherIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + exceptionColumns + ` FROM teacher_unavailable_dates
WHERE teacher_id = ANY($1) AND start_date_time < $3 AND end_date_time > $2`
	var items []models.UnavailableException
	if err := sqlx.SelectContext(ctx, r.exec(exec), &items, query, pq.Array(teacherIDs), from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("list overlapping unavailable dates: %w", err)
	}
	return items, nil
}

// Create inserts a new exception.
func (r *UnavailableExceptionRepository) Create(ctx context.Context, item *models.UnavailableException) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt = time.Now().UTC()
	item.StartDateTime = item.StartDateTime.UTC()
	item.EndDateTime = item.EndDateTime.UTC()
	const query = `INSERT INTO teacher_unavailable_dates (id, teacher_id, start_date_time, end_date_time, reason, created_at)
	VALUES (:id, :teacher_id, :start_date_time, :end_date_time, :reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create unavailable date: %w", err)
	}
	return nil
}

// Delete removes an exception owned by teacherID.
func (r *UnavailableExceptionRepository) Delete(ctx context.Context, id, teacherID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM teacher_unavailable_dates WHERE id = $1 AND teacher_id = $2`, id, teacherID)
	if err != nil {
		return fmt.Errorf("delete unavailable date: %w", err)
	}
	return expectAffected(result, "delete unavailable date")
}
