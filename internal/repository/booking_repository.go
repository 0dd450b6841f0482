package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/testmentor-api/internal/models"
)

const bookingColumns = `id, student_id, teacher_id, student_test_selection_id, start_date_time, status,
       receipt_path, receipt_mime, receipt_original_name, created_at, updated_at`

// BookingRepository is the authoritative record keeper for bookings. It never
// evaluates availability.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Insert stores a new booking.
func (r *BookingRepository) Insert(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.Status == "" {
		booking.Status = models.BookingStatusPending
	}
	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.StartDateTime = booking.StartDateTime.UTC()
	const query = `INSERT INTO bookings
	(id, student_id, teacher_id, student_test_selection_id, start_date_time, status, receipt_path, receipt_mime, receipt_original_name, created_at, updated_at)
	VALUES (:id, :student_id, :teacher_id, :student_test_selection_id, :start_date_time, :status, :receipt_path, :receipt_mime, :receipt_original_name, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, booking); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// GetByID fetches a booking. With forUpdate the row stays locked until exec commits.
func (r *BookingRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var booking models.Booking
	if err := sqlx.GetContext(ctx, r.exec(exec), &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListActiveAtSlot returns pending and confirmed bookings of the given teachers
// starting exactly at at.
func (r *BookingRepository) ListActiveAtSlot(ctx context.Context, exec sqlx.ExtContext, teacherIDs []string, at time.Time) ([]models.Booking, error) {
	if len(teacherIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings
WHERE teacher_id = ANY($1) AND start_date_time = $2 AND status IN ('pending', 'confirmed')`
	var bookings []models.Booking
	if err := sqlx.SelectContext(ctx, r.exec(exec), &bookings, query, pq.Array(teacherIDs), at.UTC()); err != nil {
		return nil, fmt.Errorf("list active bookings at slot: %w", err)
	}
	return bookings, nil
}

// ListActiveBetween returns a teacher's pending and confirmed bookings starting in [from, to).
func (r *BookingRepository) ListActiveBetween(ctx context.Context, teacherID string, from, to time.Time) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
WHERE teacher_id = $1 AND start_date_time >= $2 AND start_date_time < $3 AND status IN ('pending', 'confirmed')`
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, teacherID, from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("list active bookings in range: %w", err)
	}
	return bookings, nil
}

// List returns bookings matching the filter (latest start first) and the total count.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
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
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM bookings"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s FROM bookings%s ORDER BY start_date_time DESC, created_at DESC LIMIT %d OFFSET %d",
		bookingColumns, where, size, (page-1)*size)
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, total, nil
}

// UpdateStatus moves a booking from one status to another. It returns
// sql.ErrNoRows when the booking is missing or no longer in from.
func (r *BookingRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.BookingStatus) (*models.Booking, error) {
	query := `UPDATE bookings SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2 RETURNING ` + bookingColumns
	var booking models.Booking
	if err := sqlx.GetContext(ctx, r.exec(exec), &booking, query, id, from, to, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &booking, nil
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
