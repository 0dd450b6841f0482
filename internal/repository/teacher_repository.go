package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/testmentor-api/internal/models"
)

const teacherColumns = `tp.user_id, p.name, p.email, tp.headline, tp.hourly_rate, tp.is_active, tp.subjects, tp.created_at, tp.updated_at`

// TeacherRepository reads teacher listings.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns teachers matching the filter ordered by name.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherProfile, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.ActiveOnly {
		conditions = append(conditions, "tp.is_active = TRUE")
	}
	// Teachers without subjects tutor every category, same as booking validation.
	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		conditions = append(conditions, fmt.Sprintf("($%d = ANY(tp.subjects) OR cardinality(tp.subjects) = 0)", len(args)))
	}

	query := `SELECT ` + teacherColumns + ` FROM teacher_profiles tp JOIN profiles p ON p.user_id = tp.user_id`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY p.name ASC"

	var teachers []models.TeacherProfile
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}

// FindByID fetches a teacher listing.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.TeacherProfile, error) {
	query := `SELECT ` + teacherColumns + ` FROM teacher_profiles tp JOIN profiles p ON p.user_id = tp.user_id WHERE tp.user_id = $1`
	var teacher models.TeacherProfile
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}
