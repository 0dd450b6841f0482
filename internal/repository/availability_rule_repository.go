package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/testmentor-api/internal/models"
)

const availabilityRuleColumns = `id, teacher_id, day_of_week, to_char(start_time, 'HH24:MI:SS') AS start_time,
       to_char(end_time, 'HH24:MI:SS') AS end_time, enabled, timezone, created_at, updated_at`

// AvailabilityRuleRepository persists weekly availability rules.
type AvailabilityRuleRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRuleRepository constructs the repository.
func NewAvailabilityRuleRepository(db *sqlx.DB) *AvailabilityRuleRepository {
	return &AvailabilityRuleRepository{db: db}
}

func (r *AvailabilityRuleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListByTeacher returns every rule of a teacher ordered by day and start time.
func (r *AvailabilityRuleRepository) ListByTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) ([]models.AvailabilityRule, error) {
	query := `SELECT ` + availabilityRuleColumns + `
FROM teacher_availability_rules WHERE teacher_id = $1 ORDER BY day_of_week ASC, start_time ASC`
	var rules []models.AvailabilityRule
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rules, query, teacherID); err != nil {
		return nil, fmt.Errorf("list availability rules: %w", err)
	}
	return rules, nil
}

// ListByTeachers returns the rules of many teachers in one round trip.
func (r *AvailabilityRuleRepository) ListByTeachers(ctx context.Context, teacherIDs []string) ([]models.AvailabilityRule, error) {
	if len(teacherIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + availabilityRuleColumns + `
FROM teacher_availability_rules WHERE teacher_id = ANY($1) ORDER BY teacher_id, day_of_week, start_time`
	var rules []models.AvailabilityRule
	if err := r.db.SelectContext(ctx, &rules, query, pq.Array(teacherIDs)); err != nil {
		return nil, fmt.Errorf("list availability rules for teachers: %w", err)
	}
	return rules, nil
}

// GetByID fetches a rule by identifier.
func (r *AvailabilityRuleRepository) GetByID(ctx context.Context, id string) (*models.AvailabilityRule, error) {
	query := `SELECT ` + availabilityRuleColumns + ` FROM teacher_availability_rules WHERE id = $1`
	var rule models.AvailabilityRule
	if err := r.db.GetContext(ctx, &rule, query, id); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Create inserts a new rule.
func (r *AvailabilityRuleRepository) Create(ctx context.Context, rule *models.AvailabilityRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	const query = `INSERT INTO teacher_availability_rules
	(id, teacher_id, day_of_week, start_time, end_time, enabled, timezone, created_at, updated_at)
	VALUES (:id, :teacher_id, :day_of_week, :start_time, :end_time, :enabled, :timezone, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("create availability rule: %w", err)
	}
	return nil
}

// Update rewrites a rule owned by rule.TeacherID. Returns sql.ErrNoRows when
// the rule does not exist or belongs to someone else.
func (r *AvailabilityRuleRepository) Update(ctx context.Context, rule *models.AvailabilityRule) error {
	rule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teacher_availability_rules
	SET day_of_week = :day_of_week, start_time = :start_time, end_time = :end_time,
	    enabled = :enabled, timezone = :timezone, updated_at = :updated_at
	WHERE id = :id AND teacher_id = :teacher_id`
	result, err := r.db.NamedExecContext(ctx, query, rule)
	if err != nil {
		return fmt.Errorf("update availability rule: %w", err)
	}
	return expectAffected(result, "update availability rule")
}

// Delete removes a rule owned by teacherID.
func (r *AvailabilityRuleRepository) Delete(ctx context.Context, id, teacherID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM teacher_availability_rules WHERE id = $1 AND teacher_id = $2`, id, teacherID)
	if err != nil {
		return fmt.Errorf("delete availability rule: %w", err)
	}
	return expectAffected(result, "delete availability rule")
}

func expectAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
