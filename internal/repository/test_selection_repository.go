package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/testmentor-api/internal/models"
)

// TestSelectionRepository stores immutable student test selections and reads the test catalogue.
type TestSelectionRepository struct {
	db *sqlx.DB
}

// NewTestSelectionRepository constructs the repository.
func NewTestSelectionRepository(db *sqlx.DB) *TestSelectionRepository {
	return &TestSelectionRepository{db: db}
}

// Insert stores a selection using exec (a transaction when called from the booking flow).
func (r *TestSelectionRepository) Insert(ctx context.Context, exec sqlx.ExtContext, selection *models.StudentTestSelection) error {
	if exec == nil {
		exec = r.db
	}
	if selection.ID == "" {
		selection.ID = uuid.NewString()
	}
	selection.CreatedAt = time.Now().UTC()
	selection.TestDateTime = selection.TestDateTime.UTC()
	const query = `INSERT INTO student_test_selections (id, student_id, test_category, test_subtype, test_date_time, notes, created_at)
	VALUES (:id, :student_id, :test_category, :test_subtype, :test_date_time, :notes, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, selection); err != nil {
		return fmt.Errorf("insert test selection: %w", err)
	}
	return nil
}

// GetByID fetches a selection.
func (r *TestSelectionRepository) GetByID(ctx context.Context, id string) (*models.StudentTestSelection, error) {
	const query = `SELECT id, student_id, test_category, test_subtype, test_date_time, notes, created_at
	FROM student_test_selections WHERE id = $1`
	var selection models.StudentTestSelection
	if err := r.db.GetContext(ctx, &selection, query, id); err != nil {
		return nil, err
	}
	return &selection, nil
}

// ListCatalog returns the bookable tests.
func (r *TestSelectionRepository) ListCatalog(ctx context.Context) ([]models.TestCatalogEntry, error) {
	const query = `SELECT id, category, subtype, display_name FROM tests ORDER BY category, subtype NULLS FIRST`
	var entries []models.TestCatalogEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("list test catalog: %w", err)
	}
	return entries, nil
}
