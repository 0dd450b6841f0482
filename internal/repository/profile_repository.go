package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/testmentor-api/internal/models"
)

// ProfileRepository reads user profiles.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs the repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindByID fetches a profile by user id.
func (r *ProfileRepository) FindByID(ctx context.Context, userID string) (*models.Profile, error) {
	const query = `SELECT user_id, name, email, role, bio, created_at, updated_at FROM profiles WHERE user_id = $1`
	var profile models.Profile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		return nil, err
	}
	return &profile, nil
}
