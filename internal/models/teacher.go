package models

import (
	"time"

	"github.com/lib/pq"
)

// TeacherProfile is the marketplace listing for a teacher.
type TeacherProfile struct {
	UserID     string         `db:"user_id" json:"userId"`
	Name       string         `db:"name" json:"name"`
	Email      string         `db:"email" json:"-"`
	Headline   *string        `db:"headline" json:"headline,omitempty"`
	HourlyRate *float64       `db:"hourly_rate" json:"hourlyRate,omitempty"`
	IsActive   bool           `db:"is_active" json:"isActive"`
	Subjects   pq.StringArray `db:"subjects" json:"subjects"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updatedAt"`
}

// TeacherFilter narrows the active teacher population.
type TeacherFilter struct {
	Category   *TestCategory
	ActiveOnly bool
}
