package models

import "time"

// AvailabilityRule is a recurring weekly open window in the teacher's local time.
// StartTime and EndTime are "HH:MM" or "HH:MM:SS"; DayOfWeek 0 is Sunday.
type AvailabilityRule struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacherId"`
	DayOfWeek int       `db:"day_of_week" json:"dayOfWeek"`
	StartTime string    `db:"start_time" json:"startTime"`
	EndTime   string    `db:"end_time" json:"endTime"`
	Enabled   bool      `db:"enabled" json:"enabled"`
	Timezone  string    `db:"timezone" json:"timezone"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// UnavailableException blocks [StartDateTime, EndDateTime) regardless of rules.
type UnavailableException struct {
	ID            string    `db:"id" json:"id"`
	TeacherID     string    `db:"teacher_id" json:"teacherId"`
	StartDateTime time.Time `db:"start_date_time" json:"startDateTime"`
	EndDateTime   time.Time `db:"end_date_time" json:"endDateTime"`
	Reason        *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// TeacherAvailability is one row of the batch availability query.
type TeacherAvailability struct {
	TeacherID          string `json:"teacherId"`
	IsAvailable        bool   `json:"isAvailable"`
	BookingCountAtSlot int    `json:"bookingCountAtSlot"`
	ComputedCapacity   int    `json:"computedCapacity"`
	SpotsLeft          int    `json:"spotsLeft"`
}

// SlotEvaluation is the full evaluation of one teacher at one instant.
type SlotEvaluation struct {
	TeacherAvailability
	At                   time.Time `json:"at"`
	IsOpenByRules        bool      `json:"isOpenByRules"`
	IsBlockedByException bool      `json:"isBlockedByException"`
}
