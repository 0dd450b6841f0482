package dto

import "time"

// AvailabilityRuleRequest creates or replaces a weekly rule.
type AvailabilityRuleRequest struct {
	DayOfWeek *int   `json:"dayOfWeek" validate:"required,min=0,max=6"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
	Enabled   *bool  `json:"enabled"`
	Timezone  string `json:"timezone"`
}

// UnavailableExceptionRequest blocks an absolute window.
type UnavailableExceptionRequest struct {
	StartDateTime time.Time `json:"startDateTime" validate:"required"`
	EndDateTime   time.Time `json:"endDateTime" validate:"required"`
	Reason        string    `json:"reason" validate:"max=500"`
}

// OpenSlotsResponse lists bookable instants of one local day.
type OpenSlotsResponse struct {
	TeacherID string      `json:"teacherId"`
	Date      string      `json:"date"`
	Timezone  string      `json:"timezone"`
	Slots     []time.Time `json:"slots"`
}
