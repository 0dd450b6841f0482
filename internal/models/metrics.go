package models

import "time"

// SystemMetrics is a point-in-time summary of request and booking counters.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	BookingAttempts          uint64    `json:"booking_attempts"`
	BookingsCreated          uint64    `json:"bookings_created"`
	BookingsRejectedFull     uint64    `json:"bookings_rejected_full"`
	Transitions              uint64    `json:"transitions"`
	SlotLocksHeld            int       `json:"slot_locks_held"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
