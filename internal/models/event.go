package models

import "time"

// BookingEventType names events pushed to subscribers after a commit.
type BookingEventType string

const (
	BookingEventCreated       BookingEventType = "booking.created"
	BookingEventStatusChanged BookingEventType = "booking.status_changed"
	MessageEventCreated       BookingEventType = "message.created"
)

// BookingEvent is the payload published on the events channel.
type BookingEvent struct {
	Type           BookingEventType `json:"type"`
	BookingID      string           `json:"bookingId,omitempty"`
	TeacherID      string           `json:"teacherId"`
	StudentID      string           `json:"studentId"`
	Status         BookingStatus    `json:"status,omitempty"`
	PreviousStatus BookingStatus    `json:"previousStatus,omitempty"`
	ConversationID string           `json:"conversationId,omitempty"`
	StartDateTime  *time.Time       `json:"startDateTime,omitempty"`
	OccurredAt     time.Time        `json:"occurredAt"`
}
