package models

import "time"

// Conversation is the chat thread opened when a booking is confirmed.
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	BookingID *string   `db:"booking_id" json:"bookingId,omitempty"`
	StudentID string    `db:"student_id" json:"studentId"`
	TeacherID string    `db:"teacher_id" json:"teacherId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Message is an append-only chat entry.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversationId"`
	SenderID       string    `db:"sender_id" json:"senderId"`
	Text           string    `db:"text" json:"text"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// SessionStatus tracks the tutoring session itself.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Session spans [StartDateTime, EndDateTime] of a confirmed booking.
type Session struct {
	ID             string        `db:"id" json:"id"`
	BookingID      string        `db:"booking_id" json:"bookingId"`
	ConversationID *string       `db:"conversation_id" json:"conversationId,omitempty"`
	StudentID      string        `db:"student_id" json:"studentId"`
	TeacherID      string        `db:"teacher_id" json:"teacherId"`
	StartDateTime  time.Time     `db:"start_date_time" json:"startDateTime"`
	EndDateTime    time.Time     `db:"end_date_time" json:"endDateTime"`
	MeetingLink    *string       `db:"meeting_link" json:"meetingLink,omitempty"`
	Status         SessionStatus `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}

// SessionFilter constrains session listings for one participant.
type SessionFilter struct {
	TeacherID string
	StudentID string
	Status    *SessionStatus
	From      *time.Time
	To        *time.Time
}
