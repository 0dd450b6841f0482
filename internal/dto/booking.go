package dto

import (
	"time"

	"github.com/noah-isme/testmentor-api/internal/models"
)

// ReceiptReference points at an uploaded proof of payment.
type ReceiptReference struct {
	Path         string `json:"path" validate:"required"`
	Mime         string `json:"mime"`
	OriginalName string `json:"originalName"`
}

// CreateBookingRequest is the student's booking request.
type CreateBookingRequest struct {
	TeacherID     string              `json:"teacherId" validate:"required,uuid"`
	TestCategory  models.TestCategory `json:"testCategory" validate:"required"`
	TestSubtype   string              `json:"testSubtype"`
	StartDateTime time.Time           `json:"startDateTime" validate:"required"`
	Notes         string              `json:"notes" validate:"max=1000"`
	Receipt       ReceiptReference    `json:"receipt" validate:"required"`
}

// BookingTransitionResponse is returned by accept, reject and cancel.
type BookingTransitionResponse struct {
	Booking        *models.Booking `json:"booking"`
	ConversationID string          `json:"conversationId,omitempty"`
	SessionID      string          `json:"sessionId,omitempty"`
}

// BookingQuery mirrors supported listing filters.
type BookingQuery struct {
	Status   *models.BookingStatus
	Page     int
	PageSize int
}

// ReceiptURLResponse carries a short-lived download link.
type ReceiptURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
