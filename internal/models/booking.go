package models

import "time"

// BookingStatus is the lifecycle field of a booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// ActiveBookingStatuses are the statuses that occupy a slot.
var ActiveBookingStatuses = []BookingStatus{BookingStatusPending, BookingStatusConfirmed}

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return true
	}
	return false
}

// CountsTowardCapacity reports whether a booking in s occupies its slot.
func (s BookingStatus) CountsTowardCapacity() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// Booking is a student's request for a teacher at an absolute instant.
type Booking struct {
	ID                     string        `db:"id" json:"id"`
	StudentID              string        `db:"student_id" json:"studentId"`
	TeacherID              string        `db:"teacher_id" json:"teacherId"`
	StudentTestSelectionID string        `db:"student_test_selection_id" json:"studentTestSelectionId"`
	StartDateTime          time.Time     `db:"start_date_time" json:"startDateTime"`
	Status                 BookingStatus `db:"status" json:"status"`
	ReceiptPath            string        `db:"receipt_path" json:"receiptPath"`
	ReceiptMime            string        `db:"receipt_mime" json:"receiptMime"`
	ReceiptOriginalName    *string       `db:"receipt_original_name" json:"receiptOriginalName,omitempty"`
	CreatedAt              time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt              time.Time     `db:"updated_at" json:"updatedAt"`
}

// BookingFilter constrains booking listings.
type BookingFilter struct {
	TeacherID string
	StudentID string
	Status    *BookingStatus
	Page      int
	PageSize  int
}

// BookingAction is a lifecycle command.
type BookingAction string

const (
	BookingActionAccept BookingAction = "accept"
	BookingActionReject BookingAction = "reject"
	BookingActionCancel BookingAction = "cancel"
)
