package dto

import (
	"time"

	"github.com/noah-isme/testmentor-api/internal/models"
)

// PostMessageRequest appends a chat message.
type PostMessageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

// MeetingLinkRequest sets the video call link of a session.
type MeetingLinkRequest struct {
	MeetingLink string `json:"meetingLink" validate:"required,url,max=500"`
}

// UploadedReceipt describes a stored receipt file.
type UploadedReceipt struct {
	Path         string `json:"path"`
	Mime         string `json:"mime"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}

// SessionQuery narrows session listings and exports.
type SessionQuery struct {
	Status *models.SessionStatus
	From   *time.Time
	To     *time.Time
}

// MessageQuery pages through a conversation.
type MessageQuery struct {
	Since *time.Time
	Limit int
}
