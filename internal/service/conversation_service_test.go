package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/testmentor-api/internal/dto"
	"github.com/noah-isme/testmentor-api/internal/models"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
)

type conversationStoreStub struct {
	conversations map[string]models.Conversation
	messages      []models.Message
	insertErr     error
}

func (s *conversationStoreStub) GetByID(_ context.Context, id string) (*models.Conversation, error) {
	conversation, ok := s.conversations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &conversation, nil
}

func (s *conversationStoreStub) ListForUser(_ context.Context, userID string) ([]models.Conversation, error) {
	var out []models.Conversation
	for _, conversation := range s.conversations {
		if conversation.StudentID == userID || conversation.TeacherID == userID {
			out = append(out, conversation)
		}
	}
	return out, nil
}

func (s *conversationStoreStub) ListMessages(_ context.Context, conversationID string, since *time.Time, _ int) ([]models.Message, error) {
	var out []models.Message
	for _, message := range s.messages {
		if message.ConversationID != conversationID {
			continue
		}
		if since != nil && !message.CreatedAt.After(*since) {
			continue
		}
		out = append(out, message)
	}
	return out, nil
}

func (s *conversationStoreStub) InsertMessage(_ context.Context, message *models.Message) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	message.ID = fmt.Sprintf("m%d", len(s.messages)+1)
	message.CreatedAt = time.Date(2026, 2, 9, 10, 0, len(s.messages), 0, time.UTC)
	s.messages = append(s.messages, *message)
	return nil
}

type publisherStub struct {
	events []models.BookingEvent
	err    error
}

func (p *publisherStub) Publish(_ context.Context, event models.BookingEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func newConversationFixture() (*conversationStoreStub, *publisherStub, *ConversationService) {
	bookingID := "booking-1"
	store := &conversationStoreStub{conversations: map[string]models.Conversation{
		"c1": {ID: "c1", BookingID: &bookingID, StudentID: "student-1", TeacherID: "teacher-1"},
	}}
	events := &publisherStub{}
	return store, events, NewConversationService(store, events, nil, nil)
}

func TestConversationServicePostAndList(t *testing.T) {
	store, events, svc := newConversationFixture()

	msg, err := svc.Post(context.Background(), "c1", sessionStudent, dto.PostMessageRequest{Text: "  ciao!  "})
	require.NoError(t, err)
	assert.Equal(t, "ciao!", msg.Text)
	assert.Equal(t, "student-1", msg.SenderID)
	require.Len(t, events.events, 1)
	assert.Equal(t, models.MessageEventCreated, events.events[0].Type)
	assert.Equal(t, "booking-1", events.events[0].BookingID)
	assert.Equal(t, "c1", events.events[0].ConversationID)

	_, err = svc.Post(context.Background(), "c1", sessionTeacher, dto.PostMessageRequest{Text: "see you monday"})
	require.NoError(t, err)

	all, err := svc.ListMessages(context.Background(), "c1", sessionTeacher, dto.MessageQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	since := store.messages[0].CreatedAt
	newer, err := svc.ListMessages(context.Background(), "c1", sessionStudent, dto.MessageQuery{Since: &since})
	require.NoError(t, err)
	require.Len(t, newer, 1)
	assert.Equal(t, "see you monday", newer[0].Text)
}

func TestConversationServiceMembersOnly(t *testing.T) {
	_, _, svc := newConversationFixture()
	stranger := &models.JWTClaims{UserID: "student-9", Role: models.RoleStudent}

	_, err := svc.ListMessages(context.Background(), "c1", stranger, dto.MessageQuery{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Post(context.Background(), "c1", stranger, dto.PostMessageRequest{Text: "hi"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.ListMessages(context.Background(), "nope", sessionStudent, dto.MessageQuery{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	items, err := svc.ListForUser(context.Background(), stranger)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	_, err = svc.ListForUser(context.Background(), nil)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestConversationServiceRejectsBlankAndLongText(t *testing.T) {
	_, _, svc := newConversationFixture()

	_, err := svc.Post(context.Background(), "c1", sessionStudent, dto.PostMessageRequest{Text: "   "})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Post(context.Background(), "c1", sessionStudent, dto.PostMessageRequest{Text: strings.Repeat("a", 4001)})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestConversationServicePublishFailureIsSwallowed(t *testing.T) {
	_, events, svc := newConversationFixture()
	events.err = errStubFailure

	msg, err := svc.Post(context.Background(), "c1", sessionTeacher, dto.PostMessageRequest{Text: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
}
