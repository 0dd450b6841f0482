package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/testmentor-api/internal/dto"
	"github.com/noah-isme/testmentor-api/internal/models"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
)

type conversationStore interface {
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, since *time.Time, limit int) ([]models.Message, error)
	InsertMessage(ctx context.Context, message *models.Message) error
}

type eventPublisher interface {
	Publish(ctx context.Context, event models.BookingEvent) error
}

// ConversationService serves the chat opened between a student and a teacher
// once a booking is accepted. Only the two members can read or post.
type ConversationService struct {
	store     conversationStore
	events    eventPublisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewConversationService constructs the service. events may be nil.
func NewConversationService(store conversationStore, events eventPublisher, validate *validator.Validate, logger *zap.Logger) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ConversationService{store: store, events: events, validator: validate, logger: logger}
}

// ListForUser returns the caller's conversations.
func (s *ConversationService) ListForUser(ctx context.Context, actor *models.JWTClaims) ([]models.Conversation, error) {
	if actor.Identity() == "" {
		return nil, appErrors.ErrUnauthorized
	}
	items, err := s.store.ListForUser(ctx, actor.Identity())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list conversations")
	}
	if items == nil {
		items = []models.Conversation{}
	}
	return items, nil
}

// ListMessages returns messages of a conversation the caller belongs to.
func (s *ConversationService) ListMessages(ctx context.Context, conversationID string, actor *models.JWTClaims, query dto.MessageQuery) ([]models.Message, error) {
	if _, err := s.member(ctx, conversationID, actor); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, conversationID, query.Since, query.Limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// Post appends a message and notifies the other member.
func (s *ConversationService) Post(ctx context.Context, conversationID string, actor *models.JWTClaims, req dto.PostMessageRequest) (*models.Message, error) {
	req.Text = strings.TrimSpace(req.Text)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message")
	}
	conversation, err := s.member(ctx, conversationID, actor)
	if err != nil {
		return nil, err
	}

	message := &models.Message{ConversationID: conversation.ID, SenderID: actor.Identity(), Text: req.Text}
	if err := s.store.InsertMessage(ctx, message); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post message")
	}

	if s.events != nil {
		event := models.BookingEvent{
			Type:           models.MessageEventCreated,
			TeacherID:      conversation.TeacherID,
			StudentID:      conversation.StudentID,
			ConversationID: conversation.ID,
			OccurredAt:     message.CreatedAt,
		}
		if conversation.BookingID != nil {
			event.BookingID = *conversation.BookingID
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn("publish message event failed", zap.String("conversation_id", conversation.ID), zap.Error(err))
		}
	}
	return message, nil
}

func (s *ConversationService) member(ctx context.Context, conversationID string, actor *models.JWTClaims) (*models.Conversation, error) {
	if actor.Identity() == "" {
		return nil, appErrors.ErrUnauthorized
	}
	conversation, err := s.store.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "conversation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conversation")
	}
	if conversation.StudentID != actor.Identity() && conversation.TeacherID != actor.Identity() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "conversation not found")
	}
	return conversation, nil
}
