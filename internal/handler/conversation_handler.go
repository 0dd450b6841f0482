package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/testmentor-api/internal/dto"
	"github.com/noah-isme/testmentor-api/internal/models"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
	"github.com/noah-isme/testmentor-api/pkg/response"
)

type conversationAPI interface {
	ListForUser(ctx context.Context, actor *models.JWTClaims) ([]models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, actor *models.JWTClaims, query dto.MessageQuery) ([]models.Message, error)
	Post(ctx context.Context, conversationID string, actor *models.JWTClaims, req dto.PostMessageRequest) (*models.Message, error)
}

// ConversationHandler serves booking chats.
type ConversationHandler struct {
	service conversationAPI
}

// NewConversationHandler constructs the handler.
func NewConversationHandler(service conversationAPI) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// List godoc
// @Summary List the caller's conversations
// @Tags Conversations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /conversations [get]
func (h *ConversationHandler) List(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	items, err := h.service.ListForUser(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ListMessages godoc
// @Summary List messages of a conversation
// @Tags Conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Param since query string false "Only newer messages (RFC3339)"
// @Param limit query int false "Maximum messages"
// @Success 200 {object} response.Envelope
// @Router /conversations/{id}/messages [get]
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	since, err := parseInstantQuery(c, "since", false)
	if err != nil {
		response.Error(c, err)
		return
	}
	query := dto.MessageQuery{Since: since, Limit: intQuery(c, "limit", 0)}
	items, err := h.service.ListMessages(c.Request.Context(), c.Param("id"), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// PostMessage godoc
// @Summary Send a message
// @Tags Conversations
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param payload body dto.PostMessageRequest true "Message"
// @Success 201 {object} response.Envelope
// @Router /conversations/{id}/messages [post]
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	message, err := h.service.Post(c.Request.Context(), c.Param("id"), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, message)
}
