package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/testmentor-api/internal/dto"
	"github.com/noah-isme/testmentor-api/internal/models"
	"github.com/noah-isme/testmentor-api/internal/service"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
	"github.com/noah-isme/testmentor-api/pkg/export"
	"github.com/noah-isme/testmentor-api/pkg/response"
)

type sessionManager interface {
	List(ctx context.Context, actor *models.JWTClaims, query dto.SessionQuery) ([]models.Session, error)
	UpdateMeetingLink(ctx context.Context, id string, actor *models.JWTClaims, req dto.MeetingLinkRequest) (*models.Session, error)
	Complete(ctx context.Context, id string, actor *models.JWTClaims) (*models.Session, error)
	Export(ctx context.Context, actor *models.JWTClaims, query dto.SessionQuery, format export.Format) (*service.SessionExport, error)
}

// SessionHandler exposes the tutoring sessions of the caller.
type SessionHandler struct {
	service sessionManager
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(service sessionManager) *SessionHandler {
	return &SessionHandler{service: service}
}

func sessionQueryFrom(c *gin.Context) (dto.SessionQuery, error) {
	var query dto.SessionQuery
	from, err := parseInstantQuery(c, "from", false)
	if err != nil {
		return query, err
	}
	to, err := parseInstantQuery(c, "to", false)
	if err != nil {
		return query, err
	}
	query.From, query.To = from, to
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.SessionStatus(strings.ToLower(raw))
		query.Status = &status
	}
	return query, nil
}

// List godoc
// @Summary List the caller's sessions
// @Tags Sessions
// @Produce json
// @Param status query string false "scheduled, completed or cancelled"
// @Param from query string false "Start at or after (RFC3339)"
// @Param to query string false "Start before (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	query, err := sessionQueryFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.service.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// UpdateMeetingLink godoc
// @Summary Set the video call link of a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.MeetingLinkRequest true "Link"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/meeting-link [patch]
func (h *SessionHandler) UpdateMeetingLink(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.MeetingLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	session, err := h.service.UpdateMeetingLink(c.Request.Context(), c.Param("id"), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Complete godoc
// @Summary Mark a session as held
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/complete [post]
func (h *SessionHandler) Complete(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	session, err := h.service.Complete(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Export godoc
// @Summary Download the caller's sessions
// @Tags Sessions
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /sessions/export [get]
func (h *SessionHandler) Export(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	query, err := sessionQueryFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := export.Format(strings.ToLower(c.DefaultQuery("format", string(export.FormatCSV))))
	out, err := h.service.Export(c.Request.Context(), actor, query, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+out.Filename+`"`)
	c.Data(http.StatusOK, out.ContentType, out.Data)
}
