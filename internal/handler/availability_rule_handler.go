package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/testmentor-api/internal/dto"
	"github.com/noah-isme/testmentor-api/internal/models"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
	"github.com/noah-isme/testmentor-api/pkg/response"
)

type availabilityRuleManager interface {
	ListRules(ctx context.Context, teacherID string) ([]models.AvailabilityRule, error)
	CreateRule(ctx context.Context, teacherID string, req dto.AvailabilityRuleRequest) (*models.AvailabilityRule, error)
	UpdateRule(ctx context.Context, teacherID, ruleID string, req dto.AvailabilityRuleRequest) (*models.AvailabilityRule, error)
	DeleteRule(ctx context.Context, teacherID, ruleID string) error
	ListExceptions(ctx context.Context, teacherID string, since *time.Time) ([]models.UnavailableException, error)
	CreateException(ctx context.Context, teacherID string, req dto.UnavailableExceptionRequest) (*models.UnavailableException, error)
	DeleteException(ctx context.Context, teacherID, id string) error
}

// AvailabilityRuleHandler manages weekly rules and blocked dates.
type AvailabilityRuleHandler struct {
	service availabilityRuleManager
}

// NewAvailabilityRuleHandler constructs the handler.
func NewAvailabilityRuleHandler(service availabilityRuleManager) *AvailabilityRuleHandler {
	return &AvailabilityRuleHandler{service: service}
}

// ListRules godoc
// @Summary List a teacher's weekly availability rules
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability-rules [get]
func (h *AvailabilityRuleHandler) ListRules(c *gin.Context) {
	rules, err := h.service.ListRules(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// CreateRule godoc
// @Summary Add a weekly availability rule
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body dto.AvailabilityRuleRequest true "Rule"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /availability-rules [post]
func (h *AvailabilityRuleHandler) CreateRule(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.AvailabilityRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	rule, err := h.service.CreateRule(c.Request.Context(), actor.Identity(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rule)
}

// UpdateRule godoc
// @Summary Replace a weekly availability rule
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param payload body dto.AvailabilityRuleRequest true "Rule"
// @Success 200 {object} response.Envelope
// @Router /availability-rules/{id} [put]
func (h *AvailabilityRuleHandler) UpdateRule(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.AvailabilityRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	rule, err := h.service.UpdateRule(c.Request.Context(), actor.Identity(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// DeleteRule godoc
// @Summary Delete a weekly availability rule
// @Tags Availability
// @Param id path string true "Rule ID"
// @Success 204
// @Router /availability-rules/{id} [delete]
func (h *AvailabilityRuleHandler) DeleteRule(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	if err := h.service.DeleteRule(c.Request.Context(), actor.Identity(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListExceptions godoc
// @Summary List a teacher's unavailable dates
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param since query string false "Only windows ending after this instant (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/unavailable-dates [get]
func (h *AvailabilityRuleHandler) ListExceptions(c *gin.Context) {
	since, err := parseInstantQuery(c, "since", false)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.service.ListExceptions(c.Request.Context(), c.Param("id"), since)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CreateException godoc
// @Summary Block an absolute time window
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body dto.UnavailableExceptionRequest true "Window"
// @Success 201 {object} response.Envelope
// @Router /unavailable-dates [post]
func (h *AvailabilityRuleHandler) CreateException(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.UnavailableExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	item, err := h.service.CreateException(c.Request.Context(), actor.Identity(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// DeleteException godoc
// @Summary Remove a blocked window
// @Tags Availability
// @Param id path string true "Unavailable date ID"
// @Success 204
// @Router /unavailable-dates/{id} [delete]
func (h *AvailabilityRuleHandler) DeleteException(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	if err := h.service.DeleteException(c.Request.Context(), actor.Identity(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
