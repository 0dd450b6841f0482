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

type availabilityQueries interface {
	Batch(ctx context.Context, at time.Time, category *models.TestCategory) ([]models.TeacherAvailability, error)
	ForTeacher(ctx context.Context, teacherID string, at time.Time) (*models.SlotEvaluation, error)
	OpenSlots(ctx context.Context, teacherID, date, tz string, step time.Duration) (*dto.OpenSlotsResponse, error)
}

// AvailabilityHandler serves the public availability endpoints.
type AvailabilityHandler struct {
	service availabilityQueries
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(service availabilityQueries) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// Batch godoc
// @Summary Evaluate every active teacher at one instant
// @Tags Availability
// @Produce json
// @Param at query string true "Instant (RFC3339)"
// @Param category query string false "Test category (ITA_L2, TOLC, CENTS, CLA)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /availability [get]
func (h *AvailabilityHandler) Batch(c *gin.Context) {
	at, err := parseInstantQuery(c, "at", true)
	if err != nil {
		response.Error(c, err)
		return
	}
	category, err := parseCategoryQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, err := h.service.Batch(c.Request.Context(), *at, category)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil, map[string]interface{}{"at": at.UTC().Truncate(time.Second)})
}

// ForTeacher godoc
// @Summary Evaluate one teacher at one instant
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param at query string true "Instant (RFC3339)"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teachers/{id}/availability [get]
func (h *AvailabilityHandler) ForTeacher(c *gin.Context) {
	at, err := parseInstantQuery(c, "at", true)
	if err != nil {
		response.Error(c, err)
		return
	}
	row, err := h.service.ForTeacher(c.Request.Context(), c.Param("id"), *at)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

// OpenSlots godoc
// @Summary List bookable start times of one local day
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param date query string true "Local date (YYYY-MM-DD)"
// @Param tz query string false "Timezone, defaults to the teacher's"
// @Param step query int false "Slot step in minutes"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/open-slots [get]
func (h *AvailabilityHandler) OpenSlots(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date is required"))
		return
	}
	step := time.Duration(intQuery(c, "step", 0)) * time.Minute
	slots, err := h.service.OpenSlots(c.Request.Context(), c.Param("id"), date, c.Query("tz"), step)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}
