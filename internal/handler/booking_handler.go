package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/testmentor-api/internal/dto"
	"github.com/noah-isme/testmentor-api/internal/models"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
	"github.com/noah-isme/testmentor-api/pkg/response"
)

type bookingCreator interface {
	Create(ctx context.Context, studentID string, req dto.CreateBookingRequest) (*models.Booking, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Booking, error)
	List(ctx context.Context, query dto.BookingQuery, actor *models.JWTClaims) ([]models.Booking, *models.Pagination, error)
}

type bookingTransitioner interface {
	Accept(ctx context.Context, bookingID string, actor *models.JWTClaims) (*dto.BookingTransitionResponse, error)
	Reject(ctx context.Context, bookingID string, actor *models.JWTClaims) (*dto.BookingTransitionResponse, error)
	Cancel(ctx context.Context, bookingID string, actor *models.JWTClaims) (*dto.BookingTransitionResponse, error)
}

type receiptLinker interface {
	SignedURL(ctx context.Context, bookingID string, actor *models.JWTClaims) (*dto.ReceiptURLResponse, error)
}

// BookingHandler exposes booking creation and lifecycle routes.
type BookingHandler struct {
	bookings  bookingCreator
	lifecycle bookingTransitioner
	receipts  receiptLinker
}

// NewBookingHandler constructs the handler.
func NewBookingHandler(bookings bookingCreator, lifecycle bookingTransitioner, receipts receiptLinker) *BookingHandler {
	return &BookingHandler{bookings: bookings, lifecycle: lifecycle, receipts: receipts}
}

// Create godoc
// @Summary Request a session with a teacher
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body dto.CreateBookingRequest true "Booking request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings [post]
func (h *BookingHandler) Create(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	booking, err := h.bookings.Create(c.Request.Context(), actor.Identity(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// List godoc
// @Summary List the caller's bookings
// @Tags Bookings
// @Produce json
// @Param status query string false "pending, confirmed or cancelled"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /bookings [get]
func (h *BookingHandler) List(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	query := dto.BookingQuery{
		Page:     intQuery(c, "page", 1),
		PageSize: intQuery(c, "limit", 20),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.BookingStatus(strings.ToLower(raw))
		query.Status = &status
	}
	items, pagination, err := h.bookings.List(c.Request.Context(), query, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /bookings/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	booking, err := h.bookings.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Accept godoc
// @Summary Accept a pending booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /bookings/{id}/accept [post]
func (h *BookingHandler) Accept(c *gin.Context) {
	h.transition(c, h.lifecycle.Accept)
}

// Reject godoc
// @Summary Reject a pending booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/{id}/reject [post]
func (h *BookingHandler) Reject(c *gin.Context) {
	h.transition(c, h.lifecycle.Reject)
}

// Cancel godoc
// @Summary Cancel a booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c *gin.Context) {
	h.transition(c, h.lifecycle.Cancel)
}

func (h *BookingHandler) transition(c *gin.Context, fn func(context.Context, string, *models.JWTClaims) (*dto.BookingTransitionResponse, error)) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	result, err := fn(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ReceiptURL godoc
// @Summary Get a short-lived link to the booking receipt
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/receipt-url [get]
func (h *BookingHandler) ReceiptURL(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	link, err := h.receipts.SignedURL(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}
