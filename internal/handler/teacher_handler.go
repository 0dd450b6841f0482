package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/testmentor-api/internal/models"
	"github.com/noah-isme/testmentor-api/pkg/response"
)

type teacherDirectory interface {
	List(ctx context.Context, category *models.TestCategory) ([]models.TeacherProfile, error)
	Get(ctx context.Context, id string) (*models.TeacherProfile, error)
	Catalog(ctx context.Context) ([]models.TestCatalogEntry, error)
}

// TeacherHandler wires the teacher directory to HTTP routes.
type TeacherHandler struct {
	teachers teacherDirectory
}

// NewTeacherHandler constructs a new TeacherHandler.
func NewTeacherHandler(teachers teacherDirectory) *TeacherHandler {
	return &TeacherHandler{teachers: teachers}
}

// List godoc
// @Summary List active teachers
// @Tags Teachers
// @Produce json
// @Param category query string false "Only teachers preparing for this test"
// @Success 200 {object} response.Envelope
// @Router /teachers [get]
func (h *TeacherHandler) List(c *gin.Context) {
	category, err := parseCategoryQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	teachers, err := h.teachers.List(c.Request.Context(), category)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, nil)
}

// Get godoc
// @Summary Get teacher detail
// @Tags Teachers
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teachers/{id} [get]
func (h *TeacherHandler) Get(c *gin.Context) {
	teacher, err := h.teachers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}

// Catalog godoc
// @Summary List bookable tests
// @Tags Teachers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /tests [get]
func (h *TeacherHandler) Catalog(c *gin.Context) {
	entries, err := h.teachers.Catalog(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
