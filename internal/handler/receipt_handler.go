package handler

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/testmentor-api/internal/dto"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
	"github.com/noah-isme/testmentor-api/pkg/response"
)

type receiptStorage interface {
	Upload(ctx context.Context, studentID string, file io.Reader, originalName string, size int64) (*dto.UploadedReceipt, error)
	Open(token string) (*os.File, string, error)
}

// ReceiptHandler accepts receipt uploads and serves signed downloads.
type ReceiptHandler struct {
	service  receiptStorage
	maxBytes int64
}

// NewReceiptHandler constructs the handler. maxBytes caps the request body.
func NewReceiptHandler(service receiptStorage, maxBytes int64) *ReceiptHandler {
	return &ReceiptHandler{service: service, maxBytes: maxBytes}
}

// Upload godoc
// @Summary Upload a proof of payment
// @Tags Receipts
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF, PNG or JPEG"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /receipts [post]
func (h *ReceiptHandler) Upload(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	if h.maxBytes > 0 {
		// multipart framing needs some headroom over the file limit
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+64*1024)
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "could not read file"))
		return
	}
	defer file.Close() //nolint:errcheck

	uploaded, err := h.service.Upload(c.Request.Context(), actor.Identity(), file, header.Filename, header.Size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, uploaded)
}

// Download godoc
// @Summary Download a receipt through a signed link
// @Tags Receipts
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /receipts/download [get]
func (h *ReceiptHandler) Download(c *gin.Context) {
	file, contentType, err := h.service.Open(c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read receipt"))
		return
	}
	c.Header("Cache-Control", "private, no-store")
	c.Header("Content-Disposition", "inline")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
