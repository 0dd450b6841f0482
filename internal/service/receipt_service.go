package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/testmentor-api/internal/dto"
	"github.com/noah-isme/testmentor-api/internal/models"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
	"github.com/noah-isme/testmentor-api/pkg/storage"
)

type receiptStore interface {
	SaveStream(key string, r io.Reader, limit int64) (int64, error)
	Open(key string) (*os.File, error)
	Exists(key string) (bool, error)
}

type receiptSigner interface {
	Generate(subject, key string) (string, time.Time, error)
	Parse(token string) (subject, key string, expiresAt time.Time, err error)
}

type receiptBookingReader interface {
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.Booking, error)
}

// ReceiptConfig limits what can be uploaded and where downloads are served.
type ReceiptConfig struct {
	MaxBytes     int64
	AllowedMIMEs []string
	DownloadPath string
}

var receiptExtensions = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

// ReceiptService stores proof-of-payment files and hands out signed links to
// booking participants.
type ReceiptService struct {
	store    receiptStore
	signer   receiptSigner
	bookings receiptBookingReader
	cfg      ReceiptConfig
	logger   *zap.Logger
}

// NewReceiptService constructs the service.
func NewReceiptService(store receiptStore, signer receiptSigner, bookings receiptBookingReader, cfg ReceiptConfig, logger *zap.Logger) *ReceiptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 5 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf", "image/png", "image/jpeg"}
	}
	if cfg.DownloadPath == "" {
		cfg.DownloadPath = "/api/v1/receipts/download"
	}
	return &ReceiptService{store: store, signer: signer, bookings: bookings, cfg: cfg, logger: logger}
}

// Upload sniffs, size-checks and stores a receipt under the student's prefix.
func (s *ReceiptService) Upload(ctx context.Context, studentID string, file io.Reader, originalName string, size int64) (*dto.UploadedReceipt, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if size > s.cfg.MaxBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "receipt exceeds the maximum file size")
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "could not read receipt")
	}
	head = head[:n]
	if n == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "receipt is empty")
	}

	contentType := sniffMIME(head)
	if !containsString(s.cfg.AllowedMIMEs, contentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "receipt must be a PDF, PNG or JPEG file")
	}

	key := studentID + "/" + uuid.NewString() + receiptExtensions[contentType]
	written, err := s.store.SaveStream(key, io.MultiReader(bytes.NewReader(head), file), s.cfg.MaxBytes)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "receipt exceeds the maximum file size")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store receipt")
	}

	s.logger.Info("receipt stored", zap.String("student_id", studentID), zap.String("path", key), zap.Int64("bytes", written))
	return &dto.UploadedReceipt{
		Path:         key,
		Mime:         contentType,
		OriginalName: filepath.Base(strings.TrimSpace(originalName)),
		Size:         written,
	}, nil
}

// VerifyReference checks that ref names an existing receipt uploaded by
// studentID and returns the normalized reference: the cleaned storage key and
// the content type sniffed from the stored bytes. A client-declared mime that
// disagrees with the stored file is rejected.
func (s *ReceiptService) VerifyReference(studentID string, ref dto.ReceiptReference) (dto.ReceiptReference, error) {
	raw := strings.TrimSpace(ref.Path)
	if raw == "" {
		return dto.ReceiptReference{}, appErrors.Clone(appErrors.ErrValidation, "receipt is required")
	}
	key := path.Clean(raw)
	if studentID == "" || !strings.HasPrefix(key, studentID+"/") {
		return dto.ReceiptReference{}, appErrors.Clone(appErrors.ErrValidation, "receipt does not belong to the student")
	}
	ok, err := s.store.Exists(key)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidPath) {
			return dto.ReceiptReference{}, appErrors.Clone(appErrors.ErrValidation, "invalid receipt path")
		}
		return dto.ReceiptReference{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check receipt")
	}
	if !ok {
		return dto.ReceiptReference{}, appErrors.Clone(appErrors.ErrValidation, "receipt not found, upload it first")
	}

	contentType, err := s.storedMIME(key)
	if err != nil {
		return dto.ReceiptReference{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read receipt")
	}
	if !containsString(s.cfg.AllowedMIMEs, contentType) {
		return dto.ReceiptReference{}, appErrors.Clone(appErrors.ErrValidation, "unsupported receipt type")
	}
	if declared := strings.TrimSpace(ref.Mime); declared != "" && declared != contentType {
		return dto.ReceiptReference{}, appErrors.Clone(appErrors.ErrValidation, "receipt type does not match the uploaded file")
	}

	return dto.ReceiptReference{
		Path:         key,
		Mime:         contentType,
		OriginalName: strings.TrimSpace(ref.OriginalName),
	}, nil
}

func (s *ReceiptService) storedMIME(key string) (string, error) {
	file, err := s.store.Open(key)
	if err != nil {
		return "", err
	}
	defer file.Close() //nolint:errcheck

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return sniffMIME(head[:n]), nil
}

// SignedURL returns a short-lived download link for a booking's receipt.
func (s *ReceiptService) SignedURL(ctx context.Context, bookingID string, actor *models.JWTClaims) (*dto.ReceiptURLResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	booking, err := s.bookings.GetByID(ctx, nil, bookingID, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	if !isParticipant(booking, actor) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
	}
	if booking.ReceiptPath == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "booking has no receipt")
	}
	token, expiresAt, err := s.signer.Generate(booking.ID, booking.ReceiptPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign receipt link")
	}
	return &dto.ReceiptURLResponse{
		URL:       s.cfg.DownloadPath + "?token=" + url.QueryEscape(token),
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

// Open resolves a download token to the stored file and its content type.
// The caller closes the file.
func (s *ReceiptService) Open(token string) (*os.File, string, error) {
	_, key, _, err := s.signer.Parse(strings.TrimSpace(token))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download link")
	}
	file, err := s.store.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "receipt not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open receipt")
	}
	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return file, contentType, nil
}

func sniffMIME(head []byte) string {
	detected := http.DetectContentType(head)
	if mediaType, _, err := mime.ParseMediaType(detected); err == nil {
		return mediaType
	}
	return detected
}
