package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/testmentor-api/internal/dto"
	"github.com/noah-isme/testmentor-api/internal/models"
	"github.com/noah-isme/testmentor-api/internal/repository"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
)

// Booking attempt outcomes reported to metrics.
const (
	OutcomeCreated      = "created"
	OutcomeCapacityFull = "capacity_full"
	OutcomeUnavailable  = "unavailable"
	OutcomeRejected     = "rejected"
	OutcomeError        = "error"
)

type bookingUnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx repository.BookingTx) error) error
}

type bookingTeacherReader interface {
	FindByID(ctx context.Context, id string) (*models.TeacherProfile, error)
}

type bookingReader interface {
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error)
}

type receiptVerifier interface {
	VerifyReference(studentID string, ref dto.ReceiptReference) (dto.ReceiptReference, error)
}

type slotLocker interface {
	Lock(key string) (unlock func())
}

type bookingNotifier interface {
	BookingCreated(ctx context.Context, booking *models.Booking, selection *models.StudentTestSelection)
	BookingStatusChanged(ctx context.Context, booking *models.Booking, action models.BookingAction, previous models.BookingStatus, conversationID string)
}

type bookingMetrics interface {
	ObserveBookingAttempt(outcome string)
	ObserveBookingTransition(action models.BookingAction, outcome string)
}

// BookingService creates bookings after an atomic capacity check and serves
// participant-scoped reads.
type BookingService struct {
	uow       bookingUnitOfWork
	teachers  bookingTeacherReader
	bookings  bookingReader
	receipts  receiptVerifier
	evaluator *AvailabilityEvaluator
	locks     slotLocker
	notifier  bookingNotifier
	metrics   bookingMetrics
	validator *validator.Validate
	now       func() time.Time
	logger    *zap.Logger
}

// BookingServiceOption configures BookingService.
type BookingServiceOption func(*BookingService)

// WithBookingClock overrides the clock used to reject past instants.
func WithBookingClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBookingNotifier sets the post-commit notifier.
func WithBookingNotifier(n bookingNotifier) BookingServiceOption {
	return func(s *BookingService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithBookingMetrics sets the metrics sink.
func WithBookingMetrics(m bookingMetrics) BookingServiceOption {
	return func(s *BookingService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewBookingService constructs the creator.
func NewBookingService(
	uow bookingUnitOfWork,
	teachers bookingTeacherReader,
	bookings bookingReader,
	receipts receiptVerifier,
	evaluator *AvailabilityEvaluator,
	locks slotLocker,
	validate *validator.Validate,
	logger *zap.Logger,
	opts ...BookingServiceOption,
) *BookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if evaluator == nil {
		evaluator = NewAvailabilityEvaluator(4, nil)
	}
	svc := &BookingService{
		uow:       uow,
		teachers:  teachers,
		bookings:  bookings,
		receipts:  receipts,
		evaluator: evaluator,
		locks:     locks,
		notifier:  noopNotifier{},
		metrics:   noopBookingMetrics{},
		validator: validate,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create books teacherID for the calling student. The slot is re-evaluated
// and the booking inserted while the slot is locked, so concurrent callers
// can never push a slot past capacity.
func (s *BookingService) Create(ctx context.Context, studentID string, req dto.CreateBookingRequest) (*models.Booking, error) {
	selection, receipt, err := s.validateCreate(ctx, studentID, req)
	if err != nil {
		s.metrics.ObserveBookingAttempt(OutcomeRejected)
		return nil, err
	}
	at := selection.TestDateTime

	booking := &models.Booking{
		StudentID:     studentID,
		TeacherID:     req.TeacherID,
		StartDateTime: at,
		Status:        models.BookingStatusPending,
		ReceiptPath:   receipt.Path,
		ReceiptMime:   receipt.Mime,
	}
	if name := strings.TrimSpace(receipt.OriginalName); name != "" {
		booking.ReceiptOriginalName = &name
	}

	if s.locks != nil {
		unlock := s.locks.Lock(slotKey(req.TeacherID, at))
		defer unlock()
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx repository.BookingTx) error {
		if err := tx.LockSlot(ctx, req.TeacherID, at); err != nil {
			return err
		}
		rules, err := tx.ListRules(ctx, req.TeacherID)
		if err != nil {
			return err
		}
		exceptions, err := tx.ListExceptionsAt(ctx, req.TeacherID, at)
		if err != nil {
			return err
		}
		active, err := tx.ListActiveAtSlot(ctx, req.TeacherID, at)
		if err != nil {
			return err
		}

		eval := s.evaluator.Evaluate(req.TeacherID, at, AvailabilitySnapshot{Rules: rules, Exceptions: exceptions, Bookings: active})
		if !eval.IsOpenByRules || eval.IsBlockedByException {
			return appErrors.Clone(appErrors.ErrValidation, "teacher not available at the requested time")
		}
		if eval.SpotsLeft <= 0 {
			return appErrors.Clone(appErrors.ErrCapacityFull, "")
		}

		if err := tx.InsertSelection(ctx, selection); err != nil {
			return err
		}
		booking.StudentTestSelectionID = selection.ID
		return tx.InsertBooking(ctx, booking)
	})
	if err != nil {
		return nil, s.translateCreateError(err)
	}

	s.metrics.ObserveBookingAttempt(OutcomeCreated)
	s.logger.Info("booking created",
		zap.String("booking_id", booking.ID),
		zap.String("teacher_id", booking.TeacherID),
		zap.Time("start", booking.StartDateTime),
	)
	s.notifier.BookingCreated(ctx, booking, selection)
	return booking, nil
}

func (s *BookingService) validateCreate(ctx context.Context, studentID string, req dto.CreateBookingRequest) (*models.StudentTestSelection, dto.ReceiptReference, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, dto.ReceiptReference{}, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, dto.ReceiptReference{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking request")
	}
	if !req.TestCategory.Valid() {
		return nil, dto.ReceiptReference{}, appErrors.Clone(appErrors.ErrValidation, "unknown test category")
	}
	subtype := strings.ToUpper(strings.TrimSpace(req.TestSubtype))
	if req.TestCategory.RequiresSubtype() {
		if !containsString(models.TOLCSubtypes, subtype) {
			return nil, dto.ReceiptReference{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("testSubtype must be one of %s", strings.Join(models.TOLCSubtypes, ", ")))
		}
	} else if subtype != "" {
		return nil, dto.ReceiptReference{}, appErrors.Clone(appErrors.ErrValidation, "testSubtype is only accepted for TOLC")
	}

	at := slotInstant(req.StartDateTime)
	if !at.After(s.now()) {
		return nil, dto.ReceiptReference{}, appErrors.Clone(appErrors.ErrValidation, "startDateTime must be in the future")
	}

	teacher, err := s.teachers.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dto.ReceiptReference{}, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, dto.ReceiptReference{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if !teacher.IsActive {
		return nil, dto.ReceiptReference{}, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	if len(teacher.Subjects) > 0 && !containsString(teacher.Subjects, string(req.TestCategory)) {
		return nil, dto.ReceiptReference{}, appErrors.Clone(appErrors.ErrValidation, "teacher does not tutor this test")
	}

	receipt := req.Receipt
	if s.receipts != nil {
		if receipt, err = s.receipts.VerifyReference(studentID, req.Receipt); err != nil {
			return nil, dto.ReceiptReference{}, err
		}
	}

	selection := &models.StudentTestSelection{
		StudentID:    studentID,
		TestCategory: req.TestCategory,
		TestDateTime: at,
	}
	if subtype != "" {
		selection.TestSubtype = &subtype
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		selection.Notes = &notes
	}
	return selection, receipt, nil
}

func (s *BookingService) translateCreateError(err error) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		switch {
		case errors.Is(appErr, appErrors.ErrCapacityFull):
			s.metrics.ObserveBookingAttempt(OutcomeCapacityFull)
		case errors.Is(appErr, appErrors.ErrValidation):
			s.metrics.ObserveBookingAttempt(OutcomeUnavailable)
		default:
			s.metrics.ObserveBookingAttempt(OutcomeError)
		}
		return appErr
	case repository.IsForeignKeyViolation(err):
		s.metrics.ObserveBookingAttempt(OutcomeRejected)
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "student or teacher profile does not exist")
	case repository.IsCheckViolation(err):
		s.metrics.ObserveBookingAttempt(OutcomeRejected)
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "booking violates a data constraint")
	default:
		s.metrics.ObserveBookingAttempt(OutcomeError)
		s.logger.Error("create booking failed", zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create booking")
	}
}

// Get returns a booking visible to actor.
func (s *BookingService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Booking, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	booking, err := s.bookings.GetByID(ctx, nil, id, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	if !isParticipant(booking, actor) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
	}
	return booking, nil
}

// List returns the actor's own bookings: as student or as teacher.
func (s *BookingService) List(ctx context.Context, query dto.BookingQuery, actor *models.JWTClaims) ([]models.Booking, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if query.Status != nil && !query.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown booking status")
	}
	filter := models.BookingFilter{Status: query.Status, Page: query.Page, PageSize: query.PageSize}
	switch actor.Role {
	case models.RoleStudent:
		filter.StudentID = actor.Identity()
	case models.RoleTeacher:
		filter.TeacherID = actor.Identity()
	default:
		return nil, nil, appErrors.ErrForbidden
	}

	bookings, total, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	page, size := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return bookings, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func isParticipant(b *models.Booking, actor *models.JWTClaims) bool {
	id := actor.Identity()
	return id != "" && (b.StudentID == id || b.TeacherID == id)
}

func slotKey(teacherID string, at time.Time) string {
	return teacherID + "|" + at.UTC().Format(time.RFC3339)
}

func containsString(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

type noopNotifier struct{}

func (noopNotifier) BookingCreated(context.Context, *models.Booking, *models.StudentTestSelection) {}

func (noopNotifier) BookingStatusChanged(context.Context, *models.Booking, models.BookingAction, models.BookingStatus, string) {
}

type noopBookingMetrics struct{}

func (noopBookingMetrics) ObserveBookingAttempt(string) {}

func (noopBookingMetrics) ObserveBookingTransition(models.BookingAction, string) {}
