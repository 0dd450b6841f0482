package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/testmentor-api/internal/dto"
	"github.com/noah-isme/testmentor-api/internal/models"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
)

type teacherDirectory interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherProfile, error)
	FindByID(ctx context.Context, id string) (*models.TeacherProfile, error)
}

type availabilityRuleReader interface {
	ListByTeachers(ctx context.Context, teacherIDs []string) ([]models.AvailabilityRule, error)
}

type availabilityExceptionReader interface {
	ListOverlapping(ctx context.Context, exec sqlx.ExtContext, teacherIDs []string, from, to time.Time) ([]models.UnavailableException, error)
}

type availabilityBookingReader interface {
	ListActiveAtSlot(ctx context.Context, exec sqlx.ExtContext, teacherIDs []string, at time.Time) ([]models.Booking, error)
	ListActiveBetween(ctx context.Context, teacherID string, from, to time.Time) ([]models.Booking, error)
}

// AvailabilityService loads live state and runs the evaluator over it.
type AvailabilityService struct {
	teachers   teacherDirectory
	rules      availabilityRuleReader
	exceptions availabilityExceptionReader
	bookings   availabilityBookingReader
	evaluator  *AvailabilityEvaluator
	step       time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// AvailabilityServiceOption configures AvailabilityService.
type AvailabilityServiceOption func(*AvailabilityService)

// WithAvailabilityClock overrides the clock used to hide past slots.
func WithAvailabilityClock(now func() time.Time) AvailabilityServiceOption {
	return func(s *AvailabilityService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSlotStep sets the default open-slot granularity.
func WithSlotStep(step time.Duration) AvailabilityServiceOption {
	return func(s *AvailabilityService) {
		if step > 0 {
			s.step = step
		}
	}
}

// NewAvailabilityService constructs the service.
func NewAvailabilityService(
	teachers teacherDirectory,
	rules availabilityRuleReader,
	exceptions availabilityExceptionReader,
	bookings availabilityBookingReader,
	evaluator *AvailabilityEvaluator,
	logger *zap.Logger,
	opts ...AvailabilityServiceOption,
) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if evaluator == nil {
		evaluator = NewAvailabilityEvaluator(4, nil)
	}
	svc := &AvailabilityService{
		teachers:   teachers,
		rules:      rules,
		exceptions: exceptions,
		bookings:   bookings,
		evaluator:  evaluator,
		step:       30 * time.Minute,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// slotInstant normalises a requested instant to UTC with second precision.
func slotInstant(at time.Time) time.Time {
	return at.UTC().Truncate(time.Second)
}

// Batch evaluates every active teacher at one instant. category narrows the
// teacher population only.
func (s *AvailabilityService) Batch(ctx context.Context, at time.Time, category *models.TestCategory) ([]models.TeacherAvailability, error) {
	if at.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at is required")
	}
	if category != nil && !category.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown test category")
	}
	at = slotInstant(at)

	teachers, err := s.teachers.List(ctx, models.TeacherFilter{Category: category, ActiveOnly: true})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	if len(teachers) == 0 {
		return []models.TeacherAvailability{}, nil
	}
	ids := make([]string, 0, len(teachers))
	for _, t := range teachers {
		ids = append(ids, t.UserID)
	}

	snap, err := s.snapshotAt(ctx, ids, at)
	if err != nil {
		return nil, err
	}
	return s.evaluator.EvaluateBatch(ids, at, snap), nil
}

// ForTeacher evaluates a single teacher, including the rule and exception flags.
func (s *AvailabilityService) ForTeacher(ctx context.Context, teacherID string, at time.Time) (*models.SlotEvaluation, error) {
	if at.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at is required")
	}
	if _, err := s.activeTeacher(ctx, teacherID); err != nil {
		return nil, err
	}
	at = slotInstant(at)
	snap, err := s.snapshotAt(ctx, []string{teacherID}, at)
	if err != nil {
		return nil, err
	}
	result := s.evaluator.Evaluate(teacherID, at, snap)
	return &result, nil
}

// OpenSlots lists the future instants of one local day at which the teacher
// can still be booked. The day is read in tz, or in the zone of the
// teacher's first enabled rule when tz is empty.
func (s *AvailabilityService) OpenSlots(ctx context.Context, teacherID, date, tz string, step time.Duration) (*dto.OpenSlotsResponse, error) {
	if _, err := s.activeTeacher(ctx, teacherID); err != nil {
		return nil, err
	}
	if step <= 0 {
		step = s.step
	}
	if step < 5*time.Minute || step > 24*time.Hour {
		return nil, appErrors.Clone(appErrors.ErrValidation, "step must be between 5 minutes and 24 hours")
	}

	rules, err := s.rules.ListByTeachers(ctx, []string{teacherID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability rules")
	}
	if strings.TrimSpace(tz) == "" {
		tz = firstEnabledZone(rules)
	}
	loc, err := s.evaluator.Zones().Resolve(tz)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid timezone")
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
	}
	dayEnd := day.AddDate(0, 0, 1)

	exceptions, err := s.exceptions.ListOverlapping(ctx, nil, []string{teacherID}, day, dayEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unavailable dates")
	}
	bookings, err := s.bookings.ListActiveBetween(ctx, teacherID, day, dayEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bookings")
	}

	snap := AvailabilitySnapshot{Rules: rules, Exceptions: exceptions, Bookings: bookings}
	now := s.now()
	slots := make([]time.Time, 0)
	for _, at := range s.evaluator.OpenSlots(teacherID, day, dayEnd, step, snap) {
		if at.After(now) {
			slots = append(slots, at)
		}
	}

	return &dto.OpenSlotsResponse{
		TeacherID: teacherID,
		Date:      day.Format("2006-01-02"),
		Timezone:  loc.String(),
		Slots:     slots,
	}, nil
}

func (s *AvailabilityService) activeTeacher(ctx context.Context, teacherID string) (*models.TeacherProfile, error) {
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if !teacher.IsActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return teacher, nil
}

func (s *AvailabilityService) snapshotAt(ctx context.Context, teacherIDs []string, at time.Time) (AvailabilitySnapshot, error) {
	rules, err := s.rules.ListByTeachers(ctx, teacherIDs)
	if err != nil {
		return AvailabilitySnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability rules")
	}
	exceptions, err := s.exceptions.ListOverlapping(ctx, nil, teacherIDs, at, at.Add(time.Second))
	if err != nil {
		return AvailabilitySnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unavailable dates")
	}
	bookings, err := s.bookings.ListActiveAtSlot(ctx, nil, teacherIDs, at)
	if err != nil {
		return AvailabilitySnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bookings")
	}
	s.logger.Debug("availability snapshot loaded",
		zap.Int("teachers", len(teacherIDs)),
		zap.Int("rules", len(rules)),
		zap.Int("exceptions", len(exceptions)),
		zap.Int("bookings", len(bookings)),
	)
	return AvailabilitySnapshot{Rules: rules, Exceptions: exceptions, Bookings: bookings}, nil
}

func firstEnabledZone(rules []models.AvailabilityRule) string {
	for _, r := range rules {
		if r.Enabled && strings.TrimSpace(r.Timezone) != "" {
			return r.Timezone
		}
	}
	return ""
}
