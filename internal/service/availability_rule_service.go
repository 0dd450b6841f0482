package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/testmentor-api/internal/dto"
	"github.com/noah-isme/testmentor-api/internal/models"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
)

type ruleStore interface {
	ListByTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) ([]models.AvailabilityRule, error)
	GetByID(ctx context.Context, id string) (*models.AvailabilityRule, error)
	Create(ctx context.Context, rule *models.AvailabilityRule) error
	Update(ctx context.Context, rule *models.AvailabilityRule) error
	Delete(ctx context.Context, id, teacherID string) error
}

type exceptionStore interface {
	ListByTeacher(ctx context.Context, teacherID string, since *time.Time) ([]models.UnavailableException, error)
	Create(ctx context.Context, item *models.UnavailableException) error
	Delete(ctx context.Context, id, teacherID string) error
}

// AvailabilityRuleService manages a teacher's weekly rules and blocked dates.
// Reads are public; writes are scoped to the calling teacher.
type AvailabilityRuleService struct {
	rules      ruleStore
	exceptions exceptionStore
	evaluator  *AvailabilityEvaluator
	validator  *validator.Validate
	defaultTZ  string
	logger     *zap.Logger
}

// NewAvailabilityRuleService constructs the service.
func NewAvailabilityRuleService(rules ruleStore, exceptions exceptionStore, evaluator *AvailabilityEvaluator, validate *validator.Validate, defaultTZ string, logger *zap.Logger) *AvailabilityRuleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if evaluator == nil {
		evaluator = NewAvailabilityEvaluator(4, nil)
	}
	if strings.TrimSpace(defaultTZ) == "" {
		defaultTZ = DefaultTimezone
	}
	return &AvailabilityRuleService{
		rules:      rules,
		exceptions: exceptions,
		evaluator:  evaluator,
		validator:  validate,
		defaultTZ:  defaultTZ,
		logger:     logger,
	}
}

// ListRules returns all rules of a teacher.
func (s *AvailabilityRuleService) ListRules(ctx context.Context, teacherID string) ([]models.AvailabilityRule, error) {
	rules, err := s.rules.ListByTeacher(ctx, nil, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability rules")
	}
	if rules == nil {
		rules = []models.AvailabilityRule{}
	}
	return rules, nil
}

// CreateRule adds a weekly rule for the calling teacher.
func (s *AvailabilityRuleService) CreateRule(ctx context.Context, teacherID string, req dto.AvailabilityRuleRequest) (*models.AvailabilityRule, error) {
	rule, err := s.ruleFromRequest(req)
	if err != nil {
		return nil, err
	}
	rule.TeacherID = teacherID
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create availability rule")
	}
	s.logger.Info("availability rule created", zap.String("teacher_id", teacherID), zap.String("rule_id", rule.ID))
	return rule, nil
}

// UpdateRule replaces a rule owned by the calling teacher.
func (s *AvailabilityRuleService) UpdateRule(ctx context.Context, teacherID, ruleID string, req dto.AvailabilityRuleRequest) (*models.AvailabilityRule, error) {
	existing, err := s.rules.GetByID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "availability rule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability rule")
	}
	if existing.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "availability rule belongs to another teacher")
	}

	if req.Enabled == nil {
		enabled := existing.Enabled
		req.Enabled = &enabled
	}
	if strings.TrimSpace(req.Timezone) == "" {
		req.Timezone = existing.Timezone
	}
	rule, err := s.ruleFromRequest(req)
	if err != nil {
		return nil, err
	}
	rule.ID = existing.ID
	rule.TeacherID = teacherID
	rule.CreatedAt = existing.CreatedAt

	if err := s.rules.Update(ctx, rule); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "availability rule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update availability rule")
	}
	return rule, nil
}

// DeleteRule removes a rule owned by the calling teacher.
func (s *AvailabilityRuleService) DeleteRule(ctx context.Context, teacherID, ruleID string) error {
	if err := s.rules.Delete(ctx, ruleID, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "availability rule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete availability rule")
	}
	return nil
}

// ListExceptions returns a teacher's blocked windows, optionally only those
// still running after since.
func (s *AvailabilityRuleService) ListExceptions(ctx context.Context, teacherID string, since *time.Time) ([]models.UnavailableException, error) {
	items, err := s.exceptions.ListByTeacher(ctx, teacherID, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list unavailable dates")
	}
	if items == nil {
		items = []models.UnavailableException{}
	}
	return items, nil
}

// CreateException blocks [start, end) for the calling teacher.
func (s *AvailabilityRuleService) CreateException(ctx context.Context, teacherID string, req dto.UnavailableExceptionRequest) (*models.UnavailableException, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unavailable date")
	}
	if !req.EndDateTime.After(req.StartDateTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "endDateTime must be after startDateTime")
	}
	item := &models.UnavailableException{
		TeacherID:     teacherID,
		StartDateTime: req.StartDateTime.UTC(),
		EndDateTime:   req.EndDateTime.UTC(),
		Reason:        optionalText(req.Reason),
	}
	if err := s.exceptions.Create(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create unavailable date")
	}
	return item, nil
}

// DeleteException removes a blocked window owned by the calling teacher.
func (s *AvailabilityRuleService) DeleteException(ctx context.Context, teacherID, id string) error {
	if err := s.exceptions.Delete(ctx, id, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "unavailable date not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete unavailable date")
	}
	return nil
}

func (s *AvailabilityRuleService) ruleFromRequest(req dto.AvailabilityRuleRequest) (*models.AvailabilityRule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability rule")
	}
	tz := strings.TrimSpace(req.Timezone)
	if tz == "" {
		tz = s.defaultTZ
	}
	if err := s.evaluator.ValidateRuleWindow(req.StartTime, req.EndTime, tz); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return &models.AvailabilityRule{
		DayOfWeek: *req.DayOfWeek,
		StartTime: strings.TrimSpace(req.StartTime),
		EndTime:   strings.TrimSpace(req.EndTime),
		Enabled:   enabled,
		Timezone:  tz,
	}, nil
}

func optionalText(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}
