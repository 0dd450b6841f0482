package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/testmentor-api/internal/models"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
)

type testCatalogReader interface {
	ListCatalog(ctx context.Context) ([]models.TestCatalogEntry, error)
}

// TeacherService serves the public teacher directory and test catalogue.
type TeacherService struct {
	teachers teacherDirectory
	catalog  testCatalogReader
	logger   *zap.Logger
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(teachers teacherDirectory, catalog testCatalogReader, logger *zap.Logger) *TeacherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{teachers: teachers, catalog: catalog, logger: logger}
}

// List returns active teachers, optionally only those teaching category.
func (s *TeacherService) List(ctx context.Context, category *models.TestCategory) ([]models.TeacherProfile, error) {
	if category != nil && !category.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid test category")
	}
	teachers, err := s.teachers.List(ctx, models.TeacherFilter{Category: category, ActiveOnly: true})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	if teachers == nil {
		teachers = []models.TeacherProfile{}
	}
	sort.SliceStable(teachers, func(i, j int) bool { return teachers[i].Name < teachers[j].Name })
	return teachers, nil
}

// Get returns an active teacher by id.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.TeacherProfile, error) {
	teacher, err := s.teachers.FindByID(ctx, id)
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

// Catalog lists the bookable tests.
func (s *TeacherService) Catalog(ctx context.Context) ([]models.TestCatalogEntry, error) {
	entries, err := s.catalog.ListCatalog(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tests")
	}
	if entries == nil {
		entries = []models.TestCatalogEntry{}
	}
	return entries, nil
}
