package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/testmentor-api/internal/models"
)

func TestTeacherRepositoryListFiltersByCategory(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	now := time.Now()
	category := models.TestCategoryTOLC
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tp.is_active = TRUE AND ($1 = ANY(tp.subjects) OR cardinality(tp.subjects) = 0) ORDER BY p.name ASC")).
		WithArgs("TOLC").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "name", "email", "headline", "hourly_rate", "is_active", "subjects", "created_at", "updated_at"}).
			AddRow("t-1", "Giulia", "giulia@example.com", "Maths tutor", "25.00", true, "{TOLC,CLA}", now, now))

	teachers, err := NewTeacherRepository(db).List(context.Background(), models.TeacherFilter{ActiveOnly: true, Category: &category})
	require.NoError(t, err)
	require.Len(t, teachers, 1)
	assert.Equal(t, []string{"TOLC", "CLA"}, []string(teachers[0].Subjects))
	require.NotNil(t, teachers[0].HourlyRate)
	assert.InDelta(t, 25.0, *teachers[0].HourlyRate, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryListKeepsGeneralistTeachers(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	now := time.Now()
	category := models.TestCategoryCLA
	mock.ExpectQuery(regexp.QuoteMeta("($1 = ANY(tp.subjects) OR cardinality(tp.subjects) = 0)")).
		WithArgs("CLA").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "name", "email", "headline", "hourly_rate", "is_active", "subjects", "created_at", "updated_at"}).
			AddRow("t-2", "Marco", "marco@example.com", "Any test", nil, true, "{}", now, now))

	teachers, err := NewTeacherRepository(db).List(context.Background(), models.TeacherFilter{Category: &category})
	require.NoError(t, err)
	require.Len(t, teachers, 1)
	assert.Empty(t, teachers[0].Subjects)
	assert.Nil(t, teachers[0].HourlyRate)
	require.NoError(t, mock.ExpectationsWereMet())
}
