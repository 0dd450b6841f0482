package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/testmentor-api/internal/models"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
)

func newAvailabilityFixture() (*memStore, *AvailabilityService) {
	store := newMemStore()
	store.addTeacher(evalTeacher, "TOLC")
	store.addTeacher("22222222-2222-2222-2222-222222222222", "CLA")
	store.rules = append(store.rules, mondayMorningRule())
	svc := NewAvailabilityService(
		memTeachers{store},
		memRules{store},
		memExceptions{store},
		memBookings{store},
		NewAvailabilityEvaluator(4, nil),
		zap.NewNop(),
		WithAvailabilityClock(func() time.Time { return time.Date(2026, 2, 9, 8, 45, 0, 0, time.UTC) }),
	)
	return store, svc
}

func TestAvailabilityServiceBatchFiltersByCategory(t *testing.T) {
	store, svc := newAvailabilityFixture()
	at := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)
	store.addBooking(models.Booking{TeacherID: evalTeacher, StartDateTime: at, Status: models.BookingStatusPending})

	tolc := models.TestCategoryTOLC
	rows, err := svc.Batch(context.Background(), at, &tolc)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, evalTeacher, rows[0].TeacherID)
	assert.True(t, rows[0].IsAvailable)
	assert.Equal(t, 1, rows[0].BookingCountAtSlot)
	assert.Equal(t, 3, rows[0].SpotsLeft)

	all, err := svc.Batch(context.Background(), at, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAvailabilityServiceBatchValidation(t *testing.T) {
	_, svc := newAvailabilityFixture()

	_, err := svc.Batch(context.Background(), time.Time{}, nil)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	bogus := models.TestCategory("SAT")
	_, err = svc.Batch(context.Background(), time.Now(), &bogus)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAvailabilityServiceBatchEmptyPopulation(t *testing.T) {
	_, svc := newAvailabilityFixture()
	cents := models.TestCategoryCENTS

	rows, err := svc.Batch(context.Background(), time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC), &cents)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestAvailabilityServiceBatchSurfacesStoreErrors(t *testing.T) {
	store, svc := newAvailabilityFixture()
	store.listErr = errStubFailure

	_, err := svc.Batch(context.Background(), time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC), nil)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestAvailabilityServiceForTeacher(t *testing.T) {
	store, svc := newAvailabilityFixture()
	at := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)
	store.exceptions = append(store.exceptions, models.UnavailableException{
		TeacherID: evalTeacher, StartDateTime: at, EndDateTime: at.Add(30 * time.Minute),
	})

	res, err := svc.ForTeacher(context.Background(), evalTeacher, at.Add(500*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, res.IsOpenByRules)
	assert.True(t, res.IsBlockedByException)
	assert.False(t, res.IsAvailable)
	assert.True(t, res.At.Equal(at))

	_, err = svc.ForTeacher(context.Background(), "nobody", at)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestAvailabilityServiceOpenSlotsHidesPastAndFull(t *testing.T) {
	store, svc := newAvailabilityFixture()
	full := time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		store.addBooking(models.Booking{TeacherID: evalTeacher, StartDateTime: full, Status: models.BookingStatusConfirmed})
	}

	res, err := svc.OpenSlots(context.Background(), evalTeacher, "2026-02-09", "", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "UTC+1", res.Timezone)
	assert.Equal(t, []time.Time{
		time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 9, 11, 0, 0, 0, time.UTC),
	}, res.Slots)
}

func TestAvailabilityServiceOpenSlotsValidation(t *testing.T) {
	_, svc := newAvailabilityFixture()

	_, err := svc.OpenSlots(context.Background(), evalTeacher, "09/02/2026", "", 0)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.OpenSlots(context.Background(), evalTeacher, "2026-02-09", "Nowhere/Land", 0)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.OpenSlots(context.Background(), evalTeacher, "2026-02-09", "", time.Minute)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
