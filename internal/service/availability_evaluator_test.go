package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/testmentor-api/internal/models"
)

const evalTeacher = "11111111-1111-1111-1111-111111111111"

func mondayMorningRule() models.AvailabilityRule {
	return models.AvailabilityRule{
		ID:        "rule-1",
		TeacherID: evalTeacher,
		DayOfWeek: int(time.Monday),
		StartTime: "09:00",
		EndTime:   "13:00",
		Enabled:   true,
		Timezone:  "UTC+1",
	}
}

func pendingAt(teacherID string, at time.Time) models.Booking {
	return models.Booking{TeacherID: teacherID, StartDateTime: at, Status: models.BookingStatusPending}
}

func TestEvaluatorOpensMondayMorningInOffsetZone(t *testing.T) {
	eval := NewAvailabilityEvaluator(4, nil)
	at := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)

	res := eval.Evaluate(evalTeacher, at, AvailabilitySnapshot{Rules: []models.AvailabilityRule{mondayMorningRule()}})

	assert.True(t, res.IsOpenByRules)
	assert.False(t, res.IsBlockedByException)
	assert.True(t, res.IsAvailable)
	assert.Equal(t, 4, res.SpotsLeft)
	assert.Equal(t, 4, res.ComputedCapacity)
}

func TestEvaluatorClosedOnDayWithoutRule(t *testing.T) {
	eval := NewAvailabilityEvaluator(4, nil)
	at := time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)

	res := eval.Evaluate(evalTeacher, at, AvailabilitySnapshot{Rules: []models.AvailabilityRule{mondayMorningRule()}})

	assert.False(t, res.IsOpenByRules)
	assert.False(t, res.IsAvailable)
}

func TestEvaluatorRuleBoundaries(t *testing.T) {
	eval := NewAvailabilityEvaluator(4, nil)
	rules := []models.AvailabilityRule{mondayMorningRule()}

	cases := []struct {
		name string
		at   time.Time
		open bool
	}{
		{"start inclusive", time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC), true},
		{"one second before start", time.Date(2026, 2, 9, 7, 59, 59, 0, time.UTC), false},
		{"last second", time.Date(2026, 2, 9, 11, 59, 59, 0, time.UTC), true},
		{"end exclusive", time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.open, eval.IsOpenByRules(evalTeacher, rules, tc.at))
		})
	}
}

func TestEvaluatorDisabledRuleNeverOpens(t *testing.T) {
	eval := NewAvailabilityEvaluator(4, nil)
	rule := mondayMorningRule()
	rule.Enabled = false

	assert.False(t, eval.IsOpenByRules(evalTeacher, []models.AvailabilityRule{rule}, time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC)))
}

func TestEvaluatorUnionOfOverlappingRules(t *testing.T) {
	eval := NewAvailabilityEvaluator(4, nil)
	afternoon := mondayMorningRule()
	afternoon.StartTime = "12:00:00"
	afternoon.EndTime = "18:00:00"

	rules := []models.AvailabilityRule{mondayMorningRule(), afternoon}
	assert.True(t, eval.IsOpenByRules(evalTeacher, rules, time.Date(2026, 2, 9, 12, 30, 0, 0, time.UTC)))
	assert.True(t, eval.IsOpenByRules(evalTeacher, rules, time.Date(2026, 2, 9, 16, 59, 0, 0, time.UTC)))
	assert.False(t, eval.IsOpenByRules(evalTeacher, rules, time.Date(2026, 2, 9, 17, 0, 0, 0, time.UTC)))
}

func TestEvaluatorWeekdayDerivedAfterConversion(t *testing.T) {
	eval := NewAvailabilityEvaluator(4, nil)
	rule := models.AvailabilityRule{
		TeacherID: evalTeacher,
		DayOfWeek: int(time.Monday),
		StartTime: "00:00",
		EndTime:   "02:00",
		Enabled:   true,
		Timezone:  "Europe/Rome",
	}

	// Sunday 23:30 UTC is Monday 00:30 in Rome during winter time.
	at := time.Date(2026, 2, 8, 23, 30, 0, 0, time.UTC)
	assert.True(t, eval.IsOpenByRules(evalTeacher, []models.AvailabilityRule{rule}, at))
}

func TestEvaluatorFollowsDaylightSaving(t *testing.T) {
	eval := NewAvailabilityEvaluator(4, nil)
	rule := models.AvailabilityRule{
		TeacherID: evalTeacher,
		DayOfWeek: int(time.Monday),
		StartTime: "09:00",
		EndTime:   "10:00",
		Enabled:   true,
		Timezone:  "Europe/Rome",
	}
	rules := []models.AvailabilityRule{rule}

	assert.True(t, eval.IsOpenByRules(evalTeacher, rules, time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)))
	assert.True(t, eval.IsOpenByRules(evalTeacher, rules, time.Date(2026, 7, 6, 7, 0, 0, 0, time.UTC)))
	assert.False(t, eval.IsOpenByRules(evalTeacher, rules, time.Date(2026, 7, 6, 8, 0, 0, 0, time.UTC)))
}

func TestEvaluatorSkipsRuleWithUnknownTimezone(t *testing.T) {
	eval := NewAvailabilityEvaluator(4, nil)
	rule := mondayMorningRule()
	rule.Timezone = "Mars/Olympus"

	assert.False(t, eval.IsOpenByRules(evalTeacher, []models.AvailabilityRule{rule}, time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)))
}

func TestEvaluatorExceptionTakesPrecedence(t *testing.T) {
	eval := NewAvailabilityEvaluator(4, nil)
	at := time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC)
	snap := AvailabilitySnapshot{
		Rules: []models.AvailabilityRule{mondayMorningRule()},
		Exceptions: []models.UnavailableException{{
			TeacherID:     evalTeacher,
			StartDateTime: at,
			EndDateTime:   at.Add(time.Hour),
		}},
	}

	res := eval.Evaluate(evalTeacher, at, snap)
	assert.True(t, res.IsOpenByRules)
	assert.True(t, res.IsBlockedByException)
	assert.False(t, res.IsAvailable)

	after := eval.Evaluate(evalTeacher, at.Add(time.Hour), snap)
	assert.False(t, after.IsBlockedByException)
	assert.True(t, after.IsAvailable)
}

func TestEvaluatorCapacityScenario(t *testing.T) {
	eval := NewAvailabilityEvaluator(4, nil)
	at := time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC)
	bookings := []models.Booking{
		pendingAt(evalTeacher, at),
		pendingAt(evalTeacher, at),
		pendingAt(evalTeacher, at),
		pendingAt(evalTeacher, at),
		pendingAt(evalTeacher, at.Add(30*time.Minute)),
		pendingAt("someone-else", at),
	}
	snap := AvailabilitySnapshot{Rules: []models.AvailabilityRule{mondayMorningRule()}, Bookings: bookings}

	full := eval.Evaluate(evalTeacher, at, snap)
	assert.Equal(t, 4, full.BookingCountAtSlot)
	assert.Equal(t, 0, full.SpotsLeft)
	assert.False(t, full.IsAvailable)

	snap.Bookings[0].Status = models.BookingStatusCancelled
	freed := eval.Evaluate(evalTeacher, at, snap)
	assert.Equal(t, 3, freed.BookingCountAtSlot)
	assert.Equal(t, 1, freed.SpotsLeft)
	assert.True(t, freed.IsAvailable)
}

func TestEvaluatorSpotsLeftNeverNegative(t *testing.T) {
	eval := NewAvailabilityEvaluator(1, nil)
	at := time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC)
	snap := AvailabilitySnapshot{Bookings: []models.Booking{
		pendingAt(evalTeacher, at),
		{TeacherID: evalTeacher, StartDateTime: at, Status: models.BookingStatusConfirmed},
	}}

	res := eval.Evaluate(evalTeacher, at, snap)
	assert.Equal(t, 2, res.BookingCountAtSlot)
	assert.Equal(t, 0, res.SpotsLeft)
}

func TestEvaluatorIsDeterministic(t *testing.T) {
	eval := NewAvailabilityEvaluator(4, nil)
	at := time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC)
	snap := AvailabilitySnapshot{
		Rules:    []models.AvailabilityRule{mondayMorningRule()},
		Bookings: []models.Booking{pendingAt(evalTeacher, at)},
	}

	assert.Equal(t, eval.Evaluate(evalTeacher, at, snap), eval.Evaluate(evalTeacher, at, snap))
}

func TestEvaluateBatchKeepsTeacherOrder(t *testing.T) {
	eval := NewAvailabilityEvaluator(2, nil)
	other := "22222222-2222-2222-2222-222222222222"
	at := time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC)
	otherRule := mondayMorningRule()
	otherRule.TeacherID = other
	snap := AvailabilitySnapshot{
		Rules:    []models.AvailabilityRule{mondayMorningRule(), otherRule},
		Bookings: []models.Booking{pendingAt(other, at), pendingAt(other, at)},
	}

	rows := eval.EvaluateBatch([]string{other, evalTeacher}, at, snap)
	require.Len(t, rows, 2)
	assert.Equal(t, other, rows[0].TeacherID)
	assert.False(t, rows[0].IsAvailable)
	assert.Equal(t, 0, rows[0].SpotsLeft)
	assert.Equal(t, evalTeacher, rows[1].TeacherID)
	assert.True(t, rows[1].IsAvailable)
	assert.Equal(t, 2, rows[1].SpotsLeft)
}

func TestOpenSlotsWalksTheDay(t *testing.T) {
	eval := NewAvailabilityEvaluator(1, nil)
	loc, err := eval.Zones().Resolve("UTC+1")
	require.NoError(t, err)
	dayStart := time.Date(2026, 2, 9, 0, 0, 0, 0, loc)
	taken := time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC)
	snap := AvailabilitySnapshot{
		Rules:    []models.AvailabilityRule{mondayMorningRule()},
		Bookings: []models.Booking{pendingAt(evalTeacher, taken)},
	}

	slots := eval.OpenSlots(evalTeacher, dayStart, dayStart.AddDate(0, 0, 1), time.Hour, snap)

	expected := []time.Time{
		time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 9, 11, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, expected, slots)
}

func TestZoneResolverFormats(t *testing.T) {
	z := NewZoneResolver("")
	cases := map[string]int{
		"UTC":       0,
		"UTC+1":     3600,
		"+01:00":    3600,
		"GMT-05:30": -(5*3600 + 30*60),
		"-0500":     -5 * 3600,
	}
	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for name, offset := range cases {
		loc, err := z.Resolve(name)
		require.NoError(t, err, name)
		_, got := ref.In(loc).Zone()
		assert.Equal(t, offset, got, name)
	}

	loc, err := z.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezone, loc.String())

	_, err = z.Resolve("UTC+15")
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	sec, err := parseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9*3600+30*60, sec)

	sec, err = parseClock("24:00:00")
	require.NoError(t, err)
	assert.Equal(t, 86400, sec)

	for _, bad := range []string{"9", "25:00", "12:60", "aa:bb", "24:01", "1:2:3:4"} {
		_, err := parseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestValidateRuleWindow(t *testing.T) {
	eval := NewAvailabilityEvaluator(4, nil)
	assert.NoError(t, eval.ValidateRuleWindow("09:00", "13:00", "Europe/Rome"))
	assert.Error(t, eval.ValidateRuleWindow("13:00", "09:00", ""))
	assert.Error(t, eval.ValidateRuleWindow("09:00", "09:00", ""))
	assert.Error(t, eval.ValidateRuleWindow("09:00", "10:00", "Nowhere/Land"))
}
