package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/noah-isme/testmentor-api/internal/models"
)

// DefaultTimezone applies to rules stored without a zone.
const DefaultTimezone = "Europe/Rome"

var fixedOffsetPattern = regexp.MustCompile(`^(?:UTC|GMT)?([+-])(\d{1,2})(?::?(\d{2}))?$`)

// ZoneResolver turns rule timezones into locations. IANA names are cached;
// "UTC+1", "GMT-05:30", "+01:00" and "-0500" become fixed zones.
type ZoneResolver struct {
	fallback string

	mu    sync.RWMutex
	cache map[string]*time.Location
}

// NewZoneResolver builds a resolver using fallback for empty names.
func NewZoneResolver(fallback string) *ZoneResolver {
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultTimezone
	}
	return &ZoneResolver{fallback: fallback, cache: make(map[string]*time.Location)}
}

// Resolve returns the location for name.
func (z *ZoneResolver) Resolve(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = z.fallback
	}

	z.mu.RLock()
	loc, ok := z.cache[name]
	z.mu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := parseZone(name)
	if err != nil {
		return nil, err
	}

	z.mu.Lock()
	z.cache[name] = loc
	z.mu.Unlock()
	return loc, nil
}

func parseZone(name string) (*time.Location, error) {
	switch strings.ToUpper(name) {
	case "UTC", "GMT", "Z":
		return time.UTC, nil
	}
	if m := fixedOffsetPattern.FindStringSubmatch(strings.ToUpper(name)); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3])
		}
		if hours > 14 || minutes > 59 {
			return nil, fmt.Errorf("timezone offset out of range: %s", name)
		}
		offset := hours*3600 + minutes*60
		if m[1] == "-" {
			offset = -offset
		}
		return time.FixedZone(name, offset), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// parseClock converts "HH:MM" or "HH:MM:SS" into seconds since local midnight.
// "24:00" is accepted as the end of the day.
func parseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	fields := [3]int{}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || len(part) > 2 {
			return 0, fmt.Errorf("invalid time of day %q", value)
		}
		fields[i] = n
	}
	h, m, s := fields[0], fields[1], fields[2]
	if m > 59 || s > 59 || h > 24 || (h == 24 && (m > 0 || s > 0)) {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	return h*3600 + m*60 + s, nil
}

// AvailabilitySnapshot is the state the evaluator reads. Entries for other
// teachers are ignored, so one snapshot can serve a batch.
type AvailabilitySnapshot struct {
	Rules      []models.AvailabilityRule
	Exceptions []models.UnavailableException
	Bookings   []models.Booking
}

// AvailabilityEvaluator decides whether a teacher can take a booking at an
// instant. It performs no I/O and keeps no state besides the zone cache.
type AvailabilityEvaluator struct {
	capacity int
	zones    *ZoneResolver
}

// NewAvailabilityEvaluator builds an evaluator with a fixed slot capacity.
func NewAvailabilityEvaluator(capacity int, zones *ZoneResolver) *AvailabilityEvaluator {
	if capacity < 0 {
		capacity = 0
	}
	if zones == nil {
		zones = NewZoneResolver(DefaultTimezone)
	}
	return &AvailabilityEvaluator{capacity: capacity, zones: zones}
}

// Capacity returns the per-slot capacity.
func (e *AvailabilityEvaluator) Capacity() int {
	return e.capacity
}

// Zones exposes the resolver shared with rule validation.
func (e *AvailabilityEvaluator) Zones() *ZoneResolver {
	return e.zones
}

// Evaluate computes the full availability of teacherID at instant at.
func (e *AvailabilityEvaluator) Evaluate(teacherID string, at time.Time, snap AvailabilitySnapshot) models.SlotEvaluation {
	open := e.IsOpenByRules(teacherID, snap.Rules, at)
	blocked := IsBlockedByException(teacherID, snap.Exceptions, at)
	count := CountAtSlot(teacherID, snap.Bookings, at)
	spots := e.capacity - count
	if spots < 0 {
		spots = 0
	}
	return models.SlotEvaluation{
		TeacherAvailability: models.TeacherAvailability{
			TeacherID:          teacherID,
			IsAvailable:        open && !blocked && spots > 0,
			BookingCountAtSlot: count,
			ComputedCapacity:   e.capacity,
			SpotsLeft:          spots,
		},
		At:                   at.UTC(),
		IsOpenByRules:        open,
		IsBlockedByException: blocked,
	}
}

// EvaluateBatch returns one row per teacher, in the order given.
func (e *AvailabilityEvaluator) EvaluateBatch(teacherIDs []string, at time.Time, snap AvailabilitySnapshot) []models.TeacherAvailability {
	grouped := make(map[string]*AvailabilitySnapshot, len(teacherIDs))
	for _, id := range teacherIDs {
		grouped[id] = &AvailabilitySnapshot{}
	}
	for _, r := range snap.Rules {
		if g, ok := grouped[r.TeacherID]; ok {
			g.Rules = append(g.Rules, r)
		}
	}
	for _, ex := range snap.Exceptions {
		if g, ok := grouped[ex.TeacherID]; ok {
			g.Exceptions = append(g.Exceptions, ex)
		}
	}
	for _, b := range snap.Bookings {
		if g, ok := grouped[b.TeacherID]; ok {
			g.Bookings = append(g.Bookings, b)
		}
	}

	rows := make([]models.TeacherAvailability, 0, len(teacherIDs))
	for _, id := range teacherIDs {
		rows = append(rows, e.Evaluate(id, at, *grouped[id]).TeacherAvailability)
	}
	return rows
}

// IsOpenByRules reports whether any enabled rule of teacherID covers at.
// Rules whose timezone cannot be resolved never match.
func (e *AvailabilityEvaluator) IsOpenByRules(teacherID string, rules []models.AvailabilityRule, at time.Time) bool {
	for _, rule := range rules {
		if rule.TeacherID != teacherID || !rule.Enabled {
			continue
		}
		loc, err := e.zones.Resolve(rule.Timezone)
		if err != nil {
			continue
		}
		start, err := parseClock(rule.StartTime)
		if err != nil {
			continue
		}
		end, err := parseClock(rule.EndTime)
		if err != nil {
			continue
		}
		local := at.In(loc)
		if int(local.Weekday()) != rule.DayOfWeek {
			continue
		}
		sec := local.Hour()*3600 + local.Minute()*60 + local.Second()
		if sec >= start && sec < end {
			return true
		}
	}
	return false
}

// IsBlockedByException reports whether an exception of teacherID covers at.
func IsBlockedByException(teacherID string, exceptions []models.UnavailableException, at time.Time) bool {
	for _, ex := range exceptions {
		if ex.TeacherID != teacherID {
			continue
		}
		if !at.Before(ex.StartDateTime) && at.Before(ex.EndDateTime) {
			return true
		}
	}
	return false
}

// CountAtSlot counts active bookings of teacherID starting exactly at at.
func CountAtSlot(teacherID string, bookings []models.Booking, at time.Time) int {
	count := 0
	for _, b := range bookings {
		if b.TeacherID == teacherID && b.Status.CountsTowardCapacity() && b.StartDateTime.Equal(at) {
			count++
		}
	}
	return count
}

// OpenSlots lists the instants in [from, to) stepping by step at which
// teacherID is available. from should be aligned by the caller.
func (e *AvailabilityEvaluator) OpenSlots(teacherID string, from, to time.Time, step time.Duration, snap AvailabilitySnapshot) []time.Time {
	if step <= 0 {
		step = 30 * time.Minute
	}
	slots := make([]time.Time, 0)
	for at := from; at.Before(to); at = at.Add(step) {
		if e.Evaluate(teacherID, at, snap).IsAvailable {
			slots = append(slots, at.UTC())
		}
	}
	return slots
}

// ValidateRuleWindow checks a rule's times and timezone.
func (e *AvailabilityEvaluator) ValidateRuleWindow(startTime, endTime, timezone string) error {
	start, err := parseClock(startTime)
	if err != nil {
		return err
	}
	end, err := parseClock(endTime)
	if err != nil {
		return err
	}
	if start >= end {
		return fmt.Errorf("startTime must be before endTime")
	}
	if _, err := e.zones.Resolve(timezone); err != nil {
		return err
	}
	return nil
}
