package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/testmentor-api/internal/dto"
	"github.com/noah-isme/testmentor-api/internal/models"
	"github.com/noah-isme/testmentor-api/internal/repository"
)

// memStore is an in-memory stand-in for the booking tables. Writes made
// inside memUoW.Do are staged and only applied when fn succeeds.
type memStore struct {
	mu            sync.Mutex
	seq           int64
	teachers      map[string]*models.TeacherProfile
	rules         []models.AvailabilityRule
	exceptions    []models.UnavailableException
	bookings      map[string]*models.Booking
	selections    map[string]*models.StudentTestSelection
	conversations map[string]*models.Conversation
	sessions      map[string]*models.Session

	conversationErr error
	sessionErr      error
	listErr         error
	lockedSlots     int64
}

func newMemStore() *memStore {
	return &memStore{
		teachers:      make(map[string]*models.TeacherProfile),
		bookings:      make(map[string]*models.Booking),
		selections:    make(map[string]*models.StudentTestSelection),
		conversations: make(map[string]*models.Conversation),
		sessions:      make(map[string]*models.Session),
	}
}

func (m *memStore) nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, atomic.AddInt64(&m.seq, 1))
}

func (m *memStore) addTeacher(id string, subjects ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teachers[id] = &models.TeacherProfile{UserID: id, Name: "Teacher " + id, IsActive: true, Subjects: subjects}
}

func (m *memStore) addBooking(b models.Booking) *models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == "" {
		b.ID = m.nextID("booking")
	}
	cp := b
	m.bookings[b.ID] = &cp
	return &cp
}

func (m *memStore) booking(id string) models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.bookings[id]
}

func (m *memStore) countActiveAt(teacherID string, at time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.bookings {
		if b.TeacherID == teacherID && b.StartDateTime.Equal(at) && b.Status.CountsTowardCapacity() {
			n++
		}
	}
	return n
}

// teacher directory

type memTeachers struct{ *memStore }

func (t memTeachers) List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherProfile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listErr != nil {
		return nil, t.listErr
	}
	var out []models.TeacherProfile
	for _, teacher := range t.teachers {
		if filter.ActiveOnly && !teacher.IsActive {
			continue
		}
		if filter.Category != nil && !containsString(teacher.Subjects, string(*filter.Category)) {
			continue
		}
		out = append(out, *teacher)
	}
	return out, nil
}

func (t memTeachers) FindByID(ctx context.Context, id string) (*models.TeacherProfile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	teacher, ok := t.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *teacher
	return &cp, nil
}

// rules and exceptions

type memRules struct{ *memStore }

func (r memRules) ListByTeachers(ctx context.Context, ids []string) ([]models.AvailabilityRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AvailabilityRule
	for _, rule := range r.rules {
		if containsString(ids, rule.TeacherID) {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r memRules) ListByTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) ([]models.AvailabilityRule, error) {
	return r.ListByTeachers(ctx, []string{teacherID})
}

func (r memRules) GetByID(ctx context.Context, id string) (*models.AvailabilityRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range r.rules {
		if rule.ID == id {
			cp := rule
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memRules) Create(ctx context.Context, rule *models.AvailabilityRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule.ID == "" {
		rule.ID = r.nextID("rule")
	}
	r.rules = append(r.rules, *rule)
	return nil
}

func (r memRules) Update(ctx context.Context, rule *models.AvailabilityRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.rules {
		if existing.ID == rule.ID && existing.TeacherID == rule.TeacherID {
			r.rules[i] = *rule
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r memRules) Delete(ctx context.Context, id, teacherID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.rules {
		if existing.ID == id && existing.TeacherID == teacherID {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type memExceptions struct{ *memStore }

func (e memExceptions) ListOverlapping(ctx context.Context, exec sqlx.ExtContext, ids []string, from, to time.Time) ([]models.UnavailableException, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.UnavailableException
	for _, ex := range e.exceptions {
		if containsString(ids, ex.TeacherID) && ex.StartDateTime.Before(to) && ex.EndDateTime.After(from) {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (e memExceptions) ListByTeacher(ctx context.Context, teacherID string, since *time.Time) ([]models.UnavailableException, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.UnavailableException
	for _, ex := range e.exceptions {
		if ex.TeacherID == teacherID && (since == nil || ex.EndDateTime.After(*since)) {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (e memExceptions) Create(ctx context.Context, item *models.UnavailableException) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if item.ID == "" {
		item.ID = e.nextID("exception")
	}
	e.exceptions = append(e.exceptions, *item)
	return nil
}

func (e memExceptions) Delete(ctx context.Context, id, teacherID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, ex := range e.exceptions {
		if ex.ID == id && ex.TeacherID == teacherID {
			e.exceptions = append(e.exceptions[:i], e.exceptions[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

// bookings

type memBookings struct{ *memStore }

func (b memBookings) GetByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	booking, ok := b.bookings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *booking
	return &cp, nil
}

func (b memBookings) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Booking
	for _, booking := range b.bookings {
		if filter.TeacherID != "" && booking.TeacherID != filter.TeacherID {
			continue
		}
		if filter.StudentID != "" && booking.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != nil && booking.Status != *filter.Status {
			continue
		}
		out = append(out, *booking)
	}
	return out, len(out), nil
}

func (b memBookings) ListActiveAtSlot(ctx context.Context, exec sqlx.ExtContext, ids []string, at time.Time) ([]models.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Booking
	for _, booking := range b.bookings {
		if containsString(ids, booking.TeacherID) && booking.StartDateTime.Equal(at) && booking.Status.CountsTowardCapacity() {
			out = append(out, *booking)
		}
	}
	return out, nil
}

func (b memBookings) ListActiveBetween(ctx context.Context, teacherID string, from, to time.Time) ([]models.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Booking
	for _, booking := range b.bookings {
		if booking.TeacherID == teacherID && !booking.StartDateTime.Before(from) && booking.StartDateTime.Before(to) && booking.Status.CountsTowardCapacity() {
			out = append(out, *booking)
		}
	}
	return out, nil
}

// unit of work

type memUoW struct {
	*memStore
	// yield widens the read-then-insert window so races surface in tests.
	yield func()
}

func (u memUoW) Do(ctx context.Context, fn func(ctx context.Context, tx repository.BookingTx) error) error {
	tx := &memTx{store: u.memStore, yield: u.yield}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, apply := range tx.staged {
		apply()
	}
	return nil
}

type memTx struct {
	store  *memStore
	yield  func()
	staged []func()
	added  []models.Booking
}

func (t *memTx) LockSlot(ctx context.Context, teacherID string, at time.Time) error {
	atomic.AddInt64(&t.store.lockedSlots, 1)
	return nil
}

func (t *memTx) ListRules(ctx context.Context, teacherID string) ([]models.AvailabilityRule, error) {
	return memRules{t.store}.ListByTeachers(ctx, []string{teacherID})
}

func (t *memTx) ListExceptionsAt(ctx context.Context, teacherID string, at time.Time) ([]models.UnavailableException, error) {
	return memExceptions{t.store}.ListOverlapping(ctx, nil, []string{teacherID}, at, at.Add(time.Microsecond))
}

func (t *memTx) ListActiveAtSlot(ctx context.Context, teacherID string, at time.Time) ([]models.Booking, error) {
	out, err := memBookings{t.store}.ListActiveAtSlot(ctx, nil, []string{teacherID}, at)
	if t.yield != nil {
		t.yield()
	}
	return append(out, t.added...), err
}

func (t *memTx) InsertSelection(ctx context.Context, selection *models.StudentTestSelection) error {
	selection.ID = t.store.nextID("selection")
	cp := *selection
	t.staged = append(t.staged, func() { t.store.selections[cp.ID] = &cp })
	return nil
}

func (t *memTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	booking.ID = t.store.nextID("booking")
	cp := *booking
	t.added = append(t.added, cp)
	t.staged = append(t.staged, func() { t.store.bookings[cp.ID] = &cp })
	return nil
}

func (t *memTx) GetBookingForUpdate(ctx context.Context, id string) (*models.Booking, error) {
	return memBookings{t.store}.GetByID(ctx, nil, id, true)
}

func (t *memTx) UpdateBookingStatus(ctx context.Context, id string, from, to models.BookingStatus) (*models.Booking, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	booking, ok := t.store.bookings[id]
	if !ok || booking.Status != from {
		return nil, sql.ErrNoRows
	}
	cp := *booking
	cp.Status = to
	t.staged = append(t.staged, func() { t.store.bookings[id].Status = to })
	return &cp, nil
}

func (t *memTx) EnsureConversation(ctx context.Context, booking *models.Booking) (*models.Conversation, error) {
	if t.store.conversationErr != nil {
		return nil, t.store.conversationErr
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if conv, ok := t.store.conversations[booking.ID]; ok {
		return conv, nil
	}
	bookingID := booking.ID
	conv := &models.Conversation{ID: t.store.nextID("conversation"), BookingID: &bookingID, StudentID: booking.StudentID, TeacherID: booking.TeacherID}
	t.staged = append(t.staged, func() { t.store.conversations[bookingID] = conv })
	return conv, nil
}

func (t *memTx) EnsureSession(ctx context.Context, booking *models.Booking, conversationID string, duration time.Duration) (*models.Session, error) {
	if t.store.sessionErr != nil {
		return nil, t.store.sessionErr
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if session, ok := t.store.sessions[booking.ID]; ok {
		return session, nil
	}
	convID := conversationID
	session := &models.Session{
		ID:             t.store.nextID("session"),
		BookingID:      booking.ID,
		ConversationID: &convID,
		StudentID:      booking.StudentID,
		TeacherID:      booking.TeacherID,
		StartDateTime:  booking.StartDateTime,
		EndDateTime:    booking.StartDateTime.Add(duration),
		Status:         models.SessionStatusScheduled,
	}
	bookingID := booking.ID
	t.staged = append(t.staged, func() { t.store.sessions[bookingID] = session })
	return session, nil
}

func (t *memTx) CancelSession(ctx context.Context, bookingID string) error {
	t.staged = append(t.staged, func() {
		if session, ok := t.store.sessions[bookingID]; ok {
			session.Status = models.SessionStatusCancelled
		}
	})
	return nil
}

// collaborators

type receiptVerifierStub struct {
	err      error
	verified *dto.ReceiptReference
}

func (r receiptVerifierStub) VerifyReference(studentID string, ref dto.ReceiptReference) (dto.ReceiptReference, error) {
	if r.err != nil {
		return dto.ReceiptReference{}, r.err
	}
	if r.verified != nil {
		return *r.verified, nil
	}
	return ref, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	created []string
	changed []string
}

func (n *recordingNotifier) BookingCreated(ctx context.Context, booking *models.Booking, selection *models.StudentTestSelection) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, booking.ID)
}

func (n *recordingNotifier) BookingStatusChanged(ctx context.Context, booking *models.Booking, action models.BookingAction, previous models.BookingStatus, conversationID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, fmt.Sprintf("%s:%s->%s", booking.ID, previous, booking.Status))
}

type countingMetrics struct {
	mu          sync.Mutex
	attempts    map[string]int
	transitions map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{attempts: map[string]int{}, transitions: map[string]int{}}
}

func (c *countingMetrics) ObserveBookingAttempt(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[outcome]++
}

func (c *countingMetrics) ObserveBookingTransition(action models.BookingAction, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions[string(action)+":"+outcome]++
}

var errStubFailure = errors.New("stub failure")
