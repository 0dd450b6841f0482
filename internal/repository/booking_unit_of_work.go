package repository

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/testmentor-api/internal/models"
)

// BookingTx is the set of statements the booking flows run inside one transaction.
type BookingTx interface {
	LockSlot(ctx context.Context, teacherID string, at time.Time) error
	ListRules(ctx context.Context, teacherID string) ([]models.AvailabilityRule, error)
	ListExceptionsAt(ctx context.Context, teacherID string, at time.Time) ([]models.UnavailableException, error)
	ListActiveAtSlot(ctx context.Context, teacherID string, at time.Time) ([]models.Booking, error)
	InsertSelection(ctx context.Context, selection *models.StudentTestSelection) error
	InsertBooking(ctx context.Context, booking *models.Booking) error
	GetBookingForUpdate(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, from, to models.BookingStatus) (*models.Booking, error)
	EnsureConversation(ctx context.Context, booking *models.Booking) (*models.Conversation, error)
	EnsureSession(ctx context.Context, booking *models.Booking, conversationID string, duration time.Duration) (*models.Session, error)
	CancelSession(ctx context.Context, bookingID string) error
}

// BookingUnitOfWork runs booking flows in a single database transaction.
type BookingUnitOfWork struct {
	db            *sqlx.DB
	rules         *AvailabilityRuleRepository
	exceptions    *UnavailableExceptionRepository
	bookings      *BookingRepository
	selections    *TestSelectionRepository
	conversations *ConversationRepository
	sessions      *SessionRepository
}

// NewBookingUnitOfWork wires the repositories that take part in booking transactions.
func NewBookingUnitOfWork(
	db *sqlx.DB,
	rules *AvailabilityRuleRepository,
	exceptions *UnavailableExceptionRepository,
	bookings *BookingRepository,
	selections *TestSelectionRepository,
	conversations *ConversationRepository,
	sessions *SessionRepository,
) *BookingUnitOfWork {
	return &BookingUnitOfWork{
		db:            db,
		rules:         rules,
		exceptions:    exceptions,
		bookings:      bookings,
		selections:    selections,
		conversations: conversations,
		sessions:      sessions,
	}
}

// Do runs fn inside a transaction, committing when fn returns nil and rolling back otherwise.
func (u *BookingUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx BookingTx) error) (err error) {
	tx, err := u.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, &sqlBookingTx{tx: tx, u: u}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit booking tx: %w", err)
	}
	return nil
}

type sqlBookingTx struct {
	tx *sqlx.Tx
	u  *BookingUnitOfWork
}

// SlotLockKey maps a (teacher, instant) slot to a Postgres advisory lock key.
func SlotLockKey(teacherID string, at time.Time) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(teacherID))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(at.UTC().Format(time.RFC3339Nano)))
	return int64(h.Sum64())
}

func (t *sqlBookingTx) LockSlot(ctx context.Context, teacherID string, at time.Time) error {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, SlotLockKey(teacherID, at)); err != nil {
		return fmt.Errorf("lock booking slot: %w", err)
	}
	return nil
}

func (t *sqlBookingTx) ListRules(ctx context.Context, teacherID string) ([]models.AvailabilityRule, error) {
	return t.u.rules.ListByTeacher(ctx, t.tx, teacherID)
}

func (t *sqlBookingTx) ListExceptionsAt(ctx context.Context, teacherID string, at time.Time) ([]models.UnavailableException, error) {
	return t.u.exceptions.ListOverlapping(ctx, t.tx, []string{teacherID}, at, at.Add(time.Microsecond))
}

func (t *sqlBookingTx) ListActiveAtSlot(ctx context.Context, teacherID string, at time.Time) ([]models.Booking, error) {
	return t.u.bookings.ListActiveAtSlot(ctx, t.tx, []string{teacherID}, at)
}

func (t *sqlBookingTx) InsertSelection(ctx context.Context, selection *models.StudentTestSelection) error {
	return t.u.selections.Insert(ctx, t.tx, selection)
}

func (t *sqlBookingTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	return t.u.bookings.Insert(ctx, t.tx, booking)
}

func (t *sqlBookingTx) GetBookingForUpdate(ctx context.Context, id string) (*models.Booking, error) {
	return t.u.bookings.GetByID(ctx, t.tx, id, true)
}

func (t *sqlBookingTx) UpdateBookingStatus(ctx context.Context, id string, from, to models.BookingStatus) (*models.Booking, error) {
	return t.u.bookings.UpdateStatus(ctx, t.tx, id, from, to)
}

func (t *sqlBookingTx) EnsureConversation(ctx context.Context, booking *models.Booking) (*models.Conversation, error) {
	return t.u.conversations.EnsureForBooking(ctx, t.tx, booking)
}

func (t *sqlBookingTx) EnsureSession(ctx context.Context, booking *models.Booking, conversationID string, duration time.Duration) (*models.Session, error) {
	return t.u.sessions.EnsureForBooking(ctx, t.tx, booking, conversationID, duration)
}

func (t *sqlBookingTx) CancelSession(ctx context.Context, bookingID string) error {
	return t.u.sessions.CancelForBooking(ctx, t.tx, bookingID)
}
