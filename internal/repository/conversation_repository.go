package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/testmentor-api/internal/models"
)

const conversationColumns = `id, booking_id, student_id, teacher_id, created_at, updated_at`

// ConversationRepository persists conversations and their messages.
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository constructs the repository.
func NewConversationRepository(db *sqlx.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// EnsureForBooking returns the conversation of a booking, creating it when absent.
func (r *ConversationRepository) EnsureForBooking(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) (*models.Conversation, error) {
	target := r.exec(exec)
	now := time.Now().UTC()
	const insert = `INSERT INTO conversations (id, booking_id, student_id, teacher_id, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $5) ON CONFLICT (booking_id) DO NOTHING`
	if _, err := target.ExecContext(ctx, insert, uuid.NewString(), booking.ID, booking.StudentID, booking.TeacherID, now); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	var conversation models.Conversation
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE booking_id = $1`
	if err := sqlx.GetContext(ctx, target, &conversation, query, booking.ID); err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return &conversation, nil
}

// GetByID fetches a conversation.
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	var conversation models.Conversation
	if err := r.db.GetContext(ctx, &conversation, query, id); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// ListForUser returns conversations the user takes part in, most recently active first.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
WHERE student_id = $1 OR teacher_id = $1 ORDER BY updated_at DESC`
	var conversations []models.Conversation
	if err := r.db.SelectContext(ctx, &conversations, query, userID); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return conversations, nil
}

// ListMessages returns up to limit messages in chronological order, optionally
// only those created after since.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string, since *time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	query := `SELECT id, conversation_id, sender_id, text, created_at FROM messages WHERE conversation_id = $1`
	args := []interface{}{conversationID}
	if since != nil {
		args = append(args, since.UTC())
		query += fmt.Sprintf(" AND created_at > $%d", len(args))
	}
	query += fmt.Sprintf(" ORDER BY created_at ASC LIMIT %d", limit)

	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// InsertMessage appends a message and bumps the conversation's activity time.
func (r *ConversationRepository) InsertMessage(ctx context.Context, message *models.Message) (err error) {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	message.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert message: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insert = `INSERT INTO messages (id, conversation_id, sender_id, text, created_at)
	VALUES (:id, :conversation_id, :sender_id, :text, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insert, message); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, message.ConversationID, message.CreatedAt); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit insert message: %w", err)
	}
	return nil
}
