package repositories

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/PATILYASHH/SwiftChat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for direct messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, senderID int, receiverID int, content string) (models.Message, error)
	GetMessagesBetween(ctx context.Context, userA int, userB int) ([]models.Message, error)
	MarkDelivered(ctx context.Context, receiverID int) error
	MarkRead(ctx context.Context, senderID int, receiverID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a direct message with delivered and read unset.
func (r *MessageRepo) CreateMessage(ctx context.Context, senderID int, receiverID int, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, receiver_id, content) VALUES ($1, $2, $3) RETURNING id, sender_id, receiver_id, content, delivered, read, created_at`, senderID, receiverID, content).
		Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.Delivered, &msg.Read, &msg.CreatedAt)
	return msg, err
}

// GetMessagesBetween returns the conversation between two users in
// chronological order, regardless of direction.
func (r *MessageRepo) GetMessagesBetween(ctx context.Context, userA int, userB int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT id, sender_id, receiver_id, content, delivered, read, created_at
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC, id ASC`, userA, userB)
	return msgs, err
}

// MarkDelivered flips the delivered flag on everything addressed to the
// receiver. Called on live hand-off only; history fetches never touch it.
func (r *MessageRepo) MarkDelivered(ctx context.Context, receiverID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE messages SET delivered = TRUE WHERE receiver_id=$1 AND delivered = FALSE`, receiverID)
	return err
}

// MarkRead flips the read flag on every message from sender to receiver.
// Idempotent; intentionally leaves delivered alone, so a message fetched from
// history can be read while still undelivered.
func (r *MessageRepo) MarkRead(ctx context.Context, senderID int, receiverID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE messages SET read = TRUE WHERE sender_id=$1 AND receiver_id=$2 AND read = FALSE`, senderID, receiverID)
	return err
}
