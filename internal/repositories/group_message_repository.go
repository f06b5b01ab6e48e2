package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/PATILYASHH/SwiftChat/internal/models"
)

// GroupMessageRepository defines interactions for group messages.
type GroupMessageRepository interface {
	CreateGroupMessage(ctx context.Context, groupID int, senderID int, content string) (models.GroupMessage, error)
	ListGroupMessages(ctx context.Context, groupID int) ([]models.GroupMessage, error)
}

// GroupMessageRepo is a sqlx-backed implementation.
type GroupMessageRepo struct {
	db *sqlx.DB
}

// NewGroupMessageRepo constructs a GroupMessageRepo.
func NewGroupMessageRepo(db *sqlx.DB) *GroupMessageRepo {
	return &GroupMessageRepo{db: db}
}

// CreateGroupMessage persists a group message.
func (r *GroupMessageRepo) CreateGroupMessage(ctx context.Context, groupID int, senderID int, content string) (models.GroupMessage, error) {
	var msg models.GroupMessage
	err := r.db.QueryRowxContext(ctx, `INSERT INTO group_messages (group_id, sender_id, content) VALUES ($1, $2, $3) RETURNING id, group_id, sender_id, content, created_at`, groupID, senderID, content).
		Scan(&msg.ID, &msg.GroupID, &msg.SenderID, &msg.Content, &msg.CreatedAt)
	return msg, err
}

// ListGroupMessages returns the full group history in chronological order.
func (r *GroupMessageRepo) ListGroupMessages(ctx context.Context, groupID int) ([]models.GroupMessage, error) {
	var msgs []models.GroupMessage
	err := r.db.SelectContext(ctx, &msgs, `SELECT id, group_id, sender_id, content, created_at FROM group_messages WHERE group_id=$1 ORDER BY created_at ASC, id ASC`, groupID)
	return msgs, err
}
