package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/PATILYASHH/SwiftChat/internal/models"
)

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrAddressTaken  = errors.New("group address already taken")
)

// GroupRepository abstracts group and membership persistence.
type GroupRepository interface {
	CreateGroup(ctx context.Context, adminID int, name string, address string) (models.Group, error)
	GetGroupByAddress(ctx context.Context, address string) (models.Group, error)
	GetGroupByID(ctx context.Context, groupID int) (models.Group, error)
	AddMember(ctx context.Context, groupID int, userID int) error
	RemoveMember(ctx context.Context, groupID int, userID int) error
	ListMembers(ctx context.Context, groupID int) ([]models.GroupMember, error)
	IsMember(ctx context.Context, groupID int, userID int) (bool, error)
	IsAdmin(ctx context.Context, groupID int, userID int) (bool, error)
	ListGroupsFor(ctx context.Context, userID int) ([]models.Group, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// CreateGroup creates a group and the admin's membership row atomically.
func (r *GroupRepo) CreateGroup(ctx context.Context, adminID int, name string, address string) (models.Group, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM groups WHERE address=$1)`, address); err != nil {
		return models.Group{}, err
	}
	if exists {
		return models.Group{}, ErrAddressTaken
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var group models.Group
	if err = tx.QueryRowxContext(ctx, `INSERT INTO groups (name, address, admin_id) VALUES ($1, $2, $3) RETURNING id, name, address, admin_id, created_at`, name, address, adminID).
		Scan(&group.ID, &group.Name, &group.Address, &group.AdminID, &group.CreatedAt); err != nil {
		return models.Group{}, err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, group.ID, adminID); err != nil {
		return models.Group{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// GetGroupByAddress resolves a group by its unique address.
func (r *GroupRepo) GetGroupByAddress(ctx context.Context, address string) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT id, name, address, admin_id, created_at FROM groups WHERE address=$1`, address)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// GetGroupByID fetches a single group.
func (r *GroupRepo) GetGroupByID(ctx context.Context, groupID int) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT id, name, address, admin_id, created_at FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// AddMember inserts a membership row. Callers are expected to have checked
// IsMember first; the capacity and idempotency rules live in the join path.
func (r *GroupRepo) AddMember(ctx context.Context, groupID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, groupID, userID)
	return err
}

// RemoveMember deletes a membership row.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	return err
}

// ListMembers returns the durable members of a group.
func (r *GroupRepo) ListMembers(ctx context.Context, groupID int) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := r.db.SelectContext(ctx, &members, `SELECT id, group_id, user_id, joined_at FROM group_members WHERE group_id=$1 ORDER BY joined_at ASC`, groupID)
	return members, err
}

// IsMember checks durable membership.
func (r *GroupRepo) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

// IsAdmin reports whether the user created the group.
func (r *GroupRepo) IsAdmin(ctx context.Context, groupID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM groups WHERE id=$1 AND admin_id=$2)`, groupID, userID)
	return exists, err
}

// ListGroupsFor returns groups that include the user.
func (r *GroupRepo) ListGroupsFor(ctx context.Context, userID int) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups, `SELECT g.id, g.name, g.address, g.admin_id, g.created_at FROM groups g INNER JOIN group_members gm ON gm.group_id = g.id WHERE gm.user_id=$1 ORDER BY g.created_at DESC`, userID)
	return groups, err
}
