package models

import "time"

// MaxGroupMembers caps durable group membership, enforced at join time.
const MaxGroupMembers = 10

// Group is a named chat group. Address is a human-chosen slug, unique across
// all groups, used for discovery and joining. AdminID is the creator and
// never changes.
type Group struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Address   string    `db:"address" json:"address"`
	AdminID   int       `db:"admin_id" json:"adminId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// GroupMember is a durable membership row. At most one row per
// (group, user) pair; the admin's row is created with the group.
type GroupMember struct {
	ID       int       `db:"id" json:"id"`
	GroupID  int       `db:"group_id" json:"groupId"`
	UserID   int       `db:"user_id" json:"userId"`
	JoinedAt time.Time `db:"joined_at" json:"joinedAt"`
}

// GroupMessage is a message sent in a group. Fire-and-forget: no
// delivered/read tracking.
type GroupMessage struct {
	ID        int       `db:"id" json:"id"`
	GroupID   int       `db:"group_id" json:"groupId"`
	SenderID  int       `db:"sender_id" json:"senderId"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
