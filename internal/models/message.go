package models

import "time"

// Message is a direct message between two users. Delivered flips at most once,
// on a live hand-off to the receiver's connection. Read flips in bulk when the
// receiver fetches the conversation; it does not imply delivered.
type Message struct {
	ID         int       `db:"id" json:"id"`
	SenderID   int       `db:"sender_id" json:"senderId"`
	ReceiverID int       `db:"receiver_id" json:"receiverId"`
	Content    string    `db:"content" json:"content"`
	Delivered  bool      `db:"delivered" json:"delivered"`
	Read       bool      `db:"read" json:"read"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
