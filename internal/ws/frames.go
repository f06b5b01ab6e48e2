package ws

import "github.com/PATILYASHH/SwiftChat/internal/models"

// Inbound frame types.
const (
	FrameMessage      = "message"
	FrameDelivered    = "delivered"
	FrameRead         = "read"
	FrameGroupMessage = "group_message"
	FrameJoinGroup    = "join_group"
)

// Outbound frame types.
const (
	FrameStatus        = "status"
	FrameGroupJoined   = "group_joined"
	FrameGroupMessages = "group_messages"
	FrameError         = "error"
)

// Frame is the tagged union of everything a client may send. Fields are
// optional per type; each handler validates the ones it needs.
type Frame struct {
	Type         string `json:"type"`
	Content      string `json:"content,omitempty"`
	ReceiverID   int    `json:"receiverId,omitempty"`
	MessageID    int    `json:"messageId,omitempty"`
	SenderID     int    `json:"senderId,omitempty"`
	GroupID      int    `json:"groupId,omitempty"`
	GroupAddress string `json:"groupAddress,omitempty"`
}

// MessageEvent carries a direct message, both to the receiver and as the
// authoritative echo back to the sender.
type MessageEvent struct {
	Type    string         `json:"type"`
	Message models.Message `json:"message"`
}

// DeliveredEvent acknowledges a live hand-off to the sender.
type DeliveredEvent struct {
	Type      string `json:"type"`
	MessageID int    `json:"messageId"`
}

// ReadEvent tells a sender their messages were read.
type ReadEvent struct {
	Type     string `json:"type"`
	ReaderID int    `json:"readerId"`
}

// StatusEvent announces a presence change to every live connection.
type StatusEvent struct {
	Type   string `json:"type"`
	UserID int    `json:"userId"`
	Online bool   `json:"online"`
}

// GroupMessageEvent fans a group message out to live subscribers.
type GroupMessageEvent struct {
	Type    string              `json:"type"`
	Message models.GroupMessage `json:"message"`
	GroupID int                 `json:"groupId"`
}

// GroupJoinedEvent confirms a join with the group details.
type GroupJoinedEvent struct {
	Type  string       `json:"type"`
	Group models.Group `json:"group"`
}

// GroupMessagesEvent replays the full persisted history on join.
type GroupMessagesEvent struct {
	Type     string                `json:"type"`
	GroupID  int                   `json:"groupId"`
	Messages []models.GroupMessage `json:"messages"`
}

// ErrorEvent surfaces an authorization or store failure without closing the
// connection.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
