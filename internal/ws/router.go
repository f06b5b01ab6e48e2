package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/PATILYASHH/SwiftChat/internal/models"
	"github.com/PATILYASHH/SwiftChat/internal/observability"
	"github.com/PATILYASHH/SwiftChat/internal/repositories"
)

// Router is the protocol state machine. Frames from one connection are
// handled one at a time in arrival order; frames from different connections
// run concurrently and share only the registry and subscription table.
type Router struct {
	registry      *Registry
	subs          *SubscriptionTable
	messages      repositories.MessageRepository
	groups        repositories.GroupRepository
	groupMessages repositories.GroupMessageRepository

	// joinLocks serializes join_group per group so the capacity check and
	// the membership insert cannot interleave across connections.
	joinMu    sync.Mutex
	joinLocks map[int]*sync.Mutex
}

// NewRouter constructs a Router.
func NewRouter(registry *Registry, subs *SubscriptionTable, messages repositories.MessageRepository, groups repositories.GroupRepository, groupMessages repositories.GroupMessageRepository) *Router {
	return &Router{
		registry:      registry,
		subs:          subs,
		messages:      messages,
		groups:        groups,
		groupMessages: groupMessages,
		joinLocks:     make(map[int]*sync.Mutex),
	}
}

// HandleFrame decodes and dispatches one inbound frame. A bad frame is
// logged and dropped; the connection stays open.
func (rt *Router) HandleFrame(ctx context.Context, client *Client, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Printf("ws malformed frame from user %d: %v", client.UserID, err)
		observability.IncWSFrame("malformed")
		return
	}

	observability.IncWSFrame(frame.Type)

	switch frame.Type {
	case FrameMessage:
		rt.handleDirectMessage(ctx, client, frame)
	case FrameDelivered:
		rt.handleDelivered(client, frame)
	case FrameRead:
		rt.handleRead(ctx, client, frame)
	case FrameGroupMessage:
		rt.handleGroupMessage(ctx, client, frame)
	case FrameJoinGroup:
		rt.handleJoinGroup(ctx, client, frame)
	default:
		log.Printf("ws unknown frame type %q from user %d", frame.Type, client.UserID)
	}
}

// handleDirectMessage persists the message, hands it off live when the
// receiver is connected, and always echoes the stored message back to the
// sender so the client learns the authoritative id.
func (rt *Router) handleDirectMessage(ctx context.Context, client *Client, frame Frame) {
	if frame.ReceiverID == 0 || frame.Content == "" {
		return
	}

	msg, err := rt.messages.CreateMessage(ctx, client.UserID, frame.ReceiverID, frame.Content)
	if err != nil {
		log.Printf("ws store message failed: %v", err)
		client.Enqueue(ErrorEvent{Type: FrameError, Message: "Could not store message"})
		return
	}

	if receiver, ok := rt.registry.Lookup(frame.ReceiverID); ok {
		msg.Delivered = true
		if err := rt.messages.MarkDelivered(ctx, frame.ReceiverID); err != nil {
			log.Printf("ws mark delivered failed: %v", err)
		}
		receiver.Enqueue(MessageEvent{Type: FrameMessage, Message: msg})
		client.Enqueue(DeliveredEvent{Type: FrameDelivered, MessageID: msg.ID})
	}

	client.Enqueue(MessageEvent{Type: FrameMessage, Message: msg})
}

// handleDelivered relays a delivery acknowledgement to the original sender
// if they are online; a no-op otherwise.
func (rt *Router) handleDelivered(client *Client, frame Frame) {
	if frame.MessageID == 0 || frame.SenderID == 0 {
		return
	}
	if sender, ok := rt.registry.Lookup(frame.SenderID); ok {
		sender.Enqueue(DeliveredEvent{Type: FrameDelivered, MessageID: frame.MessageID})
	}
}

// handleRead marks everything the given sender sent to this user as read and
// notifies the sender live. The bulk update leaves the delivered flag alone.
func (rt *Router) handleRead(ctx context.Context, client *Client, frame Frame) {
	if frame.SenderID == 0 {
		return
	}

	if err := rt.messages.MarkRead(ctx, frame.SenderID, client.UserID); err != nil {
		log.Printf("ws mark read failed: %v", err)
		return
	}

	if sender, ok := rt.registry.Lookup(frame.SenderID); ok {
		sender.Enqueue(ReadEvent{Type: FrameRead, ReaderID: client.UserID})
	}
}

// handleGroupMessage persists and fans out to live subscribers. Authorization
// runs against durable membership, not the subscription table; a non-member's
// frame is dropped with only a log line.
func (rt *Router) handleGroupMessage(ctx context.Context, client *Client, frame Frame) {
	if frame.GroupID == 0 || frame.Content == "" {
		return
	}

	member, err := rt.groups.IsMember(ctx, frame.GroupID, client.UserID)
	if err != nil {
		log.Printf("ws membership check failed: %v", err)
		client.Enqueue(ErrorEvent{Type: FrameError, Message: "Could not send group message"})
		return
	}
	if !member {
		log.Printf("ws dropped group message: user %d is not a member of group %d", client.UserID, frame.GroupID)
		return
	}

	msg, err := rt.groupMessages.CreateGroupMessage(ctx, frame.GroupID, client.UserID, frame.Content)
	if err != nil {
		log.Printf("ws store group message failed: %v", err)
		client.Enqueue(ErrorEvent{Type: FrameError, Message: "Could not store group message"})
		return
	}

	event := GroupMessageEvent{Type: FrameGroupMessage, Message: msg, GroupID: frame.GroupID}
	for _, userID := range rt.subs.Members(frame.GroupID) {
		if subscriber, ok := rt.registry.Lookup(userID); ok {
			subscriber.Enqueue(event)
		}
	}
}

// handleJoinGroup resolves the group by address, adds durable membership when
// missing (capacity-checked, serialized per group), subscribes the connection
// for live fan-out and replays the full history.
func (rt *Router) handleJoinGroup(ctx context.Context, client *Client, frame Frame) {
	if frame.GroupAddress == "" {
		return
	}

	group, err := rt.groups.GetGroupByAddress(ctx, frame.GroupAddress)
	if err != nil {
		if err == repositories.ErrGroupNotFound {
			client.Enqueue(ErrorEvent{Type: FrameError, Message: "Group not found"})
		} else {
			log.Printf("ws resolve group failed: %v", err)
			client.Enqueue(ErrorEvent{Type: FrameError, Message: "Could not join group"})
		}
		return
	}

	if ok := rt.ensureMembership(ctx, client, group); !ok {
		return
	}

	rt.subs.Subscribe(group.ID, client.UserID)
	client.Enqueue(GroupJoinedEvent{Type: FrameGroupJoined, Group: group})

	history, err := rt.groupMessages.ListGroupMessages(ctx, group.ID)
	if err != nil {
		log.Printf("ws load group history failed: %v", err)
		client.Enqueue(ErrorEvent{Type: FrameError, Message: "Could not load group messages"})
		return
	}
	client.Enqueue(GroupMessagesEvent{Type: FrameGroupMessages, GroupID: group.ID, Messages: history})
}

// ensureMembership adds the caller to the group unless they already belong.
// The capacity check and insert run under the group's join lock, so at most
// ten durable members hold even with concurrent joins. Rejoining an existing
// member never re-checks capacity.
func (rt *Router) ensureMembership(ctx context.Context, client *Client, group models.Group) bool {
	lock := rt.joinLock(group.ID)
	lock.Lock()
	defer lock.Unlock()

	member, err := rt.groups.IsMember(ctx, group.ID, client.UserID)
	if err != nil {
		log.Printf("ws membership check failed: %v", err)
		client.Enqueue(ErrorEvent{Type: FrameError, Message: "Could not join group"})
		return false
	}
	if member {
		return true
	}

	members, err := rt.groups.ListMembers(ctx, group.ID)
	if err != nil {
		log.Printf("ws list members failed: %v", err)
		client.Enqueue(ErrorEvent{Type: FrameError, Message: "Could not join group"})
		return false
	}
	if len(members) >= models.MaxGroupMembers {
		client.Enqueue(ErrorEvent{Type: FrameError, Message: "Group is full"})
		return false
	}

	if err := rt.groups.AddMember(ctx, group.ID, client.UserID); err != nil {
		log.Printf("ws add member failed: %v", err)
		client.Enqueue(ErrorEvent{Type: FrameError, Message: "Could not join group"})
		return false
	}
	return true
}

// joinLock returns the group's join mutex, creating it on first use. Entries
// are never pruned: replacing a mutex while a join holds it would let two
// joins for the same group interleave.
func (rt *Router) joinLock(groupID int) *sync.Mutex {
	rt.joinMu.Lock()
	defer rt.joinMu.Unlock()
	lock, ok := rt.joinLocks[groupID]
	if !ok {
		lock = &sync.Mutex{}
		rt.joinLocks[groupID] = lock
	}
	return lock
}
