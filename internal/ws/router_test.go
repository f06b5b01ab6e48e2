package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/PATILYASHH/SwiftChat/internal/mocks"
	"github.com/PATILYASHH/SwiftChat/internal/models"
	"github.com/PATILYASHH/SwiftChat/internal/repositories"
)

type routerFixture struct {
	registry      *Registry
	subs          *SubscriptionTable
	messages      *mocks.MessageRepositoryMock
	groups        *mocks.GroupRepositoryMock
	groupMessages *mocks.GroupMessageRepositoryMock
	router        *Router
}

func newRouterFixture() *routerFixture {
	f := &routerFixture{
		registry:      NewRegistry(),
		subs:          NewSubscriptionTable(),
		messages:      new(mocks.MessageRepositoryMock),
		groups:        new(mocks.GroupRepositoryMock),
		groupMessages: new(mocks.GroupMessageRepositoryMock),
	}
	f.router = NewRouter(f.registry, f.subs, f.messages, f.groups, f.groupMessages)
	return f
}

func (f *routerFixture) connect(userID int) *Client {
	client := NewClient(userID, nil, ConnInfo{})
	f.registry.Register(userID, client)
	return client
}

func (f *routerFixture) handle(t *testing.T, client *Client, frame any) {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	f.router.HandleFrame(context.Background(), client, raw)
}

func dequeue(t *testing.T, client *Client, v any) {
	t.Helper()
	select {
	case payload := <-client.send:
		require.NoError(t, json.Unmarshal(payload, v))
	default:
		t.Fatalf("no frame queued for user %d", client.UserID)
	}
}

func TestDirectMessageLiveDelivery(t *testing.T) {
	f := newRouterFixture()
	sender := f.connect(1)
	receiver := f.connect(2)

	stored := models.Message{ID: 7, SenderID: 1, ReceiverID: 2, Content: "hi"}
	f.messages.On("CreateMessage", mock.Anything, 1, 2, "hi").Return(stored, nil).Once()
	f.messages.On("MarkDelivered", mock.Anything, 2).Return(nil).Once()

	f.handle(t, sender, Frame{Type: FrameMessage, ReceiverID: 2, Content: "hi"})

	var got MessageEvent
	dequeue(t, receiver, &got)
	assert.Equal(t, FrameMessage, got.Type)
	assert.Equal(t, 7, got.Message.ID)
	assert.True(t, got.Message.Delivered)

	var ack DeliveredEvent
	dequeue(t, sender, &ack)
	assert.Equal(t, FrameDelivered, ack.Type)
	assert.Equal(t, 7, ack.MessageID)

	var echo MessageEvent
	dequeue(t, sender, &echo)
	assert.Equal(t, 7, echo.Message.ID)

	assert.Empty(t, sender.send, "sender must receive exactly one delivered ack")
	f.messages.AssertExpectations(t)
}

func TestDirectMessageOfflineReceiver(t *testing.T) {
	f := newRouterFixture()
	sender := f.connect(1)

	stored := models.Message{ID: 8, SenderID: 1, ReceiverID: 2, Content: "later"}
	f.messages.On("CreateMessage", mock.Anything, 1, 2, "later").Return(stored, nil).Once()

	f.handle(t, sender, Frame{Type: FrameMessage, ReceiverID: 2, Content: "later"})

	// Only the echo; no delivered ack, delivered stays false.
	var echo MessageEvent
	dequeue(t, sender, &echo)
	assert.False(t, echo.Message.Delivered)
	assert.Empty(t, sender.send)
	f.messages.AssertExpectations(t)
}

func TestDirectMessageMissingFieldsIgnored(t *testing.T) {
	f := newRouterFixture()
	sender := f.connect(1)

	f.handle(t, sender, Frame{Type: FrameMessage, Content: "no receiver"})
	f.handle(t, sender, Frame{Type: FrameMessage, ReceiverID: 2})

	assert.Empty(t, sender.send)
	f.messages.AssertExpectations(t)
}

func TestMalformedFrameDropped(t *testing.T) {
	f := newRouterFixture()
	sender := f.connect(1)

	f.router.HandleFrame(context.Background(), sender, []byte("{not json"))
	f.router.HandleFrame(context.Background(), sender, []byte(`{"type":"no_such_frame"}`))

	assert.Empty(t, sender.send, "bad frames must be dropped without a reply")
}

func TestDeliveredRelayedToSender(t *testing.T) {
	f := newRouterFixture()
	receiver := f.connect(2)
	sender := f.connect(1)

	f.handle(t, receiver, Frame{Type: FrameDelivered, MessageID: 7, SenderID: 1})

	var ack DeliveredEvent
	dequeue(t, sender, &ack)
	assert.Equal(t, 7, ack.MessageID)
}

func TestDeliveredNoopWhenSenderOffline(t *testing.T) {
	f := newRouterFixture()
	receiver := f.connect(2)

	f.handle(t, receiver, Frame{Type: FrameDelivered, MessageID: 7, SenderID: 1})

	assert.Empty(t, receiver.send)
}

func TestReadMarksBulkAndNotifiesSender(t *testing.T) {
	f := newRouterFixture()
	reader := f.connect(1)
	sender := f.connect(3)

	f.messages.On("MarkRead", mock.Anything, 3, 1).Return(nil).Once()

	f.handle(t, reader, Frame{Type: FrameRead, SenderID: 3})

	var event ReadEvent
	dequeue(t, sender, &event)
	assert.Equal(t, FrameRead, event.Type)
	assert.Equal(t, 1, event.ReaderID)
	f.messages.AssertExpectations(t)
}

func TestGroupMessageFanOutToSubscribers(t *testing.T) {
	f := newRouterFixture()
	sender := f.connect(1)
	subscriber := f.connect(2)
	f.subs.Subscribe(9, 1)
	f.subs.Subscribe(9, 2)
	f.subs.Subscribe(9, 3) // subscribed but offline

	stored := models.GroupMessage{ID: 4, GroupID: 9, SenderID: 1, Content: "hey"}
	f.groups.On("IsMember", mock.Anything, 9, 1).Return(true, nil).Once()
	f.groupMessages.On("CreateGroupMessage", mock.Anything, 9, 1, "hey").Return(stored, nil).Once()

	f.handle(t, sender, Frame{Type: FrameGroupMessage, GroupID: 9, Content: "hey"})

	var got GroupMessageEvent
	dequeue(t, subscriber, &got)
	assert.Equal(t, 9, got.GroupID)
	assert.Equal(t, "hey", got.Message.Content)

	// The sender is a subscriber too and gets the fan-out copy.
	var own GroupMessageEvent
	dequeue(t, sender, &own)
	assert.Equal(t, 4, own.Message.ID)

	f.groups.AssertExpectations(t)
	f.groupMessages.AssertExpectations(t)
}

func TestGroupMessageNonMemberDroppedSilently(t *testing.T) {
	f := newRouterFixture()
	sender := f.connect(1)
	subscriber := f.connect(2)
	f.subs.Subscribe(9, 2)

	f.groups.On("IsMember", mock.Anything, 9, 1).Return(false, nil).Once()

	f.handle(t, sender, Frame{Type: FrameGroupMessage, GroupID: 9, Content: "hey"})

	assert.Empty(t, sender.send, "no error frame for a non-member")
	assert.Empty(t, subscriber.send, "nothing persisted, nothing fanned out")
	f.groups.AssertExpectations(t)
	f.groupMessages.AssertExpectations(t)
}

func TestJoinGroupNotFound(t *testing.T) {
	f := newRouterFixture()
	client := f.connect(1)

	f.groups.On("GetGroupByAddress", mock.Anything, "nowhere").Return(models.Group{}, repositories.ErrGroupNotFound).Once()

	f.handle(t, client, Frame{Type: FrameJoinGroup, GroupAddress: "nowhere"})

	var event ErrorEvent
	dequeue(t, client, &event)
	assert.Equal(t, FrameError, event.Type)
	assert.Equal(t, "Group not found", event.Message)
	f.groups.AssertExpectations(t)
}

func TestJoinGroupFull(t *testing.T) {
	f := newRouterFixture()
	client := f.connect(1)

	group := models.Group{ID: 9, Name: "g", Address: "g"}
	members := make([]models.GroupMember, models.MaxGroupMembers)
	for i := range members {
		members[i] = models.GroupMember{GroupID: 9, UserID: 100 + i}
	}

	f.groups.On("GetGroupByAddress", mock.Anything, "g").Return(group, nil).Once()
	f.groups.On("IsMember", mock.Anything, 9, 1).Return(false, nil).Once()
	f.groups.On("ListMembers", mock.Anything, 9).Return(members, nil).Once()

	f.handle(t, client, Frame{Type: FrameJoinGroup, GroupAddress: "g"})

	var event ErrorEvent
	dequeue(t, client, &event)
	assert.Equal(t, "Group is full", event.Message)
	assert.Empty(t, f.subs.Members(9), "a rejected join must not subscribe")
	f.groups.AssertExpectations(t)
}

func TestJoinGroupAddsMemberAndReplaysHistory(t *testing.T) {
	f := newRouterFixture()
	client := f.connect(1)

	group := models.Group{ID: 9, Name: "g", Address: "g"}
	history := []models.GroupMessage{{ID: 1, GroupID: 9, SenderID: 2, Content: "old"}}

	f.groups.On("GetGroupByAddress", mock.Anything, "g").Return(group, nil).Once()
	f.groups.On("IsMember", mock.Anything, 9, 1).Return(false, nil).Once()
	f.groups.On("ListMembers", mock.Anything, 9).Return([]models.GroupMember{{GroupID: 9, UserID: 2}}, nil).Once()
	f.groups.On("AddMember", mock.Anything, 9, 1).Return(nil).Once()
	f.groupMessages.On("ListGroupMessages", mock.Anything, 9).Return(history, nil).Once()

	f.handle(t, client, Frame{Type: FrameJoinGroup, GroupAddress: "g"})

	var joined GroupJoinedEvent
	dequeue(t, client, &joined)
	assert.Equal(t, FrameGroupJoined, joined.Type)
	assert.Equal(t, 9, joined.Group.ID)

	var replay GroupMessagesEvent
	dequeue(t, client, &replay)
	assert.Equal(t, FrameGroupMessages, replay.Type)
	require.Len(t, replay.Messages, 1)
	assert.Equal(t, "old", replay.Messages[0].Content)

	assert.Equal(t, []int{1}, f.subs.Members(9))
	f.groups.AssertExpectations(t)
	f.groupMessages.AssertExpectations(t)
}

func TestJoinGroupRejoinIsIdempotent(t *testing.T) {
	f := newRouterFixture()
	client := f.connect(1)

	group := models.Group{ID: 9, Name: "g", Address: "g"}

	// Existing member: no capacity check, no AddMember, even on a full group.
	f.groups.On("GetGroupByAddress", mock.Anything, "g").Return(group, nil).Twice()
	f.groups.On("IsMember", mock.Anything, 9, 1).Return(true, nil).Twice()
	f.groupMessages.On("ListGroupMessages", mock.Anything, 9).Return([]models.GroupMessage{}, nil).Twice()

	f.handle(t, client, Frame{Type: FrameJoinGroup, GroupAddress: "g"})
	f.handle(t, client, Frame{Type: FrameJoinGroup, GroupAddress: "g"})

	assert.Equal(t, []int{1}, f.subs.Members(9), "subscription set contains the user exactly once")
	f.groups.AssertExpectations(t)
	f.groupMessages.AssertExpectations(t)
}

// memberSetGroupRepo backs join handling with a shared member set, so
// concurrent joins race against real state instead of canned expectations.
type memberSetGroupRepo struct {
	repositories.GroupRepository

	mu       sync.Mutex
	group    models.Group
	members  map[int]struct{}
	addCalls int
}

func (r *memberSetGroupRepo) GetGroupByAddress(ctx context.Context, address string) (models.Group, error) {
	return r.group, nil
}

func (r *memberSetGroupRepo) IsMember(ctx context.Context, groupID, userID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[userID]
	return ok, nil
}

func (r *memberSetGroupRepo) ListMembers(ctx context.Context, groupID int) ([]models.GroupMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := make([]models.GroupMember, 0, len(r.members))
	for userID := range r.members {
		members = append(members, models.GroupMember{GroupID: groupID, UserID: userID})
	}
	return members, nil
}

func (r *memberSetGroupRepo) AddMember(ctx context.Context, groupID, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addCalls++
	r.members[userID] = struct{}{}
	return nil
}

func TestJoinGroupConcurrentJoinsRespectCapacity(t *testing.T) {
	const joiners = 25
	const existing = 4

	repo := &memberSetGroupRepo{
		group:   models.Group{ID: 7, Name: "crowded", Address: "crowded"},
		members: make(map[int]struct{}),
	}
	for i := 0; i < existing; i++ {
		repo.members[100+i] = struct{}{}
	}

	registry := NewRegistry()
	subs := NewSubscriptionTable()
	groupMessages := new(mocks.GroupMessageRepositoryMock)
	groupMessages.On("ListGroupMessages", mock.Anything, 7).Return([]models.GroupMessage{}, nil)
	router := NewRouter(registry, subs, new(mocks.MessageRepositoryMock), repo, groupMessages)

	raw, err := json.Marshal(Frame{Type: FrameJoinGroup, GroupAddress: "crowded"})
	require.NoError(t, err)

	clients := make([]*Client, joiners)
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		client := NewClient(i+1, nil, ConnInfo{})
		clients[i] = client
		wg.Add(1)
		go func() {
			defer wg.Done()
			router.HandleFrame(context.Background(), client, raw)
		}()
	}
	wg.Wait()

	free := models.MaxGroupMembers - existing
	assert.Equal(t, free, repo.addCalls, "only the free seats may be filled")
	assert.Len(t, repo.members, models.MaxGroupMembers)
	assert.Len(t, subs.Members(7), free)

	joined, rejected := 0, 0
	for _, client := range clients {
		var first struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		dequeue(t, client, &first)
		switch first.Type {
		case FrameGroupJoined:
			joined++
		case FrameError:
			assert.Equal(t, "Group is full", first.Message)
			rejected++
		default:
			t.Fatalf("unexpected first frame %q for user %d", first.Type, client.UserID)
		}
	}
	assert.Equal(t, free, joined)
	assert.Equal(t, joiners-free, rejected)
}
