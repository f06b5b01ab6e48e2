package ws

import "sync"

// SubscriptionTable tracks which users want live fan-out for which groups.
// Disjoint from durable membership: a member without an open connection has
// no subscription, and every subscription implies prior membership. Rebuilt
// lazily from join_group frames after a restart.
type SubscriptionTable struct {
	mu      sync.RWMutex
	byGroup map[int]map[int]struct{}
}

// NewSubscriptionTable creates an empty table.
func NewSubscriptionTable() *SubscriptionTable {
	return &SubscriptionTable{byGroup: make(map[int]map[int]struct{})}
}

// Subscribe adds the user to the group's live set.
func (t *SubscriptionTable) Subscribe(groupID, userID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.byGroup[groupID]
	if !ok {
		set = make(map[int]struct{})
		t.byGroup[groupID] = set
	}
	set[userID] = struct{}{}
}

// Unsubscribe removes the user from one group, dropping the set when it
// empties.
func (t *SubscriptionTable) Unsubscribe(groupID, userID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set, ok := t.byGroup[groupID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(t.byGroup, groupID)
		}
	}
}

// UnsubscribeAll removes the user from every group's set; used on
// disconnect. Empty sets are dropped.
func (t *SubscriptionTable) UnsubscribeAll(userID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for groupID, set := range t.byGroup {
		delete(set, userID)
		if len(set) == 0 {
			delete(t.byGroup, groupID)
		}
	}
}

// Members returns a snapshot of the user ids subscribed to a group.
func (t *SubscriptionTable) Members(groupID int) []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.byGroup[groupID]
	members := make([]int, 0, len(set))
	for userID := range set {
		members = append(members, userID)
	}
	return members
}
