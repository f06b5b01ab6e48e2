package ws

import "sync"

// Registry maps each online user to exactly one live connection. It is the
// authority on who is online right now; rebuilt empty on every restart.
type Registry struct {
	mu      sync.RWMutex
	clients map[int]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[int]*Client)}
}

// Register records the client as the user's live connection and returns the
// superseded one, if any. The caller is responsible for closing it.
func (r *Registry) Register(userID int, client *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.clients[userID]
	r.clients[userID] = client
	if old == client {
		return nil
	}
	return old
}

// Unregister removes the entry only when it still points at the given
// client. A late close from a superseded connection must not evict the
// newer one.
func (r *Registry) Unregister(userID int, client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients[userID] != client {
		return false
	}
	delete(r.clients, userID)
	return true
}

// Push enqueues v on the user's live connection. Reports false when the user
// is offline or the connection refused the frame.
func (r *Registry) Push(userID int, v any) bool {
	client, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	return client.Enqueue(v)
}

// Lookup returns the user's live connection.
func (r *Registry) Lookup(userID int) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[userID]
	return client, ok
}

// Broadcast enqueues v to a snapshot of the current connections. A failed or
// full queue on one connection never stalls delivery to the others.
func (r *Registry) Broadcast(v any) {
	r.mu.RLock()
	snapshot := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		snapshot = append(snapshot, client)
	}
	r.mu.RUnlock()

	for _, client := range snapshot {
		client.Enqueue(v)
	}
}

// Len reports how many users are online.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
