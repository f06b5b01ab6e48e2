package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer.
	maxFrameSize = 4096

	// Outbound queue depth per connection.
	sendQueueSize = 64
)

// Client owns one websocket connection. All writes go through the send queue
// and WritePump; nothing else touches the conn for writing.
type Client struct {
	UserID int
	Info   ConnInfo

	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps an upgraded connection.
func NewClient(userID int, conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{
		UserID: userID,
		Info:   info,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Enqueue marshals v and queues it for delivery. Returns false if the client
// is closed or its queue is full; a slow or dead peer never blocks the
// caller.
func (c *Client) Enqueue(v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws marshal error: %v", err)
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		log.Printf("ws send queue full, dropping frame for user %d", c.UserID)
		return false
	}
}

// WritePump drains the send queue onto the connection and keeps the peer
// alive with pings. Runs in its own goroutine per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// ReadLoop feeds inbound frames to handle, one at a time in arrival order,
// until the connection dies. Blocks until then.
func (c *Client) ReadLoop(handle func(raw []byte)) error {
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		handle(raw)
	}
}

// Close cancels pending sends and closes the connection. Safe to call more
// than once and from any goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}
