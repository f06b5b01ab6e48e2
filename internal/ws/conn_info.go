package ws

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// ConnInfo is the metadata captured at upgrade time and carried on lifecycle
// events for the connection.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// newConnID returns a random 32-hex-char connection id, or the empty string
// if the system entropy source fails.
func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
