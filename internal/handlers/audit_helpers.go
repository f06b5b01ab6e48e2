package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDContextKey = "request_id"

// requestIDFromContext returns the request id for audit envelopes, minting
// one when neither the context nor the X-Request-ID header carries it. The
// minted id is cached on the context so every emit in the request agrees.
func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(requestIDContextKey); id != "" {
		return id
	}

	id := c.GetHeader("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDContextKey, id)
	return id
}

// userIDFromContext returns the authenticated user id, or nil on routes the
// auth middleware did not run.
func userIDFromContext(c *gin.Context) *int64 {
	if id := c.GetInt("userID"); id != 0 {
		value := int64(id)
		return &value
	}
	return nil
}
