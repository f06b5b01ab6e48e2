package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/PATILYASHH/SwiftChat/internal/repositories"
	"github.com/PATILYASHH/SwiftChat/internal/ws"
)

// LivePusher delivers an event to a user's live connection, if any.
type LivePusher interface {
	Push(userID int, v any) bool
}

// MessageHandler manages direct-message endpoints.
type MessageHandler struct {
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	live        LivePusher
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, live LivePusher) *MessageHandler {
	return &MessageHandler{messageRepo: messageRepo, userRepo: userRepo, live: live}
}

// GetConversation returns the conversation between the caller and another
// user in chronological order. Fetching marks the other side's messages as
// read and, when they are online, pushes a read receipt to them live.
func (h *MessageHandler) GetConversation(c *gin.Context) {
	otherID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	userID := c.GetInt("userID")

	msgs, err := h.messageRepo.GetMessagesBetween(c.Request.Context(), userID, otherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	if err := h.messageRepo.MarkRead(c.Request.Context(), otherID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark messages read"})
		return
	}

	h.live.Push(otherID, ws.ReadEvent{Type: ws.FrameRead, ReaderID: userID})

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// ListUsers returns every user except the caller.
func (h *MessageHandler) ListUsers(c *gin.Context) {
	userID := c.GetInt("userID")

	users, err := h.userRepo.ListUsersExcept(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}
