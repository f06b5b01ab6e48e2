package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"github.com/PATILYASHH/SwiftChat/internal/middleware"
	"github.com/PATILYASHH/SwiftChat/internal/models"
	"github.com/PATILYASHH/SwiftChat/internal/observability"
	"github.com/PATILYASHH/SwiftChat/internal/repositories"
	"github.com/PATILYASHH/SwiftChat/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler owns the websocket connect flow: authenticate, upgrade, register,
// flip presence, pump frames, unwind on close.
type Handler struct {
	registry *Registry
	subs     *SubscriptionTable
	router   *Router
	verifier session.Verifier
	users    repositories.UserRepository
}

// NewHandler constructs a Handler.
func NewHandler(registry *Registry, subs *SubscriptionTable, router *Router, verifier session.Verifier, users repositories.UserRepository) *Handler {
	return &Handler{registry: registry, subs: subs, router: router, verifier: verifier, users: users}
}

// Handle upgrades the connection for an authenticated user. Authentication
// failure is the only thing that rejects a connection; everything after the
// upgrade survives bad frames.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("swiftchat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.Query("token")
	if token == "" {
		header := c.GetHeader("Authorization")
		if len(header) > 7 {
			token = header[7:]
		}
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	user, err := middleware.ResolveUser(ctx, h.verifier, h.users, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      user.ID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(user.ID, conn, info)

	// Replace-on-register: a reconnect silently supersedes the old handle.
	if old := h.registry.Register(user.ID, client); old != nil {
		old.Close()
	}

	go client.WritePump()
	h.markOnline(user, info)

	go func() {
		var closeReason string
		defer h.unwind(client, info, &closeReason)

		err := client.ReadLoop(func(raw []byte) {
			h.router.HandleFrame(context.Background(), client, raw)
		})
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
		}
	}()
}

func (h *Handler) markOnline(user models.User, info ConnInfo) {
	ctx := context.Background()
	if err := h.users.SetOnline(ctx, user.ID, true); err != nil {
		log.Printf("ws set online failed: %v", err)
	}
	h.registry.Broadcast(StatusEvent{Type: FrameStatus, UserID: user.ID, Online: true})

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.connections", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   connPayload(info, "ws_connect", ""),
	})
}

// unwind runs when the read loop exits. Presence and subscriptions are only
// cleared when this client still owns the registry entry; a superseded
// connection closing late must leave the new one untouched.
func (h *Handler) unwind(client *Client, info ConnInfo, closeReason *string) {
	ctx := context.Background()

	if h.registry.Unregister(client.UserID, client) {
		if err := h.users.SetOnline(ctx, client.UserID, false); err != nil {
			log.Printf("ws set offline failed: %v", err)
		}
		h.subs.UnsubscribeAll(client.UserID)
		h.registry.Broadcast(StatusEvent{Type: FrameStatus, UserID: client.UserID, Online: false})
	}
	client.Close()

	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")
	_ = observability.PublishEvent(ctx, "ws_events.connections", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_disconnect",
		Payload:   connPayload(info, "ws_disconnect", *closeReason),
	})
}

func connPayload(info ConnInfo, event, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
