package handler

import (
	"errors"
	"net/http"
	"net/url"
	"slices"

	"chatrelay/backend/internal/chathub"
	"chatrelay/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
}

// checkOrigin allows every origin when no allowlist is configured.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(h.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && slices.Contains(h.AllowedOrigins, u.Host)
}

// ServeWebSocket upgrades GET /ws/:room and attaches the connection to the
// room, activating the room when it is the first one.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	room := c.Param("room")
	if !h.validRoom(room) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid room name"})
		return
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Debug().Err(err).Str("room", room).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.NewString()
	client := chathub.NewWebSocketClient(h.Hub, conn, connID, room, h.log)

	joined, err := h.Hub.Join(c.Request.Context(), room, client)
	if err != nil {
		code, reason := websocket.CloseInternalServerErr, "room unavailable"
		if errors.Is(err, storage.ErrLeaseHeld) {
			code, reason = websocket.CloseTryAgainLater, "room is hosted elsewhere"
		}
		h.log.Warn().Err(err).Str("room", room).Str("conn", connID).Msg("failed to join room")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
		conn.Close()
		return
	}

	client.Room = joined
	client.Run()
}
