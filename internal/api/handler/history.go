package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetHistory returns the current messages of a room, in order.
func (h *Handler) GetHistory(c *gin.Context) {
	room := c.Param("room")
	if !h.validRoom(room) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room name"})
		return
	}

	messages, err := h.Hub.History(c.Request.Context(), room)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": room, "messages": messages})
}

// Health reports whether the Message Store is reachable.
func (h *Handler) Health(c *gin.Context) {
	if err := h.Hub.Storage.Ping(c.Request.Context()); err != nil {
		h.log.Error().Err(err).Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": len(h.Hub.ActiveRooms())})
}
