package chathub

import (
	"io"
	"sync"
	"time"

	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// Larger frames are dropped without closing the connection.
	maxMessageSize = 64 << 10
)

// WebSocketClient implements Client over a gorilla/websocket connection.
type WebSocketClient struct {
	ConnID string
	RoomID string
	Conn   *websocket.Conn
	Hub    *ManagerService
	Room   *Room
	Send   chan []byte

	log       zerolog.Logger
	closeOnce sync.Once
}

// NewWebSocketClient wraps conn for the named room. Room is set once the
// hub has joined it.
func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, connID, roomID string, log zerolog.Logger) *WebSocketClient {
	return &WebSocketClient{
		ConnID: connID,
		RoomID: roomID,
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan []byte, config.SendQueueSize),
		log:    log.With().Str("conn", connID).Str("room", roomID).Logger(),
	}
}

func (c *WebSocketClient) GetConnID() string             { return c.ConnID }
func (c *WebSocketClient) GetRoomID() string             { return c.RoomID }
func (c *WebSocketClient) GetSendChannel() chan<- []byte { return c.Send }

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes the Send channel, which makes writePump send a close frame
// and shut the connection.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// readPump forwards every text frame to the room until the connection fails.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Leave(c.Room, c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, r, err := c.Conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("connection closed unexpectedly")
			}
			return
		}
		if msgType != websocket.TextMessage {
			if _, err := io.Copy(io.Discard, r); err != nil {
				return
			}
			continue
		}

		message, err := io.ReadAll(io.LimitReader(r, maxMessageSize+1))
		if err != nil {
			return
		}
		if len(message) > maxMessageSize {
			if _, err := io.Copy(io.Discard, r); err != nil {
				return
			}
			metrics.EnvelopesDropped.WithLabelValues("oversize").Inc()
			c.log.Debug().Int("limit", maxMessageSize).Msg("oversize frame dropped")
			continue
		}

		if err := c.Room.Deliver(c.ConnID, message); err != nil {
			return
		}
	}
}

// writePump writes queued envelopes, one frame each, and keeps the
// connection alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The room closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
