package chathub

import (
	"context"
	"errors"
	"sync"

	"chatrelay/backend/internal/metrics"
	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/moderation"
	"chatrelay/backend/internal/storage"

	"github.com/rs/zerolog"
)

// ErrRoomClosed is returned when talking to a room that has been torn down.
var ErrRoomClosed = errors.New("room is closed")

type inbound struct {
	connID string
	raw    []byte
}

// Room is the single actor owning one room's state: the message cache, the
// moderation state of every attached connection and the connections
// themselves. All of it is touched only from the Run goroutine, one event
// at a time, in arrival order.
type Room struct {
	Name string

	store   storage.MessageStore
	gate    *moderation.Gate
	cache   *Cache
	clients map[string]Client
	log     zerolog.Logger

	registerCh   chan Client
	unregisterCh chan Client
	incomingCh   chan inbound
	queryCh      chan chan []models.ChatMessage

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// RoomOption configures a Room.
type RoomOption func(*Room)

// WithGate replaces the default moderation gate.
func WithGate(g *moderation.Gate) RoomOption {
	return func(r *Room) { r.gate = g }
}

// WithRoomLogger sets the room's logger.
func WithRoomLogger(l zerolog.Logger) RoomOption {
	return func(r *Room) { r.log = l }
}

// NewRoom creates an inactive room. Call Activate, then Run.
func NewRoom(name string, s storage.MessageStore, opts ...RoomOption) *Room {
	r := &Room{
		Name:         name,
		store:        s,
		gate:         moderation.NewGate(),
		cache:        NewCache(nil),
		clients:      make(map[string]Client),
		log:          zerolog.Nop(),
		registerCh:   make(chan Client),
		unregisterCh: make(chan Client),
		incomingCh:   make(chan inbound),
		queryCh:      make(chan chan []models.ChatMessage),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With().Str("room", name).Logger()
	return r
}

// Activate rebuilds the cache from the Message Store. It must complete
// before Run starts and before any connection is attached.
func (r *Room) Activate(ctx context.Context) error {
	messages, err := r.store.LoadAll(ctx, r.Name)
	if err != nil {
		return err
	}
	r.cache = NewCache(messages)
	r.log.Info().Int("messages", r.cache.Len()).Msg("room activated")
	return nil
}

// Run is the room's event loop. It returns after Stop.
func (r *Room) Run() {
	defer close(r.done)

	for {
		select {
		case c := <-r.registerCh:
			r.handleConnect(c)

		case c := <-r.unregisterCh:
			r.handleDisconnect(c)

		case in := <-r.incomingCh:
			r.handleMessage(in)

		case reply := <-r.queryCh:
			reply <- r.cache.Snapshot()

		case <-r.quit:
			for id, c := range r.clients {
				r.drop(id, c)
			}
			r.log.Info().Msg("room stopped")
			return
		}
	}
}

// Stop ends the event loop and closes every attached connection. Run must
// have been started.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
	<-r.done
}

// Done is closed once the event loop has exited.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Connect attaches c. The snapshot is queued to c before anything else.
func (r *Room) Connect(c Client) error {
	select {
	case r.registerCh <- c:
		return nil
	case <-r.done:
		return ErrRoomClosed
	}
}

// Disconnect detaches c and discards its moderation state.
func (r *Room) Disconnect(c Client) error {
	select {
	case r.unregisterCh <- c:
		return nil
	case <-r.done:
		return ErrRoomClosed
	}
}

// Deliver hands a raw inbound envelope from connID to the room.
func (r *Room) Deliver(connID string, raw []byte) error {
	select {
	case r.incomingCh <- inbound{connID: connID, raw: raw}:
		return nil
	case <-r.done:
		return ErrRoomClosed
	}
}

// Messages returns the current cache contents, read through the event loop.
func (r *Room) Messages(ctx context.Context) ([]models.ChatMessage, error) {
	reply := make(chan []models.ChatMessage, 1)
	select {
	case r.queryCh <- reply:
	case <-r.done:
		return nil, ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return <-reply, nil
}

func (r *Room) handleConnect(c Client) {
	id := c.GetConnID()
	if _, ok := r.clients[id]; ok {
		return
	}

	data, err := models.NewSnapshot(r.cache.Snapshot()).Encode()
	if err != nil {
		r.log.Error().Err(err).Str("conn", id).Msg("failed to encode snapshot")
		c.Close()
		return
	}

	select {
	case c.GetSendChannel() <- data:
	default:
		r.log.Warn().Str("conn", id).Msg("send queue full before snapshot, closing connection")
		metrics.SlowConsumerDrops.Inc()
		c.Close()
		return
	}

	r.clients[id] = c
	metrics.Connections.Inc()
	r.log.Info().Str("conn", id).Int("connections", len(r.clients)).Msg("connection attached")
}

func (r *Room) handleDisconnect(c Client) {
	id := c.GetConnID()
	if attached, ok := r.clients[id]; ok {
		r.drop(id, attached)
		r.log.Info().Str("conn", id).Int("connections", len(r.clients)).Msg("connection detached")
		return
	}
	r.gate.Forget(id)
}

func (r *Room) drop(id string, c Client) {
	delete(r.clients, id)
	r.gate.Forget(id)
	c.Close()
	metrics.Connections.Dec()
}
