package chathub

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"chatrelay/backend/internal/metrics"
	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/moderation"
	"chatrelay/backend/internal/storage"

	"github.com/rs/zerolog"
)

const (
	defaultActivationTimeout = 10 * time.Second
	defaultRenewInterval     = 10 * time.Second
)

// roomEntry tracks one room and the connections holding it open.
type roomEntry struct {
	room  *Room
	refs  int
	idle  *time.Timer
	ready chan struct{}
	err   error
}

// ManagerService hosts rooms: it activates a room on its first connection,
// tears it down once it has been idle, and holds the room's lease while it
// is live.
type ManagerService struct {
	Storage storage.MessageStore
	Lease   storage.Lease

	IdleTimeout       time.Duration
	ActivationTimeout time.Duration
	RenewInterval     time.Duration

	// NewGate builds the moderation gate of each activated room.
	NewGate func() *moderation.Gate

	log   zerolog.Logger
	mu    sync.Mutex
	rooms map[string]*roomEntry
}

// ManagerOption configures a ManagerService.
type ManagerOption func(*ManagerService)

// WithLease sets the room ownership lease.
func WithLease(l storage.Lease) ManagerOption {
	return func(m *ManagerService) { m.Lease = l }
}

// WithIdleTimeout sets how long a room without connections stays active.
// Zero tears it down as soon as the last connection leaves.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *ManagerService) { m.IdleTimeout = d }
}

// WithRenewInterval sets how often held leases are renewed. Non-positive
// values keep the default.
func WithRenewInterval(d time.Duration) ManagerOption {
	return func(m *ManagerService) {
		if d > 0 {
			m.RenewInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *ManagerService) { m.log = l }
}

// WithGateFactory overrides how rooms build their moderation gate.
func WithGateFactory(f func() *moderation.Gate) ManagerOption {
	return func(m *ManagerService) { m.NewGate = f }
}

// NewManagerService creates a room host over the given store.
func NewManagerService(s storage.MessageStore, opts ...ManagerOption) *ManagerService {
	m := &ManagerService{
		Storage:           s,
		Lease:             storage.NopLease{},
		ActivationTimeout: defaultActivationTimeout,
		RenewInterval:     defaultRenewInterval,
		NewGate:           func() *moderation.Gate { return moderation.NewGate() },
		log:               zerolog.Nop(),
		rooms:             make(map[string]*roomEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Join attaches c to the named room, activating the room first if needed.
// The room's snapshot is queued to c before Join returns.
func (m *ManagerService) Join(ctx context.Context, name string, c Client) (*Room, error) {
	m.mu.Lock()
	e, exists := m.rooms[name]
	if !exists {
		e = &roomEntry{ready: make(chan struct{})}
		m.rooms[name] = e
	}
	e.refs++
	if e.idle != nil {
		e.idle.Stop()
		e.idle = nil
	}
	m.mu.Unlock()

	if !exists {
		m.activate(ctx, name, e)
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		m.release(name, e)
		return nil, ctx.Err()
	}

	if e.err != nil {
		m.release(name, e)
		return nil, e.err
	}

	if err := e.room.Connect(c); err != nil {
		m.release(name, e)
		return nil, err
	}
	return e.room, nil
}

// Leave detaches c from room and schedules teardown when it was the last
// connection.
func (m *ManagerService) Leave(room *Room, c Client) {
	_ = room.Disconnect(c)

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.rooms[room.Name]
	if !ok || e.room != room {
		return
	}
	m.releaseLocked(room.Name, e)
}

// activate loads the room and starts its event loop, then wakes every
// joiner waiting on e.ready.
func (m *ManagerService) activate(ctx context.Context, name string, e *roomEntry) {
	defer close(e.ready)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.ActivationTimeout)
	defer cancel()

	if err := m.Lease.Acquire(ctx, name); err != nil {
		if errors.Is(err, storage.ErrLeaseHeld) {
			metrics.RoomActivations.WithLabelValues("lease_held").Inc()
		} else {
			metrics.RoomActivations.WithLabelValues("lease_failed").Inc()
		}
		m.log.Warn().Err(err).Str("room", name).Msg("room activation refused")
		e.err = err
		return
	}

	room := NewRoom(name, m.Storage,
		WithGate(m.NewGate()),
		WithRoomLogger(m.log),
	)
	if err := room.Activate(ctx); err != nil {
		metrics.RoomActivations.WithLabelValues("load_failed").Inc()
		m.log.Error().Err(err).Str("room", name).Msg("failed to load room")
		if relErr := m.Lease.Release(ctx, name); relErr != nil {
			m.log.Warn().Err(relErr).Str("room", name).Msg("failed to release lease")
		}
		e.err = err
		return
	}

	go room.Run()
	m.mu.Lock()
	e.room = room
	m.mu.Unlock()
	metrics.RoomActivations.WithLabelValues("ok").Inc()
	metrics.ActiveRooms.Inc()
}

func (m *ManagerService) release(name string, e *roomEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(name, e)
}

func (m *ManagerService) releaseLocked(name string, e *roomEntry) {
	e.refs--
	if e.refs > 0 {
		return
	}

	// Failed activation: forget the entry so the next join retries.
	if e.room == nil {
		if m.rooms[name] == e {
			delete(m.rooms, name)
		}
		return
	}

	if m.IdleTimeout <= 0 {
		m.evictLocked(name, e, true)
		return
	}
	e.idle = time.AfterFunc(m.IdleTimeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if e.refs == 0 {
			m.evictLocked(name, e, true)
		}
	})
}

// evictLocked stops the room and, unless it was taken over, gives up its
// lease. The next join for the same name reactivates it from the store.
func (m *ManagerService) evictLocked(name string, e *roomEntry, releaseLease bool) {
	if m.rooms[name] != e {
		return
	}
	delete(m.rooms, name)
	if e.idle != nil {
		e.idle.Stop()
		e.idle = nil
	}
	e.room.Stop()
	metrics.ActiveRooms.Dec()
	m.log.Info().Str("room", name).Msg("room torn down")

	if !releaseLease {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.ActivationTimeout)
	defer cancel()
	if err := m.Lease.Release(ctx, name); err != nil {
		m.log.Warn().Err(err).Str("room", name).Msg("failed to release lease")
	}
}

// Run renews the leases of live rooms until ctx is cancelled. A room whose
// lease was taken over is stopped, which disconnects its clients.
func (m *ManagerService) Run(ctx context.Context) {
	interval := m.RenewInterval
	if interval <= 0 {
		interval = defaultRenewInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.renewLeases(ctx)
		}
	}
}

func (m *ManagerService) renewLeases(ctx context.Context) {
	for _, name := range m.ActiveRooms() {
		err := m.Lease.Renew(ctx, name)
		if err == nil {
			continue
		}
		metrics.LeaseRenewalFailures.Inc()
		if !errors.Is(err, storage.ErrLeaseLost) {
			m.log.Warn().Err(err).Str("room", name).Msg("failed to renew lease")
			continue
		}

		m.log.Error().Str("room", name).Msg("room lease lost, stopping room")
		m.mu.Lock()
		if e, ok := m.rooms[name]; ok && e.room != nil {
			m.evictLocked(name, e, false)
		}
		m.mu.Unlock()
	}
}

// ActiveRooms returns the names of the rooms live in this process.
func (m *ManagerService) ActiveRooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.rooms))
	for name, e := range m.rooms {
		if e.room != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// History returns the messages of a room: from its cache when it is live,
// from the store otherwise.
func (m *ManagerService) History(ctx context.Context, name string) ([]models.ChatMessage, error) {
	m.mu.Lock()
	var room *Room
	if e, ok := m.rooms[name]; ok {
		room = e.room
	}
	m.mu.Unlock()

	if room != nil {
		messages, err := room.Messages(ctx)
		if !errors.Is(err, ErrRoomClosed) {
			return messages, err
		}
	}
	return m.Storage.LoadAll(ctx, name)
}

// Shutdown stops every live room and releases its lease.
func (m *ManagerService) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, e := range m.rooms {
		if e.room == nil {
			continue
		}
		m.evictLocked(name, e, true)
	}
}
