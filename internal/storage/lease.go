package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLeaseHeld is returned when another instance owns the room.
	ErrLeaseHeld = errors.New("room lease held by another instance")
	// ErrLeaseLost is returned when renewing a lease this instance no longer owns.
	ErrLeaseLost = errors.New("room lease lost")
)

// Lease guarantees at most one live instance of a room across processes.
type Lease interface {
	Acquire(ctx context.Context, room string) error
	Renew(ctx context.Context, room string) error
	Release(ctx context.Context, room string) error
}

// NopLease is used when a single process hosts every room.
type NopLease struct{}

func (NopLease) Acquire(context.Context, string) error { return nil }
func (NopLease) Renew(context.Context, string) error   { return nil }
func (NopLease) Release(context.Context, string) error { return nil }

var (
	acquireScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
	return 1
end
if v == ARGV[1] then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	return 1
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0`)
)

// RedisLease stores one key per room holding the owner token, with a TTL
// that the owner must keep renewing.
type RedisLease struct {
	Redis *redis.Client
	Owner string
	TTL   time.Duration
}

// NewRedisLease creates a lease manager for the given owner token.
func NewRedisLease(rdb *redis.Client, owner string, ttl time.Duration) *RedisLease {
	return &RedisLease{Redis: rdb, Owner: owner, TTL: ttl}
}

func (l *RedisLease) key(room string) string {
	return "room:lease:" + room
}

// Acquire takes the room lease, or extends it when this owner already holds it.
func (l *RedisLease) Acquire(ctx context.Context, room string) error {
	ok, err := acquireScript.Run(ctx, l.Redis, []string{l.key(room)}, l.Owner, l.TTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to acquire lease for room %s: %w", room, err)
	}
	if ok == 0 {
		return ErrLeaseHeld
	}
	return nil
}

// Renew extends the lease TTL. ErrLeaseLost means another owner took over.
func (l *RedisLease) Renew(ctx context.Context, room string) error {
	ok, err := renewScript.Run(ctx, l.Redis, []string{l.key(room)}, l.Owner, l.TTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to renew lease for room %s: %w", room, err)
	}
	if ok == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release drops the lease if this owner still holds it.
func (l *RedisLease) Release(ctx context.Context, room string) error {
	if err := releaseScript.Run(ctx, l.Redis, []string{l.key(room)}, l.Owner).Err(); err != nil {
		return fmt.Errorf("failed to release lease for room %s: %w", room, err)
	}
	return nil
}
