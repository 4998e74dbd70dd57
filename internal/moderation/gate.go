// Package moderation implements the per-connection abuse checks applied to
// every inbound message before it may touch room state.
package moderation

import (
	"strings"
	"time"
	"unicode/utf8"

	"chatrelay/backend/internal/config"
)

// Reason explains a moderation decision.
type Reason string

const (
	ReasonAccepted Reason = "accepted"
	// ReasonEmpty covers blank content and content made only of invisible
	// characters (zero-width spaces, Hangul fillers and the like), which
	// renders as an empty bubble.
	ReasonEmpty       Reason = "empty"
	ReasonTooLong     Reason = "too_long"
	ReasonRepeated    Reason = "repeated"
	ReasonRateLimited Reason = "rate_limited"
)

// Outcome is the result of a gate check. Rejections are never sent to the
// client; the reason exists for logs, metrics and tests.
type Outcome struct {
	Accepted bool
	Reason   Reason
}

func accepted() Outcome          { return Outcome{Accepted: true, Reason: ReasonAccepted} }
func rejected(r Reason) Outcome  { return Outcome{Reason: r} }
func (o Outcome) String() string { return string(o.Reason) }

// Policy holds the gate limits.
type Policy struct {
	MaxLength   int
	RepeatLimit int
	RateLimit   int
	RateWindow  time.Duration
}

// DefaultPolicy is the canonical sliding-window policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxLength:   config.MaxContentLength,
		RepeatLimit: config.RepeatLimit,
		RateLimit:   config.RateLimitMessages,
		RateWindow:  config.RateLimitWindow,
	}
}

// State is the moderation state of a single connection.
type State struct {
	RecentTimestamps      []time.Time
	LastNormalizedContent string
	RepeatCount           int
}

// Gate tracks moderation state per connection id. It is owned by one room
// actor and is not safe for concurrent use.
type Gate struct {
	policy Policy
	now    func() time.Time
	states map[string]*State
}

// Option configures a Gate.
type Option func(*Gate)

// WithPolicy overrides the default policy.
func WithPolicy(p Policy) Option {
	return func(g *Gate) { g.policy = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate creates a gate with the default policy and the wall clock.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		policy: DefaultPolicy(),
		now:    time.Now,
		states: make(map[string]*State),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check decides whether content sent on connID is accepted. Checks run in
// order (empty, length, repetition, rate) and stop at the first failure.
// Repetition and rate state are only committed on acceptance.
func (g *Gate) Check(connID, content string) Outcome {
	if strings.TrimSpace(content) == "" {
		return rejected(ReasonEmpty)
	}
	normalized := Normalize(content)
	if normalized == "" {
		return rejected(ReasonEmpty)
	}

	if utf8.RuneCountInString(content) > g.policy.MaxLength {
		return rejected(ReasonTooLong)
	}

	state, ok := g.states[connID]
	if !ok {
		state = &State{}
		g.states[connID] = state
	}

	repeat := 1
	if normalized == state.LastNormalizedContent {
		repeat = state.RepeatCount + 1
		if repeat >= g.policy.RepeatLimit {
			return rejected(ReasonRepeated)
		}
	}

	now := g.now()
	state.RecentTimestamps = prune(state.RecentTimestamps, now, g.policy.RateWindow)
	if len(state.RecentTimestamps) >= g.policy.RateLimit {
		return rejected(ReasonRateLimited)
	}

	state.RecentTimestamps = append(state.RecentTimestamps, now)
	state.LastNormalizedContent = normalized
	state.RepeatCount = repeat
	return accepted()
}

// Forget discards the state of a disconnected connection.
func (g *Gate) Forget(connID string) {
	delete(g.states, connID)
}

// State returns a copy of the state tracked for connID.
func (g *Gate) State(connID string) (State, bool) {
	s, ok := g.states[connID]
	if !ok {
		return State{}, false
	}
	cp := *s
	cp.RecentTimestamps = append([]time.Time(nil), s.RecentTimestamps...)
	return cp, true
}

// Len returns the number of tracked connections.
func (g *Gate) Len() int {
	return len(g.states)
}

// prune drops timestamps at least window old. Timestamps are kept in
// acceptance order, so the expired ones form a prefix.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= window {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}
