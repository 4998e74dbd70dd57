package chathub

import (
	"context"
	"errors"

	"chatrelay/backend/internal/metrics"
	"chatrelay/backend/internal/models"
)

// handleMessage runs one inbound envelope through moderation, reconciliation
// and broadcast. Every rejection is silent towards the sender.
func (r *Room) handleMessage(in inbound) {
	if _, ok := r.clients[in.connID]; !ok {
		metrics.EnvelopesDropped.WithLabelValues("unknown_connection").Inc()
		return
	}

	env, err := models.DecodeEnvelope(in.raw)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, models.ErrUnsupportedEnvelope) {
			reason = "unsupported"
		}
		metrics.EnvelopesDropped.WithLabelValues(reason).Inc()
		r.log.Debug().Err(err).Str("conn", in.connID).Msg("envelope dropped")
		return
	}

	outcome := r.gate.Check(in.connID, env.Content)
	metrics.ModerationOutcomes.WithLabelValues(string(outcome.Reason)).Inc()
	if !outcome.Accepted {
		r.log.Debug().
			Str("conn", in.connID).
			Str("id", env.ID).
			Stringer("reason", outcome).
			Msg("message rejected")
		return
	}

	kind := r.reconcile(env)
	r.log.Debug().Str("conn", in.connID).Str("id", env.ID).Str("op", string(kind)).Msg("message applied")

	r.broadcast(in.connID, in.raw)
}

// reconcile upserts the envelope's message into the cache, then the store.
// A failed store write is logged and the cache keeps the new value.
func (r *Room) reconcile(env models.Envelope) models.UpsertKind {
	msg := env.Message()

	kind := r.cache.Upsert(msg)
	metrics.Upserts.WithLabelValues(string(kind)).Inc()

	if err := r.store.Upsert(context.Background(), r.Name, msg); err != nil {
		metrics.StoreWriteFailures.Inc()
		r.log.Error().Err(err).Str("id", msg.ID).Msg("failed to persist message")
	}
	return kind
}

// broadcast queues the original envelope to every connection except the
// originator. A connection whose queue is full is dropped.
func (r *Room) broadcast(from string, raw []byte) {
	for id, c := range r.clients {
		if id == from {
			continue
		}
		select {
		case c.GetSendChannel() <- raw:
			metrics.BroadcastDeliveries.Inc()
		default:
			r.log.Warn().Str("conn", id).Msg("send queue full, dropping slow connection")
			metrics.SlowConsumerDrops.Inc()
			r.drop(id, c)
		}
	}
}
