package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// EnvelopeType tags the wire union.
type EnvelopeType string

const (
	EnvelopeAdd      EnvelopeType = "add"
	EnvelopeUpdate   EnvelopeType = "update"
	EnvelopeSnapshot EnvelopeType = "all"
)

var (
	// ErrMalformedEnvelope is returned for payloads that are not a valid envelope.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrUnsupportedEnvelope is returned for envelope types clients may not send.
	ErrUnsupportedEnvelope = errors.New("unsupported envelope type")
)

// Envelope is the JSON object exchanged between a connection and its room.
//
// add/update:  {type, id, content, user, role, messageType, timestamp?}
// all:         {type, messages: [...]}
type Envelope struct {
	Type EnvelopeType `json:"type"`

	ID          string `json:"id,omitempty" validate:"required"`
	Content     string `json:"content,omitempty"`
	User        string `json:"user,omitempty"`
	Role        Role   `json:"role,omitempty" validate:"required,oneof=user assistant"`
	MessageType Kind   `json:"messageType,omitempty" validate:"omitempty,oneof=text image"`
	Timestamp   string `json:"timestamp,omitempty"`

	Messages []ChatMessage `json:"messages,omitempty" validate:"-"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeEnvelope parses an inbound envelope. Only add and update envelopes
// are accepted from connections.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	switch env.Type {
	case EnvelopeAdd, EnvelopeUpdate:
	case "":
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnsupportedEnvelope, env.Type)
	}

	if err := validate.Struct(env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return env, nil
}

// Message builds the canonical record carried by an add/update envelope.
func (e Envelope) Message() ChatMessage {
	kind := e.MessageType
	if kind == "" {
		kind = KindText
	}
	return ChatMessage{
		ID:        e.ID,
		Content:   e.Content,
		User:      e.User,
		Role:      e.Role,
		Type:      kind,
		Timestamp: e.Timestamp,
	}
}

// NewSnapshot builds the full-state envelope sent to a new connection.
func NewSnapshot(messages []ChatMessage) Envelope {
	if messages == nil {
		messages = []ChatMessage{}
	}
	return Envelope{Type: EnvelopeSnapshot, Messages: messages}
}

// Encode marshals the envelope for the wire. Snapshots always carry a
// messages array, even when empty.
func (e Envelope) Encode() ([]byte, error) {
	if e.Type == EnvelopeSnapshot {
		messages := e.Messages
		if messages == nil {
			messages = []ChatMessage{}
		}
		return json.Marshal(struct {
			Type     EnvelopeType  `json:"type"`
			Messages []ChatMessage `json:"messages"`
		}{e.Type, messages})
	}
	return json.Marshal(e)
}
