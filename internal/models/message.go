// Package models defines the chat message, its wire envelope and its
// persisted form.
package models

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind of message content. Image content is a URL, never a payload.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// ChatMessage is the unit of chat content.
type ChatMessage struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	User      string `json:"user"`
	Role      Role   `json:"role"`
	Type      Kind   `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
}

// UpsertKind reports what an id-keyed upsert did.
type UpsertKind string

const (
	Inserted UpsertKind = "inserted"
	Replaced UpsertKind = "replaced"
)
