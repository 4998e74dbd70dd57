package chathub

import "chatrelay/backend/internal/models"

// Cache is the in-memory ordered mirror of a room's Message Store. Ids are
// unique; replacing a message keeps its original position.
type Cache struct {
	messages []models.ChatMessage
	index    map[string]int
}

// NewCache builds a cache from stored messages. A repeated id replaces the
// earlier entry in place.
func NewCache(messages []models.ChatMessage) *Cache {
	c := &Cache{
		messages: make([]models.ChatMessage, 0, len(messages)),
		index:    make(map[string]int, len(messages)),
	}
	for _, m := range messages {
		c.Upsert(m)
	}
	return c
}

// Upsert replaces the message with the same id at its existing index, or
// appends it.
func (c *Cache) Upsert(msg models.ChatMessage) models.UpsertKind {
	if i, ok := c.index[msg.ID]; ok {
		c.messages[i] = msg
		return models.Replaced
	}
	c.index[msg.ID] = len(c.messages)
	c.messages = append(c.messages, msg)
	return models.Inserted
}

// Snapshot returns a copy of the full ordered sequence.
func (c *Cache) Snapshot() []models.ChatMessage {
	out := make([]models.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Get returns the message with the given id.
func (c *Cache) Get(id string) (models.ChatMessage, bool) {
	i, ok := c.index[id]
	if !ok {
		return models.ChatMessage{}, false
	}
	return c.messages[i], true
}

func (c *Cache) Len() int {
	return len(c.messages)
}
