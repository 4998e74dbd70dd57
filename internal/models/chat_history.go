package models

// ChatHistory is the persisted row of a room message.
// Rows are keyed by (Room, ID); Seq records the first insertion order and is
// never rewritten when the row is replaced.
type ChatHistory struct {
	// Room is the name of the room the message belongs to.
	Room string `gorm:"primaryKey;type:text"`
	// ID is the client-assigned message id, unique within the room.
	ID string `gorm:"primaryKey;type:text"`

	User      string `gorm:"type:text"`
	Role      string `gorm:"type:text"`
	Content   string `gorm:"type:text"`
	Type      string `gorm:"type:text"`
	Timestamp string `gorm:"type:text"`

	Seq int64 `gorm:"not null;index"`
}

// TableName pins the table name used by every driver.
func (ChatHistory) TableName() string {
	return "messages"
}

// NewChatHistory builds a row for msg in room.
func NewChatHistory(room string, msg ChatMessage) ChatHistory {
	return ChatHistory{
		Room:      room,
		ID:        msg.ID,
		User:      msg.User,
		Role:      string(msg.Role),
		Content:   msg.Content,
		Type:      string(msg.Type),
		Timestamp: msg.Timestamp,
	}
}

// Message converts the row back to its chat message.
func (h ChatHistory) Message() ChatMessage {
	return ChatMessage{
		ID:        h.ID,
		Content:   h.Content,
		User:      h.User,
		Role:      Role(h.Role),
		Type:      Kind(h.Type),
		Timestamp: h.Timestamp,
	}
}
