package chathub

// Client is one live connection attached to a room. It abstracts the
// transport so the room can be driven by WebSocket connections or test doubles.
type Client interface {
	// GetConnID returns the identifier of this connection. It is unique per
	// connection, not per user; moderation state is keyed by it.
	GetConnID() string
	// GetRoomID returns the name of the room the connection is attached to.
	GetRoomID() string

	// GetSendChannel returns the channel the room writes outbound wire
	// envelopes to. The room never blocks on it: a full channel gets the
	// connection dropped.
	GetSendChannel() chan<- []byte

	// Run starts the client's read and write pumps.
	Run()
	// Close stops outbound delivery and shuts the connection. It must be
	// safe to call more than once.
	Close()
}
