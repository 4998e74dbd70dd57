package chathub_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStorage is a testify/mock implementation of storage.MessageStore.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) LoadAll(ctx context.Context, room string) ([]models.ChatMessage, error) {
	args := m.Called(ctx, room)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatMessage), args.Error(1)
}

func (m *MockStorage) Upsert(ctx context.Context, room string, msg models.ChatMessage) error {
	args := m.Called(ctx, room, msg)
	return args.Error(0)
}

func (m *MockStorage) ListRooms(ctx context.Context) ([]storage.RoomSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.RoomSummary), args.Error(1)
}

func (m *MockStorage) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStorage) Close() error {
	return m.Called().Error(0)
}

// MockClient is a test double for chathub.Client backed by a buffered channel.
type MockClient struct {
	connID string
	roomID string
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

func newMockClient(connID string) *MockClient {
	return newMockClientWithBuffer(connID, 16)
}

func newMockClientWithBuffer(connID string, size int) *MockClient {
	return &MockClient{
		connID: connID,
		roomID: "lobby",
		send:   make(chan []byte, size),
	}
}

func (c *MockClient) GetConnID() string             { return c.connID }
func (c *MockClient) GetRoomID() string             { return c.roomID }
func (c *MockClient) GetSendChannel() chan<- []byte { return c.send }
func (c *MockClient) Run()                          {}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *MockClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// recv returns the next envelope queued to c.
func (c *MockClient) recv(t *testing.T) []byte {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel of %s was closed", c.connID)
		return data
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a message on %s", c.connID)
		return nil
	}
}

// recvSnapshot reads the next envelope and decodes it as a snapshot.
func (c *MockClient) recvSnapshot(t *testing.T) []models.ChatMessage {
	t.Helper()
	var env struct {
		Type     string               `json:"type"`
		Messages []models.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(c.recv(t), &env))
	require.Equal(t, "all", env.Type)
	return env.Messages
}

// pending returns every envelope already queued without blocking.
func (c *MockClient) pending() [][]byte {
	var out [][]byte
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, data)
		default:
			return out
		}
	}
}

func addEnvelope(id, content string) []byte {
	return envelope("add", id, content)
}

func envelope(typ, id, content string) []byte {
	data, _ := json.Marshal(map[string]string{
		"type":        typ,
		"id":          id,
		"content":     content,
		"user":        "Apollo",
		"role":        "user",
		"messageType": "text",
		"timestamp":   "10:00",
	})
	return data
}

func textMessage(id, content string) models.ChatMessage {
	return models.ChatMessage{ID: id, Content: content, User: "Apollo", Role: models.RoleUser, Type: models.KindText, Timestamp: "10:00"}
}

func messageIDs(messages []models.ChatMessage) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}
