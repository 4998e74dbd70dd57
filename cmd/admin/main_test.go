package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.db")

	s, err := storage.Open("sqlite", path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, "lobby", models.ChatMessage{ID: "1", Content: "hi", User: "Thor", Role: models.RoleUser, Type: models.KindText}))
	require.NoError(t, s.Upsert(ctx, "lobby", models.ChatMessage{ID: "2", Content: "hello", User: "Loki", Role: models.RoleUser, Type: models.KindText}))
	require.NoError(t, s.Upsert(ctx, "garden", models.ChatMessage{ID: "1", Content: "gif", User: "Freya", Role: models.RoleUser, Type: models.KindImage}))
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	outputFormat = "table"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestRoomsCommand(t *testing.T) {
	path := seedStore(t)

	out := run(t, "rooms", "--driver", "sqlite", "--dsn", path)
	assert.Contains(t, out, "ROOM")
	assert.Regexp(t, `lobby\s+2`, out)
	assert.Regexp(t, `garden\s+1`, out)

	out = run(t, "rooms", "--driver", "sqlite", "--dsn", path, "--format", "json")
	var rooms []storage.RoomSummary
	require.NoError(t, json.Unmarshal([]byte(out), &rooms))
	assert.Len(t, rooms, 2)
}

func TestHistoryCommand(t *testing.T) {
	path := seedStore(t)

	out := run(t, "history", "lobby", "--driver", "sqlite", "--dsn", path, "-f", "json")
	var messages []models.ChatMessage
	require.NoError(t, json.Unmarshal([]byte(out), &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, "hi", messages[0].Content)
	assert.Equal(t, "hello", messages[1].Content)

	out = run(t, "history", "empty", "--driver", "sqlite", "--dsn", path)
	assert.Contains(t, out, "No messages found")
}
