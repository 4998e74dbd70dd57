package storage_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id, content string) models.ChatMessage {
	return models.ChatMessage{ID: id, Content: content, User: "Athena", Role: models.RoleUser, Type: models.KindText}
}

func ids(messages []models.ChatMessage) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}

// storeFactories lets every MessageStore implementation run the same contract tests.
func storeFactories(t *testing.T) map[string]func(t *testing.T) storage.MessageStore {
	return map[string]func(t *testing.T) storage.MessageStore{
		"sqlite": func(t *testing.T) storage.MessageStore {
			dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
			s, err := storage.OpenSQLite(dsn)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"badger": func(t *testing.T) storage.MessageStore {
			s, err := storage.NewBadgerStore("")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestMessageStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("empty room loads nothing", func(t *testing.T) {
				s := open(t)
				got, err := s.LoadAll(ctx, "lobby")
				require.NoError(t, err)
				assert.Empty(t, got)
			})

			t.Run("insert keeps order", func(t *testing.T) {
				s := open(t)
				for _, id := range []string{"c", "a", "b"} {
					require.NoError(t, s.Upsert(ctx, "lobby", msg(id, "text "+id)))
				}

				got, err := s.LoadAll(ctx, "lobby")
				require.NoError(t, err)
				assert.Equal(t, []string{"c", "a", "b"}, ids(got))
			})

			t.Run("replace keeps position and rewrites every field", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.Upsert(ctx, "lobby", msg("A", "one")))
				require.NoError(t, s.Upsert(ctx, "lobby", msg("B", "two")))
				require.NoError(t, s.Upsert(ctx, "lobby", msg("C", "three")))

				updated := models.ChatMessage{
					ID: "B", Content: "https://media.example/cat.gif", User: "Hermes",
					Role: models.RoleAssistant, Type: models.KindImage, Timestamp: "10:42",
				}
				require.NoError(t, s.Upsert(ctx, "lobby", updated))

				got, err := s.LoadAll(ctx, "lobby")
				require.NoError(t, err)
				require.Equal(t, []string{"A", "B", "C"}, ids(got))
				assert.Equal(t, updated, got[1])
			})

			t.Run("idempotent upsert", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.Upsert(ctx, "lobby", msg("A", "same")))
				require.NoError(t, s.Upsert(ctx, "lobby", msg("A", "same")))

				got, err := s.LoadAll(ctx, "lobby")
				require.NoError(t, err)
				assert.Equal(t, []models.ChatMessage{msg("A", "same")}, got)
			})

			t.Run("rooms are partitioned", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.Upsert(ctx, "red", msg("A", "in red")))
				require.NoError(t, s.Upsert(ctx, "blue", msg("A", "in blue")))
				require.NoError(t, s.Upsert(ctx, "blue", msg("B", "also blue")))

				red, err := s.LoadAll(ctx, "red")
				require.NoError(t, err)
				require.Len(t, red, 1)
				assert.Equal(t, "in red", red[0].Content)

				rooms, err := s.ListRooms(ctx)
				require.NoError(t, err)
				assert.Equal(t, []storage.RoomSummary{
					{Room: "blue", Messages: 2},
					{Room: "red", Messages: 1},
				}, rooms)
			})

			t.Run("ping", func(t *testing.T) {
				s := open(t)
				assert.NoError(t, s.Ping(ctx))
			})
		})
	}
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/relay.db"

	s, err := storage.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, "lobby", msg("A", "one")))
	require.NoError(t, s.Upsert(ctx, "lobby", msg("B", "two")))
	require.NoError(t, s.Close())

	reopened, err := storage.OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.Upsert(ctx, "lobby", msg("C", "three")))
	require.NoError(t, reopened.Upsert(ctx, "lobby", msg("A", "one, edited")))

	got, err := reopened.LoadAll(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids(got))
	assert.Equal(t, "one, edited", got[0].Content)
}

func TestBadger_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := storage.NewBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, "lobby", msg("A", "one")))
	require.NoError(t, s.Upsert(ctx, "lobby", msg("B", "two")))
	require.NoError(t, s.Close())

	reopened, err := storage.NewBadgerStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.Upsert(ctx, "lobby", msg("C", "three")))

	got, err := reopened.LoadAll(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids(got))
}

func TestBadger_RejectsUnkeyableRoom(t *testing.T) {
	s, err := storage.NewBadgerStore("")
	require.NoError(t, err)
	defer s.Close()

	err = s.Upsert(context.Background(), "a:b", msg("A", "x"))
	assert.ErrorIs(t, err, storage.ErrInvalidRoom)

	_, err = s.LoadAll(context.Background(), "")
	assert.ErrorIs(t, err, storage.ErrInvalidRoom)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	sqlitePath := filepath.Join(dir, "nested", "relay.db")
	s, err := storage.Open("sqlite", sqlitePath)
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.FileExists(t, sqlitePath)

	b, err := storage.Open("badger", filepath.Join(dir, "badger"))
	require.NoError(t, err)
	require.NoError(t, b.Ping(context.Background()))
	require.NoError(t, b.Close())

	_, err = storage.Open("mongodb", "")
	assert.Error(t, err)
}
