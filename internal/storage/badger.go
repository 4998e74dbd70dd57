package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatrelay/backend/internal/models"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore is an embedded MessageStore.
//
// Layout per room:
//
//	room:<room>:id:<id>   -> seq (uint64, big endian)
//	room:<room>:seq:<seq> -> JSON message
//
// Big-endian seq keys make a prefix scan return first-insertion order.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

// NewBadgerStore opens a store at dbPath. An empty path opens an in-memory store.
func NewBadgerStore(dbPath string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dbPath)
	if dbPath == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	seq, err := db.GetSequence([]byte("meta:seq"), 128)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open message sequence: %w", err)
	}

	return &BadgerStore{db: db, seq: seq}, nil
}

func roomPrefix(room string) string {
	return "room:" + room + ":"
}

func idKey(room, id string) []byte {
	return []byte(roomPrefix(room) + "id:" + id)
}

func seqPrefix(room string) []byte {
	return []byte(roomPrefix(room) + "seq:")
}

func seqKey(room string, seq uint64) []byte {
	key := seqPrefix(room)
	return binary.BigEndian.AppendUint64(key, seq)
}

func checkRoom(room string) error {
	if room == "" || strings.Contains(room, ":") {
		return fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	return nil
}

// LoadAll returns the stored messages of a room ordered by first insertion.
func (s *BadgerStore) LoadAll(ctx context.Context, room string) ([]models.ChatMessage, error) {
	defer observe("load", time.Now())

	if err := checkRoom(room); err != nil {
		return nil, err
	}

	messages := []models.ChatMessage{}
	prefix := seqPrefix(room)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var msg models.ChatMessage
				if err := json.Unmarshal(val, &msg); err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load messages for room %s: %w", room, err)
	}
	return messages, nil
}

// Upsert stores msg under its existing seq when the id is known, or under a
// fresh seq otherwise. Both keys are written in one transaction.
func (s *BadgerStore) Upsert(ctx context.Context, room string, msg models.ChatMessage) error {
	defer observe("upsert", time.Now())

	if err := checkRoom(room); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		var seq uint64

		item, err := txn.Get(idKey(room, msg.ID))
		switch {
		case err == nil:
			err = item.Value(func(val []byte) error {
				if len(val) != 8 {
					return fmt.Errorf("corrupt seq for message %s", msg.ID)
				}
				seq = binary.BigEndian.Uint64(val)
				return nil
			})
			if err != nil {
				return err
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			if seq, err = s.seq.Next(); err != nil {
				return err
			}
			if err := txn.Set(idKey(room, msg.ID), binary.BigEndian.AppendUint64(nil, seq)); err != nil {
				return err
			}
		default:
			return err
		}

		return txn.Set(seqKey(room, seq), data)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert message %s in room %s: %w", msg.ID, room, err)
	}
	return nil
}

// ListRooms counts stored messages per room.
func (s *BadgerStore) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	var rooms []RoomSummary
	prefix := []byte("room:")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()[len(prefix):]
			idx := bytes.IndexByte(key, ':')
			if idx < 0 || !bytes.HasPrefix(key[idx+1:], []byte("seq:")) {
				continue
			}
			name := string(key[:idx])
			if n := len(rooms); n > 0 && rooms[n-1].Room == name {
				rooms[n-1].Messages++
			} else {
				rooms = append(rooms, RoomSummary{Room: name, Messages: 1})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// Ping reports whether the database is open.
func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close releases the sequence lease and closes the database.
func (s *BadgerStore) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
