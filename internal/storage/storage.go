package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chatrelay/backend/internal/metrics"
	"chatrelay/backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// MessageStore is the durable table of room messages. Rows are only ever
// inserted or fully replaced by id; nothing is deleted.
type MessageStore interface {
	// LoadAll returns the room's messages in first-insertion order.
	LoadAll(ctx context.Context, room string) ([]models.ChatMessage, error)
	// Upsert inserts msg or replaces the row with the same id, keeping its position.
	Upsert(ctx context.Context, room string, msg models.ChatMessage) error
	// ListRooms returns every room that has stored messages.
	ListRooms(ctx context.Context) ([]RoomSummary, error)

	Ping(ctx context.Context) error
	Close() error
}

// RoomSummary describes a stored room.
type RoomSummary struct {
	Room     string `json:"room"`
	Messages int64  `json:"messages"`
}

// ErrInvalidRoom is returned for room names a store cannot key.
var ErrInvalidRoom = errors.New("invalid room name")

// Service is the gorm-backed MessageStore (PostgreSQL or SQLite).
type Service struct {
	DB *gorm.DB

	mu      sync.Mutex
	lastSeq int64
}

// NewStorageService wraps an open gorm connection and migrates the messages table.
func NewStorageService(db *gorm.DB) (*Service, error) {
	if err := db.AutoMigrate(&models.ChatHistory{}); err != nil {
		return nil, fmt.Errorf("failed to migrate messages table: %w", err)
	}
	return &Service{DB: db}, nil
}

// OpenPostgres connects to PostgreSQL.
func OpenPostgres(dsn string) (*Service, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	return NewStorageService(db)
}

// OpenSQLite opens (or creates) a SQLite database file. The DSN may also be
// an in-memory URI.
func OpenSQLite(dsn string) (*Service, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	return NewStorageService(db)
}

// LoadAll returns the stored messages of a room ordered by first insertion.
func (s *Service) LoadAll(ctx context.Context, room string) ([]models.ChatMessage, error) {
	defer observe("load", time.Now())

	var rows []models.ChatHistory
	if err := s.DB.WithContext(ctx).
		Where("room = ?", room).
		Order("seq asc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages for room %s: %w", room, err)
	}

	messages := make([]models.ChatMessage, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.Message())
	}
	return messages, nil
}

// Upsert writes the whole row in one statement. On an id conflict every
// content column is replaced and seq is left untouched.
func (s *Service) Upsert(ctx context.Context, room string, msg models.ChatMessage) error {
	defer observe("upsert", time.Now())

	row := models.NewChatHistory(room, msg)
	row.Seq = s.nextSeq()

	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user", "role", "content", "type", "timestamp"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert message %s in room %s: %w", msg.ID, room, err)
	}
	return nil
}

// ListRooms returns each room with its stored message count.
func (s *Service) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	var rooms []RoomSummary
	if err := s.DB.WithContext(ctx).
		Model(&models.ChatHistory{}).
		Select("room, count(*) as messages").
		Group("room").
		Order("room asc").
		Scan(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// Ping checks the database connection.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Service) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// nextSeq returns a strictly increasing, time-based sequence number.
func (s *Service) nextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := time.Now().UnixNano()
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq
	return seq
}

func observe(op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
