package indexer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vaultbridge/core/events"
)

// EventRecord is one committed protocol event.
type EventRecord struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Height     uint64 `gorm:"index"`
	Module     string `gorm:"index"`
	Type       string `gorm:"index"`
	Attributes string `gorm:"type:text"`
	CreatedAt  time.Time
}

// Decode returns the attribute map of the record.
func (r EventRecord) Decode() (map[string]string, error) {
	out := make(map[string]string)
	if strings.TrimSpace(r.Attributes) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, fmt.Errorf("indexer: decode attributes of event %d: %w", r.ID, err)
	}
	return out, nil
}

// AutoMigrate performs the schema migrations of the indexer.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}

// Store appends committed events to a SQLite audit log. It implements
// events.Emitter so the runtime can use it as its sink.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger

	mu      sync.Mutex
	height  uint64
	lastErr error
}

// Open opens (or creates) the SQLite database at dsn.
func Open(dsn string, log *slog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %q: %w", dsn, err)
	}
	return New(db, log)
}

// New wraps an open database, migrating it first.
func New(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, logger: log}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SetHeight sets the block height stamped onto subsequent events.
func (s *Store) SetHeight(height uint64) {
	s.mu.Lock()
	s.height = height
	s.mu.Unlock()
}

// Err returns the last write failure, if any.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Emit persists evt. Write failures are logged and kept for Err.
func (s *Store) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	record := EventRecord{Type: evt.EventType()}
	record.Module, _, _ = strings.Cut(record.Type, ".")
	if payload := events.Payload(evt); payload != nil && len(payload.Attributes) > 0 {
		raw, err := json.Marshal(payload.Attributes)
		if err != nil {
			s.fail(record.Type, err)
			return
		}
		record.Attributes = string(raw)
	}
	s.mu.Lock()
	record.Height = s.height
	s.mu.Unlock()
	if err := s.db.Create(&record).Error; err != nil {
		s.fail(record.Type, err)
	}
}

func (s *Store) fail(eventType string, err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.logger.Error("index event", "type", eventType, "error", err)
}

// ByType returns up to limit events of the given type, oldest first. A
// limit of zero returns every match.
func (s *Store) ByType(eventType string, limit int) ([]EventRecord, error) {
	var out []EventRecord
	q := s.db.Where("type = ?", eventType).Order("id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ByModule returns the events of module emitted at or above height.
func (s *Store) ByModule(module string, fromHeight uint64) ([]EventRecord, error) {
	var out []EventRecord
	err := s.db.Where("module = ? AND height >= ?", module, fromHeight).Order("id asc").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of stored events.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.Model(&EventRecord{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
