// Package history persists a per-session audit trail. It is observability
// only: registry state stays in memory and closed sessions are never
// resumable.
package history

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SessionRecord is one closed session.
type SessionRecord struct {
	ID         uint      `gorm:"primarykey"`
	SessionID  string    `gorm:"index;type:varchar(36)"`
	Language   string    `gorm:"type:varchar(16)"`
	Mode       string    `gorm:"type:varchar(8)"`
	ExitCode   int
	DurationMs int64
	CreatedAt  time.Time
}

// Record is the write-side view of a closed session.
type Record struct {
	SessionID string
	Language  string
	Mode      string
	ExitCode  int
	Duration  time.Duration
}

// Store wraps the sqlite-backed audit table.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the audit database and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends one closed session. Failures are swallowed: the audit
// trail must never take a session down with it.
func (s *Store) Record(r Record) {
	if s == nil {
		return
	}
	s.db.Create(&SessionRecord{
		SessionID:  r.SessionID,
		Language:   r.Language,
		Mode:       r.Mode,
		ExitCode:   r.ExitCode,
		DurationMs: r.Duration.Milliseconds(),
	})
}

// Recent returns the most recent n session records.
func (s *Store) Recent(n int) ([]SessionRecord, error) {
	var records []SessionRecord
	err := s.db.Order("id desc").Limit(n).Find(&records).Error
	return records, err
}
