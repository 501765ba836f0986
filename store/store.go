// Package store provides durable CRUD over sessions and their append-only
// message logs, backed by a local SQLite database. It is the single source of
// truth for session state; every other component reads through it.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vikramships/coworker-core/logger"
)

// Store is a SQLite-backed session store. Safe for concurrent use.
type Store struct {
	db  *gorm.DB
	log *slog.Logger
}

// Open opens (creating if necessary) the session database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session database %s: %w", path, err)
	}

	if err := db.AutoMigrate(&Session{}, &MessageRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session database: %w", err)
	}

	log := logger.WithComponent("store")
	log.Debug("session database opened", "path", path)
	return &Store{db: db, log: log}, nil
}

// CreateSession allocates a new idle session. The caller transitions it to
// running separately.
func (s *Store) CreateSession(cwd, title, prompt string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:         uuid.NewString(),
		Title:      title,
		Cwd:        cwd,
		Status:     StatusIdle,
		LastPrompt: prompt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.Create(sess).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.log.Debug("session created", "sessionID", sess.ID, "cwd", cwd)
	return sess, nil
}

// UpdateSession merges the given fields into the session row and bumps
// UpdatedAt. Updating an unknown id is a silent no-op; callers are expected to
// have validated existence where it matters.
func (s *Store) UpdateSession(id string, upd SessionUpdate) error {
	changes := upd.changes()
	if len(changes) == 0 {
		return nil
	}
	changes["updated_at"] = time.Now()

	res := s.db.Model(&Session{}).Where("id = ?", id).Updates(changes)
	if res.Error != nil {
		return fmt.Errorf("failed to update session %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		s.log.Debug("update for unknown session ignored", "sessionID", id)
	}
	return nil
}

// GetSession returns a copy of the session, or nil if absent.
func (s *Store) GetSession(id string) (*Session, error) {
	var sess Session
	err := s.db.First(&sess, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return &sess, nil
}

// ListSessions returns all sessions ordered by recency (most recently updated
// first) for UI display.
func (s *Store) ListSessions() ([]Session, error) {
	var sessions []Session
	if err := s.db.Order("updated_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// GetSessionHistory returns the session plus its message log in append order,
// or nil if the session does not exist.
func (s *Store) GetSessionHistory(id string) (*History, error) {
	sess, err := s.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	var records []MessageRecord
	if err := s.db.Where("session_id = ?", id).Order("seq ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages for session %s: %w", id, err)
	}

	messages := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		messages = append(messages, rec.Payload)
	}
	return &History{Session: *sess, Messages: messages}, nil
}

// RecordMessage appends a message payload to the session's log. Messages are
// immutable once stored; this is safe to call while the session is mid-stream.
func (s *Store) RecordMessage(id string, payload json.RawMessage) error {
	rec := MessageRecord{
		SessionID: id,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to record message for session %s: %w", id, err)
	}
	return nil
}

// DeleteSession removes the session row and its entire message log.
// Deleting a non-existent id is not an error.
func (s *Store) DeleteSession(id string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&MessageRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&Session{}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	s.log.Debug("session deleted", "sessionID", id)
	return nil
}

// ListRecentCwds returns distinct working directories across sessions,
// most-recently-used first, bounded by limit.
func (s *Store) ListRecentCwds(limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	var cwds []string
	err := s.db.Raw(
		"SELECT cwd FROM sessions WHERE cwd <> '' GROUP BY cwd ORDER BY MAX(updated_at) DESC LIMIT ?",
		limit,
	).Scan(&cwds).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent cwds: %w", err)
	}
	return cwds, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
