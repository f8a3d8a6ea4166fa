package harvest

import (
	"fmt"
	"time"

	"github.com/mantonx/harvester/internal/database"
	"gorm.io/gorm"
)

// SessionStore persists the externally visible session history, independent
// of the checkpoint.
type SessionStore struct {
	db *gorm.DB
}

// NewSessionStore creates a session store backed by the given database
func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Create inserts a new session row
func (s *SessionStore) Create(session *database.HarvestSession) error {
	if err := s.db.Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Update applies a partial update to a session
func (s *SessionStore) Update(id string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	result := s.db.Model(&database.HarvestSession{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update session %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// UpdateStatus sets the session status plus an optional error message
func (s *SessionStore) UpdateStatus(id string, status SessionStatus, errorMessage string) error {
	updates := map[string]interface{}{
		"status":        string(status),
		"error_message": errorMessage,
	}

	now := time.Now()
	switch status {
	case StatusPaused, StatusInterrupted:
		updates["paused_at"] = &now
	case StatusCompleted:
		updates["completed_at"] = &now
	}

	return s.Update(id, updates)
}

// Get returns one session by id
func (s *SessionStore) Get(id string) (*database.HarvestSession, error) {
	var session database.HarvestSession
	if err := s.db.First(&session, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	return &session, nil
}

// List returns all sessions, newest first
func (s *SessionStore) List() ([]database.HarvestSession, error) {
	var sessions []database.HarvestSession
	if err := s.db.Order("created_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a session row
func (s *SessionStore) Delete(id string) error {
	return s.db.Delete(&database.HarvestSession{}, "id = ?", id).Error
}

// ValidateNewSession checks that no session is already running or pending for
// the same root.
func (s *SessionStore) ValidateNewSession(root string) error {
	var existing database.HarvestSession
	err := s.db.Where("root = ? AND status IN ?", root, []string{
		string(StatusPending),
		string(StatusRunning),
	}).First(&existing).Error

	if err == nil {
		return fmt.Errorf("harvest already running for root %q (session %s)", root, existing.ID)
	}
	if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("database error while checking for existing sessions: %w", err)
	}
	return nil
}

// FindByStatus returns sessions in the given status
func (s *SessionStore) FindByStatus(status SessionStatus) ([]database.HarvestSession, error) {
	var sessions []database.HarvestSession
	err := s.db.Where("status = ?", string(status)).Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions by status: %w", err)
	}
	return sessions, nil
}

// CleanupOldSessions removes completed and failed sessions older than the
// retention window, together with any leftover checkpoints and control rows.
// Returns the number of sessions removed.
func (s *SessionStore) CleanupOldSessions(olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		olderThanDays = SessionCleanupDays
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	var old []database.HarvestSession
	err := s.db.Where("status IN ? AND updated_at < ?", []string{
		string(StatusCompleted),
		string(StatusFailed),
	}, cutoff).Find(&old).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find old sessions: %w", err)
	}

	if len(old) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(old))
	for _, session := range old {
		ids = append(ids, session.ID)
	}

	s.db.Where("session_id IN ?", ids).Delete(&database.Checkpoint{})
	s.db.Where("session_id IN ?", ids).Delete(&database.ControlSignal{})

	result := s.db.Where("id IN ?", ids).Delete(&database.HarvestSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old sessions: %w", result.Error)
	}

	return result.RowsAffected, nil
}
