package harvest

import (
	"fmt"
	"time"

	"github.com/mantonx/harvester/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ControlState is the pause/stop request snapshot the controller polls
type ControlState struct {
	Paused    bool      `json:"is_paused"`
	Stop      bool      `json:"should_stop"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ControlStore is the single writer of control signals. The controller never
// mutates signals; it only reads them at chunk boundaries and during the
// inter-chunk wait.
type ControlStore struct {
	db *gorm.DB
}

// NewControlStore creates a control store backed by the given database
func NewControlStore(db *gorm.DB) *ControlStore {
	return &ControlStore{db: db}
}

// RequestPause asks the session to pause at the next poll point
func (c *ControlStore) RequestPause(sessionID string) error {
	return c.set(sessionID, true, false)
}

// RequestStop asks the session to stop at the next poll point. A stop request
// overrides an earlier pause.
func (c *ControlStore) RequestStop(sessionID string) error {
	return c.set(sessionID, false, true)
}

// ClearPause resets the pause flag, typically on resume
func (c *ControlStore) ClearPause(sessionID string) error {
	return c.set(sessionID, false, false)
}

func (c *ControlStore) set(sessionID string, paused, stop bool) error {
	signal := database.ControlSignal{
		SessionID: sessionID,
		Paused:    paused,
		Stop:      stop,
		UpdatedAt: time.Now(),
	}

	err := c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"paused", "stop", "updated_at"}),
	}).Create(&signal).Error
	if err != nil {
		return fmt.Errorf("failed to persist control signal: %w", err)
	}
	return nil
}

// Get returns the current control state for a session. A missing row means no
// request is pending.
func (c *ControlStore) Get(sessionID string) (ControlState, error) {
	var signal database.ControlSignal
	err := c.db.Where("session_id = ?", sessionID).First(&signal).Error
	if err == gorm.ErrRecordNotFound {
		return ControlState{}, nil
	}
	if err != nil {
		return ControlState{}, fmt.Errorf("failed to read control signal: %w", err)
	}

	return ControlState{
		Paused:    signal.Paused,
		Stop:      signal.Stop,
		UpdatedAt: signal.UpdatedAt,
	}, nil
}

// Delete removes the control row for a finished session
func (c *ControlStore) Delete(sessionID string) error {
	return c.db.Where("session_id = ?", sessionID).Delete(&database.ControlSignal{}).Error
}
