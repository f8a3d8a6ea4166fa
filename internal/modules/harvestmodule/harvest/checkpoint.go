package harvest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mantonx/harvester/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Checkpoint is the in-memory view of a session's resumable position. The
// source list is frozen at session start; only the chunk cursor and the
// cumulative stats advance.
type Checkpoint struct {
	SessionID         string
	Config            SessionConfig
	Sources           []Source
	CurrentChunkIndex int // completed chunks; next chunk to run
	TotalChunks       int
	ChunkSize         int
	Stats             Stats
	OutputPath        string
	StartedAt         time.Time
	PausedAt          *time.Time
}

// Chunk returns the sources of the 0-based chunk index
func (cp *Checkpoint) Chunk(index int) []Source {
	start := index * cp.ChunkSize
	if start >= len(cp.Sources) {
		return nil
	}
	end := start + cp.ChunkSize
	if end > len(cp.Sources) {
		end = len(cp.Sources)
	}
	return cp.Sources[start:end]
}

// CheckpointStore persists checkpoints. Writes happen only on the
// coordinator goroutine, strictly after each chunk and at pause/stop points.
type CheckpointStore struct {
	db *gorm.DB
}

// NewCheckpointStore creates a checkpoint store backed by the given database
func NewCheckpointStore(db *gorm.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Save upserts the checkpoint row for the session
func (s *CheckpointStore) Save(cp *Checkpoint) error {
	configJSON, err := json.Marshal(cp.Config)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint config: %w", err)
	}

	sourcesJSON, err := json.Marshal(cp.Sources)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint source list: %w", err)
	}

	row := database.Checkpoint{
		SessionID:         cp.SessionID,
		ConfigJSON:        string(configJSON),
		SourceListJSON:    string(sourcesJSON),
		CurrentChunkIndex: cp.CurrentChunkIndex,
		TotalChunks:       cp.TotalChunks,
		ChunkSize:         cp.ChunkSize,
		Processed:         cp.Stats.Processed,
		Successful:        cp.Stats.Successful,
		Errored:           cp.Stats.Errored,
		Filtered:          cp.Stats.Filtered,
		Relocated:         cp.Stats.Relocated,
		OutputPath:        cp.OutputPath,
		StartedAt:         cp.StartedAt,
		PausedAt:          cp.PausedAt,
		UpdatedAt:         time.Now(),
	}

	err = s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_chunk_index", "processed", "successful", "errored",
			"filtered", "relocated", "paused_at", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}
	return nil
}

// Load reads the checkpoint for a session
func (s *CheckpointStore) Load(sessionID string) (*Checkpoint, error) {
	var row database.Checkpoint
	if err := s.db.Where("session_id = ?", sessionID).First(&row).Error; err != nil {
		return nil, fmt.Errorf("checkpoint not found for session %s: %w", sessionID, err)
	}

	var cfg SessionConfig
	if err := json.Unmarshal([]byte(row.ConfigJSON), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint config: %w", err)
	}

	var sources []Source
	if err := json.Unmarshal([]byte(row.SourceListJSON), &sources); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint source list: %w", err)
	}

	return &Checkpoint{
		SessionID:         row.SessionID,
		Config:            cfg,
		Sources:           sources,
		CurrentChunkIndex: row.CurrentChunkIndex,
		TotalChunks:       row.TotalChunks,
		ChunkSize:         row.ChunkSize,
		Stats: Stats{
			Processed:  row.Processed,
			Successful: row.Successful,
			Errored:    row.Errored,
			Filtered:   row.Filtered,
			Relocated:  row.Relocated,
		},
		OutputPath: row.OutputPath,
		StartedAt:  row.StartedAt,
		PausedAt:   row.PausedAt,
	}, nil
}

// Delete removes a session's checkpoint. Called only on successful
// completion; interrupted, paused, and failed sessions keep theirs.
func (s *CheckpointStore) Delete(sessionID string) error {
	return s.db.Where("session_id = ?", sessionID).Delete(&database.Checkpoint{}).Error
}

// Exists reports whether a checkpoint row is present for the session
func (s *CheckpointStore) Exists(sessionID string) (bool, error) {
	var count int64
	err := s.db.Model(&database.Checkpoint{}).Where("session_id = ?", sessionID).Count(&count).Error
	return count > 0, err
}
