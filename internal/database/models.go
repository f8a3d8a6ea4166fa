package database

import (
	"time"
)

// HarvestSession is the externally queryable view of a harvest run. It is a
// coarser projection of the checkpoint plus live counters, persisted
// independently so history survives checkpoint deletion.
type HarvestSession struct {
	ID            string     `gorm:"primaryKey" json:"id"` // uuid
	Status        string     `gorm:"not null;default:'pending';index:idx_harvest_sessions_status" json:"status"`
	Root          string     `gorm:"not null" json:"root"`
	Remote        bool       `gorm:"default:false" json:"remote"`
	Progress      float64    `gorm:"default:0" json:"progress"` // 0.0-100.0
	SourcesFound  int        `gorm:"default:0" json:"sources_found"`
	Processed     int        `gorm:"default:0" json:"processed"`
	Successful    int        `gorm:"default:0" json:"successful"`
	Errored       int        `gorm:"default:0" json:"errored"`
	Filtered      int        `gorm:"default:0" json:"filtered"`
	Relocated     int        `gorm:"default:0" json:"relocated"`
	OutputPath    string     `json:"output_path"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	StatusMessage string     `json:"status_message,omitempty"` // informational, e.g. restart recovery
	StartedAt     *time.Time `json:"started_at,omitempty"`
	PausedAt      *time.Time `json:"paused_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Checkpoint is the durable resumable position of a session: the frozen source
// list, chunk geometry, and cumulative stats. It is written strictly after
// each chunk and at every pause/stop point, and deleted only when the session
// completes.
type Checkpoint struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	SessionID         string     `gorm:"uniqueIndex;not null" json:"session_id"`
	ConfigJSON        string     `gorm:"type:text" json:"config_json"`
	SourceListJSON    string     `gorm:"type:text" json:"source_list_json"` // fixed for the session lifetime
	CurrentChunkIndex int        `gorm:"default:0" json:"current_chunk_index"`
	TotalChunks       int        `gorm:"default:0" json:"total_chunks"`
	ChunkSize         int        `gorm:"default:0" json:"chunk_size"`
	Processed         int        `gorm:"default:0" json:"processed"`
	Successful        int        `gorm:"default:0" json:"successful"`
	Errored           int        `gorm:"default:0" json:"errored"`
	Filtered          int        `gorm:"default:0" json:"filtered"`
	Relocated         int        `gorm:"default:0" json:"relocated"`
	OutputPath        string     `json:"output_path"`
	StartedAt         time.Time  `json:"started_at"`
	PausedAt          *time.Time `json:"paused_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ControlSignal is the pause/stop request for a session. Only the control
// endpoint writes it; the chunk controller reads it at poll points.
type ControlSignal struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"uniqueIndex;not null" json:"session_id"`
	Paused    bool      `gorm:"default:false" json:"is_paused"`
	Stop      bool      `gorm:"default:false" json:"should_stop"`
	UpdatedAt time.Time `json:"updated_at"`
}
