// Package harvest implements the resumable chunked processing engine:
// source enumeration, the bounded worker pool, filtering, relocation, and the
// checkpointed chunk controller that drives them.
package harvest

import (
	"time"

	"github.com/mantonx/harvester/internal/config"
	"github.com/mantonx/harvester/internal/extractor"
)

// SourceKind distinguishes local paths from remote URLs
type SourceKind string

const (
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote"
)

// Source is one candidate input to be extracted. Immutable once enumerated.
type Source struct {
	Locator string     `json:"locator"`
	Kind    SourceKind `json:"kind"`
}

// Remote reports whether the source is fetched over HTTP
func (s Source) Remote() bool {
	return s.Kind == SourceRemote
}

// SessionStatus represents the lifecycle states of a harvest session
type SessionStatus string

const (
	StatusPending     SessionStatus = "pending"
	StatusRunning     SessionStatus = "running"
	StatusPaused      SessionStatus = "paused"
	StatusInterrupted SessionStatus = "interrupted"
	StatusCompleted   SessionStatus = "completed"
	StatusFailed      SessionStatus = "failed"
)

// SessionCleanupDays defines how many days finished sessions are kept before
// cleanup removes them.
const SessionCleanupDays = 30

// TextOperator names the case-insensitive string predicates the filter
// evaluates on trimmed field values.
type TextOperator string

const (
	OpEquals     TextOperator = "equals"
	OpNotEquals  TextOperator = "notEquals"
	OpLike       TextOperator = "like"
	OpNotLike    TextOperator = "notLike"
	OpStartsWith TextOperator = "startsWith"
	OpEndsWith   TextOperator = "endsWith"
	OpIsBlank    TextOperator = "isBlank"
	OpNotBlank   TextOperator = "notBlank"
)

// TextPredicate is one operator/value pair applied to a named record field
type TextPredicate struct {
	Operator TextOperator `json:"operator"`
	Value    string       `json:"value"`
}

// RelocationStructure controls how relocated assets are laid out under the
// destination root.
type RelocationStructure string

const (
	StructureReplicate RelocationStructure = "replicate"
	StructureFlat      RelocationStructure = "flat"
)

// RelocationConfig controls optional copying of passing assets
type RelocationConfig struct {
	Enabled     bool                `json:"enabled"`
	Destination string              `json:"destination"`
	Structure   RelocationStructure `json:"structure"`
}

// FilterCriteria gates record inclusion and relocation. Zero value passes
// everything.
type FilterCriteria struct {
	Enabled     bool                     `json:"enabled"`
	MinWidth    *int64                   `json:"min_width,omitempty"`
	MinHeight   *int64                   `json:"min_height,omitempty"`
	MinFileSize *int64                   `json:"min_file_size,omitempty"`
	MaxFileSize *int64                   `json:"max_file_size,omitempty"`
	FileTypes   []string                 `json:"file_types,omitempty"`
	Text        map[string]TextPredicate `json:"text,omitempty"`
	Relocation  RelocationConfig         `json:"relocation"`
}

// SessionConfig is the full configuration of one harvest session. It is
// snapshotted into the checkpoint so a resume runs with exactly the settings
// the session started with.
type SessionConfig struct {
	Root               string         `json:"root"`
	Remote             bool           `json:"remote"`
	Extensions         []string       `json:"extensions,omitempty"` // target extension set, dot-less
	ChunkSize          int            `json:"chunk_size"`
	Workers            int            `json:"workers"`
	TaskTimeout        time.Duration  `json:"task_timeout"`
	ChunkPause         time.Duration  `json:"chunk_pause"`
	ControlPollEvery   time.Duration  `json:"control_poll_every"`
	ProgressEveryItems int            `json:"progress_every_items"`
	CrawlDepth         int            `json:"crawl_depth"`
	CrawlFileCap       int            `json:"crawl_file_cap"`
	OutputPath         string         `json:"output_path"`
	Schema             []string       `json:"schema,omitempty"` // sink column order
	Filter             FilterCriteria `json:"filter"`
}

// DefaultSchema is the sink column order used when a session does not
// configure one.
var DefaultSchema = []string{
	"filename", "path", "extension", "fileSize", "modified",
	"width", "height", "title", "artist", "album", "creditline",
}

// ApplyDefaults fills unset fields from the application configuration
func (c *SessionConfig) ApplyDefaults(defaults config.HarvestConfig) {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaults.ChunkSize
	}
	if c.Workers <= 0 {
		c.Workers = defaults.Workers
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = defaults.TaskTimeout
	}
	if c.ChunkPause < 0 {
		c.ChunkPause = 0
	} else if c.ChunkPause == 0 {
		c.ChunkPause = defaults.ChunkPause
	}
	if c.ControlPollEvery <= 0 {
		c.ControlPollEvery = defaults.ControlPollEvery
	}
	if c.ProgressEveryItems <= 0 {
		c.ProgressEveryItems = defaults.ProgressEveryItems
	}
	if c.CrawlDepth <= 0 {
		c.CrawlDepth = defaults.CrawlDepth
	}
	if c.CrawlFileCap <= 0 {
		c.CrawlFileCap = defaults.CrawlFileCap
	}
	if len(c.Schema) == 0 {
		c.Schema = append([]string{}, DefaultSchema...)
	}
}

// Stats are the cumulative session counters. Fields only ever grow within a
// session.
type Stats struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Errored    int `json:"errored"`
	Filtered   int `json:"filtered"`
	Relocated  int `json:"relocated"`
}

// Merge adds chunk-level results into the cumulative counters
func (s *Stats) Merge(other Stats) {
	s.Processed += other.Processed
	s.Successful += other.Successful
	s.Errored += other.Errored
	s.Filtered += other.Filtered
	s.Relocated += other.Relocated
}

// ErrorKind classifies task-level failures
type ErrorKind string

const (
	ErrKindNone       ErrorKind = ""
	ErrKindExtraction ErrorKind = "extraction"
	ErrKindTimeout    ErrorKind = "timeout"
	ErrKindRelocation ErrorKind = "relocation"
)

// TaskResult is the outcome of processing one source
type TaskResult struct {
	Source       Source
	Record       *extractor.Record
	PassedFilter bool
	Relocated    bool
	ErrKind      ErrorKind
	Err          error
}

// ChunkSizes returns the deterministic chunk lengths for a source list:
// ceil(total/chunkSize) chunks, all of chunkSize except a shorter tail.
func ChunkSizes(total, chunkSize int) []int {
	if total <= 0 || chunkSize <= 0 {
		return nil
	}
	var sizes []int
	for remaining := total; remaining > 0; remaining -= chunkSize {
		size := chunkSize
		if remaining < chunkSize {
			size = remaining
		}
		sizes = append(sizes, size)
	}
	return sizes
}

// TotalChunks returns ceil(total/chunkSize)
func TotalChunks(total, chunkSize int) int {
	if total <= 0 || chunkSize <= 0 {
		return 0
	}
	return (total + chunkSize - 1) / chunkSize
}
