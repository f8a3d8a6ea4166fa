package harvestmodule

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/harvester/internal/modules/harvestmodule/harvest"
)

// startRequest is the session creation body. Durations are given in seconds;
// unset fields fall back to the configured defaults.
type startRequest struct {
	Root               string                 `json:"root" binding:"required"`
	Extensions         []string               `json:"extensions"`
	ChunkSize          int                    `json:"chunk_size"`
	Workers            int                    `json:"workers"`
	TaskTimeoutSecs    int                    `json:"task_timeout_seconds"`
	ChunkPauseSecs     int                    `json:"chunk_pause_seconds"`
	ProgressEveryItems int                    `json:"progress_every_items"`
	CrawlDepth         int                    `json:"crawl_depth"`
	CrawlFileCap       int                    `json:"crawl_file_cap"`
	OutputPath         string                 `json:"output_path"`
	Schema             []string               `json:"schema"`
	Filter             harvest.FilterCriteria `json:"filter"`
}

// startSession creates and launches a new harvest session
func (m *Module) startSession(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	cfg := harvest.SessionConfig{
		Root:               req.Root,
		Extensions:         req.Extensions,
		ChunkSize:          req.ChunkSize,
		Workers:            req.Workers,
		TaskTimeout:        time.Duration(req.TaskTimeoutSecs) * time.Second,
		ChunkPause:         time.Duration(req.ChunkPauseSecs) * time.Second,
		ProgressEveryItems: req.ProgressEveryItems,
		CrawlDepth:         req.CrawlDepth,
		CrawlFileCap:       req.CrawlFileCap,
		OutputPath:         req.OutputPath,
		Schema:             req.Schema,
		Filter:             req.Filter,
	}

	sessionID, err := m.manager.StartHarvest(cfg)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": fmt.Sprintf("Failed to start harvest: %v", err),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": sessionID,
		"message":    "Harvest started",
	})
}

// listSessions returns all sessions, newest first
func (m *Module) listSessions(c *gin.Context) {
	sessions, err := m.manager.Sessions().List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list sessions: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// getSession returns one session
func (m *Module) getSession(c *gin.Context) {
	session, err := m.manager.Sessions().Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// getProgress returns a live progress snapshot for one session
func (m *Module) getProgress(c *gin.Context) {
	session, err := m.manager.Sessions().Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":    session.ID,
		"status":        session.Status,
		"progress":      session.Progress,
		"sources_found": session.SourcesFound,
		"processed":     session.Processed,
		"successful":    session.Successful,
		"errored":       session.Errored,
		"filtered":      session.Filtered,
		"relocated":     session.Relocated,
	})
}

// pauseSession requests a pause at the session's next poll point
func (m *Module) pauseSession(c *gin.Context) {
	if err := m.manager.Pause(c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": fmt.Sprintf("Failed to pause: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pause requested"})
}

// resumeSession restarts a paused or interrupted session from its checkpoint
func (m *Module) resumeSession(c *gin.Context) {
	if err := m.manager.Resume(c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": fmt.Sprintf("Failed to resume: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Resume started"})
}

// stopSession requests a stop at the session's next poll point
func (m *Module) stopSession(c *gin.Context) {
	if err := m.manager.Stop(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("Failed to stop: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stop requested"})
}

// deleteSession removes a finished session and its checkpoint
func (m *Module) deleteSession(c *gin.Context) {
	if err := m.manager.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": fmt.Sprintf("Failed to delete: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session deleted"})
}

// cleanupSessions removes finished sessions older than the retention window.
// Override the window with ?older_than_days=N.
func (m *Module) cleanupSessions(c *gin.Context) {
	days := 0
	if v := c.Query("older_than_days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid older_than_days"})
			return
		}
		days = parsed
	}

	removed, err := m.manager.CleanupOldSessions(days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Cleanup failed: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"removed": removed,
		"message": fmt.Sprintf("Removed %d old sessions", removed),
	})
}
