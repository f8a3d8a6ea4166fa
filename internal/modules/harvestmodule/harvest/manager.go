package harvest

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mantonx/harvester/internal/config"
	"github.com/mantonx/harvester/internal/database"
	"github.com/mantonx/harvester/internal/events"
	"github.com/mantonx/harvester/internal/extractor"
	"github.com/mantonx/harvester/internal/logger"
	"github.com/mantonx/harvester/internal/sink"
)

// Manager owns the lifecycle of harvest sessions: starting, pausing,
// stopping, resuming, recovery after a crash, and the post-completion
// watchers. One controller goroutine runs per active session.
type Manager struct {
	db       *gorm.DB
	eventBus events.EventBus
	defaults config.HarvestConfig

	sessions    *SessionStore
	checkpoints *CheckpointStore
	control     *ControlStore
	enumerator  *Enumerator
	extractor   extractor.Extractor
	sysmon      *SystemMonitor

	mu       sync.RWMutex
	running  map[string]context.CancelFunc
	watchers map[string]*LibraryWatcher
}

// NewManager creates a manager backed by the given database and event bus
func NewManager(db *gorm.DB, eventBus events.EventBus, defaults config.HarvestConfig) *Manager {
	client := &http.Client{Timeout: 30 * time.Second}
	sysmon := NewSystemMonitor(5 * time.Second)
	sysmon.Start()

	return &Manager{
		db:          db,
		eventBus:    eventBus,
		defaults:    defaults,
		sessions:    NewSessionStore(db),
		checkpoints: NewCheckpointStore(db),
		control:     NewControlStore(db),
		enumerator:  NewEnumerator(NewCrawler(client)),
		extractor:   extractor.NewFileExtractor(client),
		sysmon:      sysmon,
		running:     make(map[string]context.CancelFunc),
		watchers:    make(map[string]*LibraryWatcher),
	}
}

// Sessions exposes the session store for read-side handlers
func (m *Manager) Sessions() *SessionStore {
	return m.sessions
}

// StartHarvest creates a new session over the given root and launches it in
// the background. Returns the new session id.
func (m *Manager) StartHarvest(cfg SessionConfig) (string, error) {
	if cfg.Root == "" {
		return "", fmt.Errorf("root is required")
	}
	cfg.Remote = strings.HasPrefix(cfg.Root, "http://") || strings.HasPrefix(cfg.Root, "https://")
	cfg.ApplyDefaults(m.defaults)

	if err := m.sessions.ValidateNewSession(cfg.Root); err != nil {
		return "", err
	}

	sessionID := uuid.New().String()
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(config.Get().Data.OutputDir, fmt.Sprintf("harvest-%s.csv", sessionID))
	}

	session := &database.HarvestSession{
		ID:         sessionID,
		Status:     string(StatusPending),
		Root:       cfg.Root,
		Remote:     cfg.Remote,
		OutputPath: cfg.OutputPath,
	}
	if err := m.sessions.Create(session); err != nil {
		return "", err
	}

	// A fresh session must not inherit stale signals from a deleted one.
	m.control.Delete(sessionID)

	m.launch(sessionID, func(ctx context.Context) {
		m.runNew(ctx, sessionID, cfg)
	})

	logger.Info("Harvest session %s created for root %s", sessionID, cfg.Root)
	return sessionID, nil
}

// Resume restarts a paused or interrupted session from its checkpoint
func (m *Manager) Resume(sessionID string) error {
	m.mu.RLock()
	_, active := m.running[sessionID]
	m.mu.RUnlock()
	if active {
		return fmt.Errorf("session %s is already running", sessionID)
	}

	session, err := m.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	switch SessionStatus(session.Status) {
	case StatusPaused, StatusInterrupted, StatusFailed:
	default:
		return fmt.Errorf("session %s is %s, not resumable", sessionID, session.Status)
	}

	cp, err := m.checkpoints.Load(sessionID)
	if err != nil {
		return err
	}

	if err := m.control.ClearPause(sessionID); err != nil {
		return err
	}

	m.launch(sessionID, func(ctx context.Context) {
		m.runCheckpoint(ctx, cp, true)
	})

	m.eventBus.PublishAsync(events.NewHarvestEvent(events.EventHarvestResumed, sessionID,
		"Harvest resuming", fmt.Sprintf("resuming at chunk %d of %d", cp.CurrentChunkIndex+1, cp.TotalChunks)))
	logger.Info("Harvest session %s resuming at chunk %d", sessionID, cp.CurrentChunkIndex+1)
	return nil
}

// Pause requests a pause at the session's next poll point
func (m *Manager) Pause(sessionID string) error {
	session, err := m.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	if SessionStatus(session.Status) != StatusRunning && SessionStatus(session.Status) != StatusPending {
		return fmt.Errorf("session %s is %s, not pausable", sessionID, session.Status)
	}
	return m.control.RequestPause(sessionID)
}

// Stop requests a stop at the session's next poll point. A stop overrides a
// pending pause. A paused session has no controller left to poll, so it is
// moved to interrupted right here; the checkpoint stays for a later resume.
func (m *Manager) Stop(sessionID string) error {
	if _, err := m.sessions.Get(sessionID); err != nil {
		return err
	}
	if err := m.control.RequestStop(sessionID); err != nil {
		return err
	}

	m.mu.RLock()
	_, active := m.running[sessionID]
	m.mu.RUnlock()
	if active {
		return nil
	}

	session, err := m.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	if SessionStatus(session.Status) != StatusPaused {
		return nil
	}

	if err := m.sessions.UpdateStatus(sessionID, StatusInterrupted, ""); err != nil {
		return err
	}
	m.sessions.Update(sessionID, map[string]interface{}{"status_message": "stop requested"})
	m.eventBus.PublishAsync(events.NewHarvestEvent(events.EventHarvestShutdown, sessionID,
		"Harvest stopped", "stopped while paused"))
	logger.Info("Paused session %s stopped, now interrupted", sessionID)
	return nil
}

// Delete removes a session and its checkpoint. Running sessions must be
// stopped first.
func (m *Manager) Delete(sessionID string) error {
	m.mu.RLock()
	_, active := m.running[sessionID]
	m.mu.RUnlock()
	if active {
		return fmt.Errorf("session %s is running; stop it first", sessionID)
	}

	m.stopWatcher(sessionID)
	m.checkpoints.Delete(sessionID)
	m.control.Delete(sessionID)
	return m.sessions.Delete(sessionID)
}

// RecoverOrphanedSessions flags sessions left running or pending by a crash
// as interrupted. Their checkpoints are retained, so they stay resumable.
func (m *Manager) RecoverOrphanedSessions() error {
	for _, status := range []SessionStatus{StatusRunning, StatusPending} {
		orphaned, err := m.sessions.FindByStatus(status)
		if err != nil {
			return err
		}
		for _, session := range orphaned {
			logger.Warn("Recovering orphaned session %s (was %s)", session.ID, session.Status)
			if err := m.sessions.UpdateStatus(session.ID, StatusInterrupted, ""); err != nil {
				logger.Error("Failed to recover session %s: %v", session.ID, err)
				continue
			}
			m.sessions.Update(session.ID, map[string]interface{}{
				"status_message": "interrupted by restart",
			})
		}
	}
	return nil
}

// CleanupOldSessions removes finished sessions past the retention window
func (m *Manager) CleanupOldSessions(olderThanDays int) (int64, error) {
	return m.sessions.CleanupOldSessions(olderThanDays)
}

// Shutdown cancels running sessions and stops watchers and the system
// monitor. Running controllers exit through their interrupted path.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for id, cancel := range m.running {
		logger.Info("Cancelling running session %s", id)
		cancel()
	}
	for _, w := range m.watchers {
		w.Stop()
	}
	m.watchers = make(map[string]*LibraryWatcher)
	m.mu.Unlock()

	m.sysmon.Stop()
}

// launch registers the session as running and starts its goroutine
func (m *Manager) launch(sessionID string, run func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.running[sessionID] = cancel
	m.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			m.mu.Lock()
			delete(m.running, sessionID)
			m.mu.Unlock()
		}()
		run(ctx)
	}()
}

// runNew enumerates the root, seeds the checkpoint, and hands off to the
// controller.
func (m *Manager) runNew(ctx context.Context, sessionID string, cfg SessionConfig) {
	sources, err := m.enumerator.Enumerate(cfg)
	if err != nil {
		m.failSession(sessionID, fmt.Errorf("enumeration failed: %w", err))
		return
	}
	if len(sources) == 0 {
		m.failSession(sessionID, fmt.Errorf("no matching sources under %s", cfg.Root))
		return
	}

	now := time.Now()
	cp := &Checkpoint{
		SessionID:         sessionID,
		Config:            cfg,
		Sources:           sources,
		CurrentChunkIndex: 0,
		TotalChunks:       TotalChunks(len(sources), cfg.ChunkSize),
		ChunkSize:         cfg.ChunkSize,
		OutputPath:        cfg.OutputPath,
		StartedAt:         now,
	}
	if err := m.checkpoints.Save(cp); err != nil {
		m.failSession(sessionID, fmt.Errorf("checkpoint persistence failed: %w", err))
		return
	}

	m.sessions.Update(sessionID, map[string]interface{}{
		"status":        string(StatusRunning),
		"sources_found": len(sources),
		"started_at":    &now,
	})

	m.runCheckpoint(ctx, cp, false)
}

// runCheckpoint builds the per-session collaborators and runs the controller
func (m *Manager) runCheckpoint(ctx context.Context, cp *Checkpoint, resumed bool) {
	sessionID := cp.SessionID

	if resumed {
		now := time.Now()
		m.sessions.Update(sessionID, map[string]interface{}{
			"status":         string(StatusRunning),
			"status_message": "",
			"started_at":     &now,
		})
	}

	out := sink.NewCSVSink(cp.OutputPath)
	if err := out.Initialize(cp.Config.Schema); err != nil {
		m.failSession(sessionID, fmt.Errorf("sink initialization failed: %w", err))
		return
	}
	defer out.Close()

	relocator := NewRelocator(cp.Config.Filter.Relocation, cp.Config.Root, nil)
	reporter := NewReporter(m.eventBus, sessionID, cp.Config.ProgressEveryItems, m.sysmon)
	pool := NewWorkerPool(m.extractor, NewFilterEngine())

	controller := NewController(cp, pool, relocator, out, reporter,
		m.control, m.sessions, m.checkpoints)

	if err := controller.Run(ctx, resumed); err != nil {
		return
	}

	// Completed local sessions get a library watcher so new arrivals are
	// announced on the stream.
	session, err := m.sessions.Get(sessionID)
	if err == nil && SessionStatus(session.Status) == StatusCompleted && !cp.Config.Remote {
		m.startWatcher(sessionID, cp.Config)
	}
}

func (m *Manager) startWatcher(sessionID string, cfg SessionConfig) {
	watcher := NewLibraryWatcher(m.eventBus, sessionID, cfg.Extensions)
	if err := watcher.Watch(cfg.Root); err != nil {
		logger.Warn("Cannot watch %s after completion: %v", cfg.Root, err)
		return
	}

	m.mu.Lock()
	if old, ok := m.watchers[sessionID]; ok {
		old.Stop()
	}
	m.watchers[sessionID] = watcher
	m.mu.Unlock()
}

func (m *Manager) stopWatcher(sessionID string) {
	m.mu.Lock()
	if w, ok := m.watchers[sessionID]; ok {
		w.Stop()
		delete(m.watchers, sessionID)
	}
	m.mu.Unlock()
}

func (m *Manager) failSession(sessionID string, cause error) {
	logger.Error("Harvest session %s failed: %v", sessionID, cause)
	if err := m.sessions.UpdateStatus(sessionID, StatusFailed, cause.Error()); err != nil {
		logger.Error("Failed to mark session %s failed: %v", sessionID, err)
	}
	event := events.NewHarvestEvent(events.EventHarvestError, sessionID, "Harvest failed", cause.Error())
	event.Priority = events.PriorityHigh
	m.eventBus.PublishAsync(event)
}
