// Package harvestmodule wraps the harvest engine as a registered module:
// migrations, startup recovery, and the HTTP API.
package harvestmodule

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/mantonx/harvester/internal/config"
	"github.com/mantonx/harvester/internal/database"
	"github.com/mantonx/harvester/internal/events"
	"github.com/mantonx/harvester/internal/logger"
	"github.com/mantonx/harvester/internal/modules/harvestmodule/harvest"
	"github.com/mantonx/harvester/internal/modules/modulemanager"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	// ModuleID is the unique identifier for the harvest module
	ModuleID = "system.harvest"

	// ModuleName is the display name for the harvest module
	ModuleName = "Metadata Harvester"
)

// Module implements the harvest functionality as a module
type Module struct {
	manager  *harvest.Manager
	db       *gorm.DB
	eventBus events.EventBus
}

// NewModule creates a new harvest module
func NewModule(db *gorm.DB, eventBus events.EventBus) *Module {
	return &Module{
		db:       db,
		eventBus: eventBus,
	}
}

// ID returns the unique module identifier
func (m *Module) ID() string {
	return ModuleID
}

// Name returns the module display name
func (m *Module) Name() string {
	return ModuleName
}

// Core returns whether this is a core module
func (m *Module) Core() bool {
	return true
}

// Migrate performs the harvest schema migrations
func (m *Module) Migrate(db *gorm.DB) error {
	logger.Info("Migrating harvest database schema")
	return db.AutoMigrate(
		&database.HarvestSession{},
		&database.Checkpoint{},
		&database.ControlSignal{},
	)
}

// Init initializes the harvest module and recovers sessions orphaned by a
// previous crash.
func (m *Module) Init() error {
	logger.Info("Initializing harvest module")

	if m.db == nil {
		m.db = database.GetDB()
	}
	if m.eventBus == nil {
		m.eventBus = events.GetGlobalEventBus()
	}
	if m.db == nil {
		return fmt.Errorf("harvest module requires a database connection")
	}

	m.manager = harvest.NewManager(m.db, m.eventBus, config.Get().Harvest)

	if err := m.manager.RecoverOrphanedSessions(); err != nil {
		logger.Error("Failed to recover orphaned sessions: %v", err)
	}

	return nil
}

// Shutdown cancels running sessions so they exit through their checkpointed
// interrupted path.
func (m *Module) Shutdown() {
	if m.manager != nil {
		m.manager.Shutdown()
	}
}

// GetManager returns the underlying harvest manager
func (m *Module) GetManager() *harvest.Manager {
	return m.manager
}

// Register registers this module with the module system
func Register() {
	module := NewModule(database.GetDB(), events.GetGlobalEventBus())
	modulemanager.Register(module)
}
