// Package modulemanager provides module registration and initialization.
// Modules register themselves from init() via blank imports in main; the
// registry migrates and initializes them once the database is up.
package modulemanager

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mantonx/harvester/internal/logger"
)

// Module defines the interface that all modules must implement
type Module interface {
	ID() string                // Unique identifier for the module
	Name() string              // Display name for the module
	Core() bool                // Core modules cannot be disabled
	Migrate(db *gorm.DB) error // Run database migrations
	Init() error               // Initialize the module
}

// RouteRegistrar is an optional interface for modules that register routes
type RouteRegistrar interface {
	RegisterRoutes(router *gin.Engine)
}

// Shutdowner is an optional interface for modules with teardown work
type Shutdowner interface {
	Shutdown()
}

// ModuleRegistry manages module registration and initialization
type ModuleRegistry struct {
	modules         map[string]Module
	order           []string
	disabledModules map[string]bool
	mu              sync.RWMutex
	initialized     bool
}

// Registry is the global module registry
var Registry = &ModuleRegistry{
	modules:         make(map[string]Module),
	disabledModules: make(map[string]bool),
}

// Register adds a module to the registry
func Register(m Module) {
	Registry.Register(m)
}

// Register adds a module to the registry
func (r *ModuleRegistry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Warn("Module %s (%s) registered after initialization", m.Name(), m.ID())
	}

	if _, exists := r.modules[m.ID()]; !exists {
		r.order = append(r.order, m.ID())
	}
	r.modules[m.ID()] = m
	logger.Info("Module registered: %s (%s)", m.Name(), m.ID())
}

// LoadAll migrates and initializes all registered modules
func LoadAll(db *gorm.DB) error {
	return Registry.LoadAll(db)
}

// LoadAll migrates and initializes all registered modules in registration
// order.
func (r *ModuleRegistry) LoadAll(db *gorm.DB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Warn("Module system already initialized")
		return nil
	}

	config, err := LoadConfig(GetDefaultConfigPath())
	if err != nil {
		logger.Warn("Failed to load module config, using defaults: %v", err)
		config = &ModuleConfig{}
	}
	for _, moduleID := range config.Modules.Disabled {
		r.disabledModules[moduleID] = true
		logger.Info("Module disabled via configuration: %s", moduleID)
	}

	for _, id := range r.order {
		module := r.modules[id]
		if r.disabledModules[id] {
			if module.Core() {
				return fmt.Errorf("attempted to disable core module: %s", id)
			}
			logger.Warn("Skipping module %s (disabled)", module.Name())
			continue
		}

		if err := module.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", module.Name(), err)
		}
		if err := module.Init(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", module.Name(), err)
		}
		logger.Info("Module loaded: %s", module.Name())
	}

	r.initialized = true
	return nil
}

// RegisterRoutes lets every enabled module attach its routes
func RegisterRoutes(router *gin.Engine) {
	Registry.RegisterRoutes(router)
}

// RegisterRoutes lets every enabled module attach its routes
func (r *ModuleRegistry) RegisterRoutes(router *gin.Engine) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if r.disabledModules[id] {
			continue
		}
		if registrar, ok := r.modules[id].(RouteRegistrar); ok {
			registrar.RegisterRoutes(router)
		}
	}
}

// ShutdownAll tears down every enabled module in reverse registration order
func ShutdownAll() {
	Registry.ShutdownAll()
}

// ShutdownAll tears down every enabled module in reverse registration order
func (r *ModuleRegistry) ShutdownAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		id := r.order[i]
		if r.disabledModules[id] {
			continue
		}
		if s, ok := r.modules[id].(Shutdowner); ok {
			logger.Info("Shutting down module: %s", r.modules[id].Name())
			s.Shutdown()
		}
	}
}

// GetModule returns a module by ID
func GetModule(id string) (Module, bool) {
	return Registry.GetModule(id)
}

// GetModule returns a module by ID
func (r *ModuleRegistry) GetModule(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	module, exists := r.modules[id]
	return module, exists
}

// ListModules returns all registered modules in registration order
func ListModules() []Module {
	return Registry.ListModules()
}

// ListModules returns all registered modules in registration order
func (r *ModuleRegistry) ListModules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modules := make([]Module, 0, len(r.order))
	for _, id := range r.order {
		modules = append(modules, r.modules[id])
	}
	return modules
}
