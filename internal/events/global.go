package events

import (
	"sync"

	"github.com/mantonx/harvester/internal/logger"
)

var (
	globalBus     EventBus
	globalBusLock sync.RWMutex
)

// SetGlobalEventBus sets the global event bus instance
func SetGlobalEventBus(bus EventBus) {
	globalBusLock.Lock()
	defer globalBusLock.Unlock()
	globalBus = bus
}

// GetGlobalEventBus returns the global event bus instance
func GetGlobalEventBus() EventBus {
	globalBusLock.RLock()
	defer globalBusLock.RUnlock()
	return globalBus
}

// BusLogger adapts internal/logger to the EventLogger interface
type BusLogger struct{}

func (BusLogger) Debug(msg string, fields ...interface{}) { logger.Debug(msg+fieldFmt(fields), fields...) }
func (BusLogger) Info(msg string, fields ...interface{})  { logger.Info(msg+fieldFmt(fields), fields...) }
func (BusLogger) Warn(msg string, fields ...interface{})  { logger.Warn(msg+fieldFmt(fields), fields...) }
func (BusLogger) Error(msg string, fields ...interface{}) { logger.Error(msg+fieldFmt(fields), fields...) }

// fieldFmt builds a printf suffix for alternating key/value pairs
func fieldFmt(fields []interface{}) string {
	s := ""
	for i := 0; i+1 < len(fields); i += 2 {
		s += " %v=%v"
	}
	return s
}
