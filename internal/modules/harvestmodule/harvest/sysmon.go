package harvest

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/mantonx/harvester/internal/logger"
)

// SystemMonitor samples host CPU and memory usage in the background so
// progress events can carry load gauges without blocking on sampling.
type SystemMonitor struct {
	interval time.Duration

	mu         sync.RWMutex
	cpuPercent float64
	memPercent float64

	stopCh chan struct{}
	once   sync.Once
}

func NewSystemMonitor(interval time.Duration) *SystemMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &SystemMonitor{interval: interval, stopCh: make(chan struct{})}
}

// Start begins background sampling. Safe to call once per monitor.
func (m *SystemMonitor) Start() {
	go func() {
		m.sample()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sample()
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop ends background sampling
func (m *SystemMonitor) Stop() {
	m.once.Do(func() { close(m.stopCh) })
}

// Gauges returns the most recent cpu and memory usage percentages
func (m *SystemMonitor) Gauges() (cpuPercent, memPercent float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cpuPercent, m.memPercent
}

func (m *SystemMonitor) sample() {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		logger.Debug("CPU sampling failed: %v", err)
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		logger.Debug("Memory sampling failed: %v", err)
	}

	m.mu.Lock()
	if len(percents) > 0 {
		m.cpuPercent = percents[0]
	}
	if vm != nil {
		m.memPercent = vm.UsedPercent
	}
	m.mu.Unlock()
}
