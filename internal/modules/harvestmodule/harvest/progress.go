package harvest

import (
	"fmt"
	"sync"

	"github.com/mantonx/harvester/internal/events"
)

// Reporter emits the typed progress event stream for one session. Delivery is
// best-effort; the checkpoint is the durability source of truth, not the
// stream.
type Reporter struct {
	bus       events.EventBus
	sessionID string
	everyN    int
	sysmon    *SystemMonitor

	mu          sync.Mutex
	lastEmitted int
}

// NewReporter creates a reporter that throttles intra-chunk progress events
// to one per everyN processed items. Chunk boundaries always emit.
func NewReporter(bus events.EventBus, sessionID string, everyN int, sysmon *SystemMonitor) *Reporter {
	if everyN <= 0 {
		everyN = 25
	}
	return &Reporter{bus: bus, sessionID: sessionID, everyN: everyN, sysmon: sysmon}
}

func (r *Reporter) publish(event events.Event) {
	if r.bus == nil {
		return
	}
	r.bus.PublishAsync(event)
}

// Started announces the session with the enumerated total
func (r *Reporter) Started(total, totalChunks int, resumed bool) {
	verb := "started"
	if resumed {
		verb = "resumed"
	}
	event := events.NewHarvestEvent(events.EventHarvestStarted, r.sessionID,
		"Harvest "+verb, fmt.Sprintf("%d sources in %d chunks", total, totalChunks))
	event.Data = map[string]interface{}{
		"session_id":   r.sessionID,
		"total":        total,
		"total_chunks": totalChunks,
		"resumed":      resumed,
	}
	r.publish(event)
}

// Log emits a free-form informational message on the session stream
func (r *Reporter) Log(message string) {
	r.publish(events.NewHarvestEvent(events.EventHarvestLog, r.sessionID, "Harvest log", message))
}

// Progress emits cumulative counters, throttled to once per everyN processed
// items. Pass force=true at chunk boundaries to bypass the throttle.
func (r *Reporter) Progress(stats Stats, total, currentChunk, totalChunks int, force bool) {
	r.mu.Lock()
	if !force && stats.Processed-r.lastEmitted < r.everyN {
		r.mu.Unlock()
		return
	}
	r.lastEmitted = stats.Processed
	r.mu.Unlock()

	progress := 0.0
	if total > 0 {
		progress = float64(stats.Processed) / float64(total) * 100
	}

	data := map[string]interface{}{
		"session_id":    r.sessionID,
		"current_chunk": currentChunk,
		"total_chunks":  totalChunks,
		"progress":      progress,
		"processed":     stats.Processed,
		"total":         total,
		"successful":    stats.Successful,
		"errors":        stats.Errored,
		"filtered":      stats.Filtered,
		"relocated":     stats.Relocated,
	}
	if r.sysmon != nil {
		cpu, mem := r.sysmon.Gauges()
		data["cpu_percent"] = cpu
		data["memory_percent"] = mem
	}

	event := events.NewHarvestEvent(events.EventHarvestProgress, r.sessionID,
		"Harvest progress", fmt.Sprintf("%d/%d processed (%.1f%%)", stats.Processed, total, progress))
	event.Data = data
	r.publish(event)
}

// Chunk emits a chunk-completion event. chunkNumber is 1-based.
func (r *Reporter) Chunk(chunkNumber, totalChunks int, chunkStats Stats) {
	event := events.NewHarvestEvent(events.EventHarvestChunk, r.sessionID,
		"Chunk completed", fmt.Sprintf("chunk %d/%d", chunkNumber, totalChunks))
	event.Data = map[string]interface{}{
		"session_id":   r.sessionID,
		"chunk":        chunkNumber,
		"total_chunks": totalChunks,
		"processed":    chunkStats.Processed,
		"successful":   chunkStats.Successful,
		"errors":       chunkStats.Errored,
		"filtered":     chunkStats.Filtered,
		"relocated":    chunkStats.Relocated,
	}
	r.publish(event)
}

// Paused emits the terminal event of a paused invocation
func (r *Reporter) Paused(stats Stats, total int) {
	event := events.NewHarvestEvent(events.EventHarvestPaused, r.sessionID,
		"Harvest paused", fmt.Sprintf("%d/%d processed", stats.Processed, total))
	r.publish(event)
}

// Shutdown emits the terminal event of a stopped invocation. currentChunk is
// the completed-chunk cursor; the event reports the 1-based next chunk.
func (r *Reporter) Shutdown(stats Stats, total int, currentChunk int) {
	event := events.NewHarvestEvent(events.EventHarvestShutdown, r.sessionID,
		"Harvest stopped", fmt.Sprintf("stopped before chunk %d, %d/%d processed", currentChunk+1, stats.Processed, total))
	event.Data = map[string]interface{}{
		"session_id":    r.sessionID,
		"current_chunk": currentChunk + 1,
		"processed":     stats.Processed,
	}
	r.publish(event)
}

// Completed emits the final event with cumulative stats
func (r *Reporter) Completed(stats Stats, total int) {
	event := events.NewHarvestEvent(events.EventHarvestCompleted, r.sessionID,
		"Harvest completed", fmt.Sprintf("%d sources, %d successful, %d errors, %d filtered, %d relocated",
			total, stats.Successful, stats.Errored, stats.Filtered, stats.Relocated))
	event.Data = map[string]interface{}{
		"session_id": r.sessionID,
		"total":      total,
		"successful": stats.Successful,
		"errors":     stats.Errored,
		"filtered":   stats.Filtered,
		"relocated":  stats.Relocated,
	}
	event.Priority = events.PriorityHigh
	r.publish(event)
}

// Error emits a session-fatal error event
func (r *Reporter) Error(err error) {
	event := events.NewHarvestEvent(events.EventHarvestError, r.sessionID, "Harvest failed", err.Error())
	event.Priority = events.PriorityHigh
	r.publish(event)
}
