package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/mantonx/harvester/internal/logger"
	"github.com/mantonx/harvester/internal/sink"
)

// Controller drives one session invocation chunk by chunk: dispatch to the
// worker pool, aggregate results, append passing records to the sink, persist
// the checkpoint, and honor pause/stop requests at poll points. All
// checkpoint writes happen on this goroutine.
type Controller struct {
	cp          *Checkpoint
	pool        *WorkerPool
	relocator   *Relocator
	out         sink.Sink
	reporter    *Reporter
	control     *ControlStore
	sessions    *SessionStore
	checkpoints *CheckpointStore
}

// NewController assembles a controller around a prepared checkpoint. For a
// fresh session the checkpoint has CurrentChunkIndex 0 and zero stats; for a
// resume it is the loaded row.
func NewController(cp *Checkpoint, pool *WorkerPool, relocator *Relocator, out sink.Sink,
	reporter *Reporter, control *ControlStore, sessions *SessionStore, checkpoints *CheckpointStore) *Controller {
	return &Controller{
		cp:          cp,
		pool:        pool,
		relocator:   relocator,
		out:         out,
		reporter:    reporter,
		control:     control,
		sessions:    sessions,
		checkpoints: checkpoints,
	}
}

// Run executes the session from the checkpoint's cursor to completion or to a
// pause/stop exit. It returns an error only for session-fatal conditions;
// pause and stop are normal exits.
func (c *Controller) Run(ctx context.Context, resumed bool) error {
	cp := c.cp
	total := len(cp.Sources)

	c.reporter.Started(total, cp.TotalChunks, resumed)
	logger.Info("Harvest session %s %s: %d sources, %d chunks, starting at chunk %d",
		cp.SessionID, startVerb(resumed), total, cp.TotalChunks, cp.CurrentChunkIndex+1)

	for idx := cp.CurrentChunkIndex; idx < cp.TotalChunks; idx++ {
		if exit, err := c.pollControl(ctx); exit {
			return err
		}

		chunk := cp.Chunk(idx)
		chunkStats, err := c.processChunk(ctx, idx, chunk)
		if err != nil {
			return c.fail(err)
		}

		cp.Stats.Merge(chunkStats)
		cp.CurrentChunkIndex = idx + 1
		if err := c.checkpoints.Save(cp); err != nil {
			return c.fail(fmt.Errorf("checkpoint persistence failed: %w", err))
		}

		c.updateSessionProgress()
		c.reporter.Progress(cp.Stats, total, idx+1, cp.TotalChunks, true)
		c.reporter.Chunk(idx+1, cp.TotalChunks, chunkStats)

		if idx+1 < cp.TotalChunks {
			c.waitBetweenChunks(ctx)
		}
	}

	return c.complete()
}

func startVerb(resumed bool) string {
	if resumed {
		return "resumed"
	}
	return "started"
}

// processChunk runs one chunk through the pool and writes passing records to
// the sink. Sink failures are session-fatal; task failures are counted.
func (c *Controller) processChunk(ctx context.Context, idx int, chunk []Source) (Stats, error) {
	cp := c.cp
	total := len(cp.Sources)
	base := cp.Stats

	results := c.pool.Run(ctx, chunk, PoolOptions{
		Workers:   cp.Config.Workers,
		Timeout:   cp.Config.TaskTimeout,
		Criteria:  cp.Config.Filter,
		Relocator: c.relocator,
		OnProcessed: func(done int) {
			running := base
			running.Processed += done
			c.reporter.Progress(running, total, idx+1, cp.TotalChunks, false)
		},
	})

	var stats Stats
	stats.Processed = len(results)
	for _, res := range results {
		switch {
		case res.Err != nil && res.ErrKind != ErrKindRelocation:
			stats.Errored++
			logger.Warn("Task failed (%s) for %s: %v", res.ErrKind, res.Source.Locator, res.Err)
		case !res.PassedFilter:
			stats.Filtered++
		default:
			// A failed relocation does not withhold the record from the output.
			if res.Err != nil {
				logger.Warn("Relocation failed for %s: %v", res.Source.Locator, res.Err)
			}
			if err := c.out.Append(res.Record); err != nil {
				return stats, fmt.Errorf("sink append failed: %w", err)
			}
			stats.Successful++
			if res.Relocated {
				stats.Relocated++
			}
		}
	}

	return stats, nil
}

// pollControl checks for a pending pause or stop request, plus host context
// cancellation. A stop exits with status interrupted, a pause with status
// paused; both persist the checkpoint first so the session stays resumable.
func (c *Controller) pollControl(ctx context.Context) (exit bool, err error) {
	if ctx.Err() != nil {
		return true, c.exitWith(StatusInterrupted, "host shutdown")
	}

	state, err := c.control.Get(c.cp.SessionID)
	if err != nil {
		// A transient read failure must not kill a running session.
		logger.Warn("Control signal read failed for session %s: %v", c.cp.SessionID, err)
		return false, nil
	}

	if state.Stop {
		return true, c.exitWith(StatusInterrupted, "stop requested")
	}
	if state.Paused {
		return true, c.exitWith(StatusPaused, "pause requested")
	}
	return false, nil
}

// exitWith is the shared pause/stop exit path: persist the checkpoint with
// pausedAt set, flip the session status, and emit the terminal event for this
// invocation.
func (c *Controller) exitWith(status SessionStatus, reason string) error {
	cp := c.cp
	now := time.Now()
	cp.PausedAt = &now

	if err := c.checkpoints.Save(cp); err != nil {
		return c.fail(fmt.Errorf("checkpoint persistence failed during %s: %w", status, err))
	}

	c.updateSessionProgress()
	if err := c.sessions.UpdateStatus(cp.SessionID, status, ""); err != nil {
		logger.Error("Failed to update session %s status to %s: %v", cp.SessionID, status, err)
	}
	c.sessions.Update(cp.SessionID, map[string]interface{}{"status_message": reason})

	if status == StatusPaused {
		c.reporter.Paused(cp.Stats, len(cp.Sources))
	} else {
		c.reporter.Shutdown(cp.Stats, len(cp.Sources), cp.CurrentChunkIndex)
	}

	logger.Info("Harvest session %s exited %s at chunk %d (%s)",
		cp.SessionID, status, cp.CurrentChunkIndex, reason)
	return nil
}

// waitBetweenChunks sleeps for the configured inter-chunk pause, polling the
// control signal at short intervals so a pause or stop request lands promptly
// instead of waiting out the full pause.
func (c *Controller) waitBetweenChunks(ctx context.Context) {
	pause := c.cp.Config.ChunkPause
	if pause <= 0 {
		return
	}
	poll := c.cp.Config.ControlPollEvery
	if poll <= 0 || poll > pause {
		poll = pause
	}

	deadline := time.Now().Add(pause)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		state, err := c.control.Get(c.cp.SessionID)
		if err == nil && (state.Stop || state.Paused) {
			// The next loop iteration's poll takes the exit path.
			return
		}

		remaining := time.Until(deadline)
		if remaining < poll {
			time.Sleep(remaining)
		} else {
			time.Sleep(poll)
		}
	}
}

// complete is the loop-exhaustion path: the checkpoint is deleted, the
// session becomes completed, and the final event carries cumulative stats.
func (c *Controller) complete() error {
	cp := c.cp

	if err := c.out.Close(); err != nil {
		return c.fail(fmt.Errorf("sink close failed: %w", err))
	}

	if err := c.checkpoints.Delete(cp.SessionID); err != nil {
		return c.fail(fmt.Errorf("checkpoint cleanup failed: %w", err))
	}
	c.control.Delete(cp.SessionID)

	c.updateSessionProgress()
	if err := c.sessions.UpdateStatus(cp.SessionID, StatusCompleted, ""); err != nil {
		logger.Error("Failed to mark session %s completed: %v", cp.SessionID, err)
	}

	c.reporter.Completed(cp.Stats, len(cp.Sources))
	logger.Info("Harvest session %s completed: %d processed, %d successful, %d errors, %d filtered, %d relocated",
		cp.SessionID, cp.Stats.Processed, cp.Stats.Successful, cp.Stats.Errored,
		cp.Stats.Filtered, cp.Stats.Relocated)
	return nil
}

// fail marks the session failed, keeping the checkpoint so the failure can be
// inspected or retried.
func (c *Controller) fail(cause error) error {
	cp := c.cp

	c.updateSessionProgress()
	if err := c.sessions.UpdateStatus(cp.SessionID, StatusFailed, cause.Error()); err != nil {
		logger.Error("Failed to mark session %s failed: %v", cp.SessionID, err)
	}

	c.reporter.Error(cause)
	logger.Error("Harvest session %s failed: %v", cp.SessionID, cause)
	return cause
}

// updateSessionProgress mirrors cumulative counters onto the externally
// queryable session row. Best effort; the checkpoint remains authoritative.
func (c *Controller) updateSessionProgress() {
	cp := c.cp
	total := len(cp.Sources)
	progress := 0.0
	if total > 0 {
		progress = float64(cp.Stats.Processed) / float64(total) * 100
	}

	err := c.sessions.Update(cp.SessionID, map[string]interface{}{
		"progress":   progress,
		"processed":  cp.Stats.Processed,
		"successful": cp.Stats.Successful,
		"errored":    cp.Stats.Errored,
		"filtered":   cp.Stats.Filtered,
		"relocated":  cp.Stats.Relocated,
	})
	if err != nil {
		logger.Warn("Failed to update session %s progress: %v", cp.SessionID, err)
	}
}
