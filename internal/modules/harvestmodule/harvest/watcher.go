package harvest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mantonx/harvester/internal/events"
	"github.com/mantonx/harvester/internal/logger"
)

// LibraryWatcher watches a completed session's local root and announces
// newly arrived matching files on the event stream, so a caller knows a
// fresh harvest would find more work.
type LibraryWatcher struct {
	bus       events.EventBus
	sessionID string
	match     map[string]bool

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

func NewLibraryWatcher(bus events.EventBus, sessionID string, extensions []string) *LibraryWatcher {
	return &LibraryWatcher{
		bus:       bus,
		sessionID: sessionID,
		match:     extensionSet(extensions),
	}
}

// Watch starts watching root and its subdirectories. Returns an error only
// when the root itself cannot be watched; unreadable subdirectories are
// skipped.
func (w *LibraryWatcher) Watch(root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return fmt.Errorf("watcher already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != root {
			if err := watcher.Add(path); err != nil {
				logger.Debug("Cannot watch %s: %v", path, err)
			}
		}
		return nil
	})

	w.watcher = watcher
	go w.loop(watcher)

	logger.Info("Watching %s for new files", root)
	return nil
}

// Stop ends watching. Safe to call when not running.
func (w *LibraryWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
}

func (w *LibraryWatcher) loop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Watcher error: %v", err)
		}
	}
}

func (w *LibraryWatcher) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}

	// New directories get added to the watch set; new matching files get
	// announced.
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if err := watcher.Add(event.Name); err != nil {
			logger.Debug("Cannot watch %s: %v", event.Name, err)
		}
		return
	}

	if !matchesExtension(filepath.Base(event.Name), w.match) {
		return
	}

	if w.bus != nil {
		w.bus.PublishAsync(events.NewHarvestEvent(events.EventHarvestLog, w.sessionID,
			"New file detected", event.Name))
	}
}
