package harvest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mantonx/harvester/internal/database"
	"github.com/mantonx/harvester/internal/events"
	"github.com/mantonx/harvester/internal/extractor"
)

// MockEventBus implements events.EventBus for testing
type MockEventBus struct {
	events []events.Event
	mu     sync.RWMutex
}

func (m *MockEventBus) Publish(ctx context.Context, event events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventBus) PublishAsync(event events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventBus) Subscribe(ctx context.Context, filter events.EventFilter, handler events.EventHandler) (*events.Subscription, error) {
	return nil, nil
}

func (m *MockEventBus) Unsubscribe(subscriptionID string) error {
	return nil
}

func (m *MockEventBus) GetSubscriptions() []*events.Subscription {
	return nil
}

func (m *MockEventBus) GetEvents(filter events.EventFilter, limit, offset int) ([]events.Event, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]events.Event{}, m.events...), int64(len(m.events)), nil
}

func (m *MockEventBus) GetStats() events.EventStats {
	return events.EventStats{}
}

func (m *MockEventBus) ClearEvents(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	return nil
}

func (m *MockEventBus) Start(ctx context.Context) error { return nil }
func (m *MockEventBus) Stop(ctx context.Context) error  { return nil }
func (m *MockEventBus) Health() error                   { return nil }

// EventsOfType returns recorded events of the given type
func (m *MockEventBus) EventsOfType(t events.EventType) []events.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []events.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&database.HarvestSession{},
		&database.Checkpoint{},
		&database.ControlSignal{},
	)
	require.NoError(t, err)

	return db
}

// fakeExtractor produces deterministic records without touching any file.
// Locators registered in failures error out; timeouts block until the task
// context expires.
type fakeExtractor struct {
	mu       sync.Mutex
	failures map[string]error
	hangs    map[string]bool
	calls    int
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		failures: make(map[string]error),
		hangs:    make(map[string]bool),
	}
}

func (f *fakeExtractor) Extract(ctx context.Context, locator string, remote bool) (*extractor.Record, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failures[locator]
	hang := f.hangs[locator]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail != nil {
		return nil, fail
	}

	rec := extractor.NewRecord()
	rec.Set("filename", filepath.Base(locator))
	rec.Set("path", locator)
	rec.Set("extension", "jpg")
	rec.Set("fileSize", int64(1024))
	return rec, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// makeSources produces n synthetic local sources
func makeSources(n int) []Source {
	sources := make([]Source, n)
	for i := range sources {
		sources[i] = Source{
			Locator: fmt.Sprintf("/library/item-%04d.jpg", i),
			Kind:    SourceLocal,
		}
	}
	return sources
}

// createTestDirectory creates a temporary directory with test files
func createTestDirectory(t *testing.T, files []string) string {
	tempDir := t.TempDir()

	for _, file := range files {
		fullPath := filepath.Join(tempDir, file)
		err := os.MkdirAll(filepath.Dir(fullPath), 0755)
		require.NoError(t, err)

		err = os.WriteFile(fullPath, []byte("test data"), 0644)
		require.NoError(t, err)
	}

	return tempDir
}
