package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type silentLogger struct{}

func (silentLogger) Debug(msg string, fields ...interface{}) {}
func (silentLogger) Info(msg string, fields ...interface{})  {}
func (silentLogger) Warn(msg string, fields ...interface{})  {}
func (silentLogger) Error(msg string, fields ...interface{}) {}

func startBus(t *testing.T) EventBus {
	t.Helper()
	bus := NewEventBus(DefaultEventBusConfig(), silentLogger{})
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		bus.Stop(ctx)
	})
	return bus
}

func TestBusDeliversToMatchingSubscribers(t *testing.T) {
	bus := startBus(t)

	var mu sync.Mutex
	var got []Event
	done := make(chan struct{})

	filter := EventFilter{Types: []EventType{EventHarvestProgress}}
	sub, err := bus.Subscribe(context.Background(), filter, func(event Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, event)
		if len(got) == 2 {
			close(done)
		}
		return nil
	})
	require.NoError(t, err)
	defer bus.Unsubscribe(sub.ID)

	require.NoError(t, bus.PublishAsync(NewHarvestEvent(EventHarvestProgress, "s1", "p", "1")))
	require.NoError(t, bus.PublishAsync(NewHarvestEvent(EventHarvestLog, "s1", "log", "ignored")))
	require.NoError(t, bus.PublishAsync(NewHarvestEvent(EventHarvestProgress, "s1", "p", "2")))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for progress events")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	for _, e := range got {
		assert.Equal(t, EventHarvestProgress, e.Type)
		assert.Equal(t, "harvest:s1", e.Source)
	}
}

func TestBusRecentEventsFilterAndPagination(t *testing.T) {
	bus := startBus(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(context.Background(),
			NewHarvestEvent(EventHarvestChunk, "s1", "chunk", "x")))
	}
	require.NoError(t, bus.Publish(context.Background(),
		NewSystemEvent(EventSystemStarted, "up", "x")))

	// Publishing is asynchronous to the recent-events buffer.
	require.Eventually(t, func() bool {
		events, _, err := bus.GetEvents(EventFilter{}, 100, 0)
		return err == nil && len(events) == 6
	}, 2*time.Second, 10*time.Millisecond)

	chunks, total, err := bus.GetEvents(EventFilter{Types: []EventType{EventHarvestChunk}}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, chunks, 2)

	rest, _, err := bus.GetEvents(EventFilter{Types: []EventType{EventHarvestChunk}}, 10, 4)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestBusPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := startBus(t)

	_, err := bus.Subscribe(context.Background(), EventFilter{}, func(Event) error {
		panic("handler bug")
	})
	require.NoError(t, err)

	got := make(chan Event, 1)
	_, err = bus.Subscribe(context.Background(), EventFilter{}, func(e Event) error {
		select {
		case got <- e:
		default:
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.PublishAsync(NewSystemEvent(EventInfo, "ping", "x")))

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("second subscriber never notified")
	}
}

func TestBusRejectsInvalidEvent(t *testing.T) {
	bus := startBus(t)
	err := bus.Publish(context.Background(), Event{Source: "system"})
	assert.Error(t, err)
}
