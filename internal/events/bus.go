package events

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// eventBus implements the EventBus interface
type eventBus struct {
	config EventBusConfig
	logger EventLogger

	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	eventChannel  chan Event
	running       bool
	stopCh        chan struct{}
	wg            sync.WaitGroup

	recentEvents []Event
	eventStats   EventStats
}

// NewEventBus creates a new event bus instance
func NewEventBus(config EventBusConfig, logger EventLogger) EventBus {
	if config.MaxRecentEvents <= 0 {
		config.MaxRecentEvents = DefaultEventBusConfig().MaxRecentEvents
	}
	return &eventBus{
		config:        config,
		logger:        logger,
		subscriptions: make(map[string]*Subscription),
		eventChannel:  make(chan Event, config.BufferSize),
		recentEvents:  make([]Event, 0, config.MaxRecentEvents),
		stopCh:        make(chan struct{}),
	}
}

// Start starts the event bus
func (eb *eventBus) Start(ctx context.Context) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.running {
		return fmt.Errorf("event bus is already running")
	}

	eb.running = true
	eb.stopCh = make(chan struct{})

	eb.wg.Add(1)
	go eb.processEvents(ctx)

	eb.logger.Info("Event bus started", "buffer_size", eb.config.BufferSize)
	return nil
}

// Stop stops the event bus gracefully
func (eb *eventBus) Stop(ctx context.Context) error {
	eb.mu.Lock()
	if !eb.running {
		eb.mu.Unlock()
		return nil
	}
	eb.running = false
	eb.mu.Unlock()

	close(eb.stopCh)
	close(eb.eventChannel)

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		eb.logger.Info("Event bus stopped gracefully")
	case <-ctx.Done():
		eb.logger.Warn("Event bus stop timed out")
		return ctx.Err()
	}

	return nil
}

// Publish publishes an event to the event bus
func (eb *eventBus) Publish(ctx context.Context, event Event) error {
	eb.mu.RLock()
	if !eb.running {
		eb.mu.RUnlock()
		return fmt.Errorf("event bus is not running")
	}
	eb.mu.RUnlock()

	event = eb.normalize(event)
	if err := eb.validateEvent(event); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	select {
	case eb.eventChannel <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		eb.logger.Warn("Event channel full, dropping event", "event_type", event.Type, "event_id", event.ID)
		return fmt.Errorf("event channel full")
	}
}

// PublishAsync publishes an event asynchronously (non-blocking)
func (eb *eventBus) PublishAsync(event Event) error {
	eb.mu.RLock()
	if !eb.running {
		eb.mu.RUnlock()
		return fmt.Errorf("event bus is not running")
	}
	eb.mu.RUnlock()

	event = eb.normalize(event)
	if err := eb.validateEvent(event); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	select {
	case eb.eventChannel <- event:
		return nil
	default:
		eb.logger.Warn("Event channel full, dropping event (async)", "event_type", event.Type, "event_id", event.ID)
		return fmt.Errorf("event channel full")
	}
}

// Subscribe subscribes to events matching the filter
func (eb *eventBus) Subscribe(ctx context.Context, filter EventFilter, handler EventHandler) (*Subscription, error) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subscription := &Subscription{
		ID:         eb.generateSubscriptionID(),
		Filter:     filter,
		Handler:    handler,
		Subscriber: "system",
		Created:    time.Now(),
	}

	eb.subscriptions[subscription.ID] = subscription

	eb.logger.Debug("New subscription created", "subscription_id", subscription.ID, "types", filter.Types)
	return subscription, nil
}

// Unsubscribe removes a subscription
func (eb *eventBus) Unsubscribe(subscriptionID string) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, exists := eb.subscriptions[subscriptionID]; !exists {
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}

	delete(eb.subscriptions, subscriptionID)
	eb.logger.Debug("Subscription removed", "subscription_id", subscriptionID)
	return nil
}

// GetSubscriptions returns all active subscriptions
func (eb *eventBus) GetSubscriptions() []*Subscription {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	subscriptions := make([]*Subscription, 0, len(eb.subscriptions))
	for _, sub := range eb.subscriptions {
		subscriptions = append(subscriptions, sub)
	}

	return subscriptions
}

// GetEvents returns buffered events based on filter and pagination
func (eb *eventBus) GetEvents(filter EventFilter, limit, offset int) ([]Event, int64, error) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	filtered := FilterEvents(eb.recentEvents, filter)

	total := int64(len(filtered))
	start := offset
	end := offset + limit

	if start >= len(filtered) {
		return []Event{}, total, nil
	}
	if end > len(filtered) {
		end = len(filtered)
	}

	return filtered[start:end], total, nil
}

// GetStats returns event bus statistics
func (eb *eventBus) GetStats() EventStats {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	stats := eb.eventStats
	stats.ActiveSubscriptions = len(eb.subscriptions)
	stats.RecentEvents = append([]Event{}, eb.recentEvents...)
	return stats
}

// ClearEvents removes all buffered events
func (eb *eventBus) ClearEvents(ctx context.Context) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.recentEvents = eb.recentEvents[:0]
	eb.eventStats = EventStats{
		EventsByType:   make(map[string]int64),
		EventsBySource: make(map[string]int64),
	}

	eb.logger.Info("All buffered events cleared")
	return nil
}

// Health returns the health status of the event bus
func (eb *eventBus) Health() error {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if !eb.running {
		return fmt.Errorf("event bus is not running")
	}

	channelUsage := float64(len(eb.eventChannel)) / float64(cap(eb.eventChannel))
	if channelUsage > 0.9 {
		return fmt.Errorf("event channel is %d%% full", int(channelUsage*100))
	}

	return nil
}

// Internal methods

func (eb *eventBus) normalize(event Event) Event {
	if event.ID == "" {
		event.ID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return event
}

// processEvents processes events from the channel
func (eb *eventBus) processEvents(ctx context.Context) {
	defer eb.wg.Done()

	for {
		select {
		case <-eb.stopCh:
			eb.logger.Debug("Event processor stopping")
			return
		case <-ctx.Done():
			eb.logger.Debug("Event processor stopping due to context cancellation")
			return
		case event, ok := <-eb.eventChannel:
			if !ok {
				eb.logger.Debug("Event channel closed")
				return
			}

			eb.handleEvent(event)
		}
	}
}

// handleEvent processes a single event
func (eb *eventBus) handleEvent(event Event) {
	eb.mu.Lock()
	eb.recentEvents = append(eb.recentEvents, event)
	if len(eb.recentEvents) > eb.config.MaxRecentEvents {
		eb.recentEvents = eb.recentEvents[1:]
	}

	eb.eventStats.TotalEvents++
	if eb.eventStats.EventsByType == nil {
		eb.eventStats.EventsByType = make(map[string]int64)
	}
	eb.eventStats.EventsByType[string(event.Type)]++

	if eb.eventStats.EventsBySource == nil {
		eb.eventStats.EventsBySource = make(map[string]int64)
	}
	eb.eventStats.EventsBySource[event.Source]++

	var matchingSubscriptions []*Subscription
	for _, sub := range eb.subscriptions {
		if MatchesFilter(event, sub.Filter) {
			matchingSubscriptions = append(matchingSubscriptions, sub)
		}
	}
	eb.mu.Unlock()

	for _, sub := range matchingSubscriptions {
		eb.notifySubscriber(sub, event)
	}
}

// notifySubscriber notifies a subscriber about an event
func (eb *eventBus) notifySubscriber(subscription *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("Panic in event handler", "subscription_id", subscription.ID, "error", r, "event_id", event.ID)
		}
	}()

	if err := subscription.Handler(event); err != nil {
		eb.logger.Error("Event handler error", "subscription_id", subscription.ID, "error", err, "event_id", event.ID)
		return
	}

	eb.mu.Lock()
	subscription.TriggerCount++
	now := time.Now()
	subscription.LastTriggered = &now
	eb.mu.Unlock()
}

// validateEvent validates an event
func (eb *eventBus) validateEvent(event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}

	if event.Source == "" {
		return fmt.Errorf("event source is required")
	}

	return nil
}

// generateEventID generates a unique event ID
func generateEventID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(bytes))
}

// generateSubscriptionID generates a unique subscription ID
func (eb *eventBus) generateSubscriptionID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return fmt.Sprintf("sub-%s", hex.EncodeToString(bytes))
}
