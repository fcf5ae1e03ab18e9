package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventScanState      EventType = "SCAN_STATE"
	EventSymbolOutcome  EventType = "SYMBOL_OUTCOME"
	EventScanCompleted  EventType = "SCAN_COMPLETED"
	EventScanFailed     EventType = "SCAN_FAILED"
	EventNotification   EventType = "NOTIFICATION_SENT"
	EventCircuitBreaker EventType = "CIRCUIT_BREAKER_UPDATE"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	ScanID    string                 `json:"scan_id,omitempty"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Publisher is the publish side of the bus
type Publisher interface {
	Publish(event Event)
}

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking the scan
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishScanState publishes a run state transition
func (eb *EventBus) PublishScanState(scanID, state string) {
	eb.Publish(Event{
		Type:   EventScanState,
		ScanID: scanID,
		Data: map[string]interface{}{
			"state": state,
		},
	})
}

// PublishSymbolOutcome publishes the final state of one symbol
func (eb *EventBus) PublishSymbolOutcome(scanID string, rank int, symbol, state string, classifications []string) {
	eb.Publish(Event{
		Type:   EventSymbolOutcome,
		ScanID: scanID,
		Data: map[string]interface{}{
			"rank":            rank,
			"symbol":          symbol,
			"state":           state,
			"classifications": classifications,
		},
	})
}

// PublishScanCompleted publishes the bucket sizes of a finished run
func (eb *EventBus) PublishScanCompleted(scanID string, scanned int, counts map[string]int, duration time.Duration) {
	eb.Publish(Event{
		Type:   EventScanCompleted,
		ScanID: scanID,
		Data: map[string]interface{}{
			"scanned":     scanned,
			"counts":      counts,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// PublishScanFailed publishes a fatal run error
func (eb *EventBus) PublishScanFailed(scanID string, err error) {
	data := map[string]interface{}{}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{Type: EventScanFailed, ScanID: scanID, Data: data})
}

// PublishNotification publishes a delivery attempt
func (eb *EventBus) PublishNotification(scanID, provider string, err error) {
	data := map[string]interface{}{
		"provider":  provider,
		"delivered": err == nil,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{Type: EventNotification, ScanID: scanID, Data: data})
}

// SubscriberCount returns the number of registered subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	n := len(eb.allSubs)
	for _, subs := range eb.subscribers {
		n += len(subs)
	}
	return n
}
