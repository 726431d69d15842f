package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTradeCreated         EventType = "TRADE_CREATED"
	EventRiskLockoutTriggered EventType = "RISK_LOCKOUT_TRIGGERED"
	EventRiskLockoutCleared   EventType = "RISK_LOCKOUT_CLEARED"
	EventRiskSettingsUpdated  EventType = "RISK_SETTINGS_UPDATED"
	EventTradeRejected        EventType = "TRADE_REJECTED"
)

// Event represents a system event. UserID scopes the event to one account.
type Event struct {
	Type      EventType              `json:"type"`
	UserID    string                 `json:"-"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
	wg          sync.WaitGroup
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

// Publish sends an event to all subscribers. Subscribers run on their own goroutines.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	for _, sub := range eb.subscribers[event.Type] {
		eb.dispatch(sub, event)
	}
	for _, sub := range eb.allSubs {
		eb.dispatch(sub, event)
	}
}

func (eb *EventBus) dispatch(sub Subscriber, event Event) {
	eb.wg.Add(1)
	go func() {
		defer eb.wg.Done()
		sub(event)
	}()
}

// Wait blocks until every dispatched subscriber call has returned.
func (eb *EventBus) Wait() {
	eb.wg.Wait()
}

// PublishTradeCreated publishes a trade created event
func (eb *EventBus) PublishTradeCreated(userID, tradeID, symbol string, pnl *float64) {
	data := map[string]interface{}{
		"trade_id": tradeID,
		"symbol":   symbol,
	}
	if pnl != nil {
		data["pnl"] = *pnl
	}
	eb.Publish(Event{Type: EventTradeCreated, UserID: userID, Data: data})
}

// PublishTradeRejected publishes a rejected trade creation
func (eb *EventBus) PublishTradeRejected(userID, reason string) {
	eb.Publish(Event{
		Type:   EventTradeRejected,
		UserID: userID,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishLockoutTriggered publishes a guardrail lockout
func (eb *EventBus) PublishLockoutTriggered(userID, reason string, lockoutUntil time.Time) {
	eb.Publish(Event{
		Type:   EventRiskLockoutTriggered,
		UserID: userID,
		Data: map[string]interface{}{
			"reason":       reason,
			"lockoutUntil": lockoutUntil,
		},
	})
}

// PublishLockoutCleared publishes a lockout cleared by the user or by disabling guardrails
func (eb *EventBus) PublishLockoutCleared(userID, source string) {
	eb.Publish(Event{
		Type:   EventRiskLockoutCleared,
		UserID: userID,
		Data: map[string]interface{}{
			"source": source,
		},
	})
}

// PublishSettingsUpdated publishes a settings change
func (eb *EventBus) PublishSettingsUpdated(userID string, settings interface{}) {
	eb.Publish(Event{
		Type:   EventRiskSettingsUpdated,
		UserID: userID,
		Data: map[string]interface{}{
			"settings": settings,
		},
	})
}
