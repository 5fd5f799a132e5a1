package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventStateChanged         EventType = "STATE_CHANGED"
	EventLog                  EventType = "LOG"
	EventSignalGenerated      EventType = "SIGNAL_GENERATED"
	EventConfirmationPending  EventType = "CONFIRMATION_PENDING"
	EventConfirmationResolved EventType = "CONFIRMATION_RESOLVED"
	EventTradeOpened          EventType = "TRADE_OPENED"
	EventTradeClosed          EventType = "TRADE_CLOSED"
	EventStopMoved            EventType = "STOP_MOVED"
	EventPartialTakeProfit    EventType = "PARTIAL_TAKE_PROFIT"
	EventSettingsUpdated      EventType = "SETTINGS_UPDATED"
	EventError                EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Emitter is the fire-and-forget side of the bus
type Emitter interface {
	Publish(event Event)
}

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

var _ Emitter = (*EventBus)(nil)

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

// Publish sends an event to all subscribers. Delivery is asynchronous and
// unordered; slow subscribers never block the publisher.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishStateChanged announces that BotState was mutated
func (eb *EventBus) PublishStateChanged(reason string) {
	eb.Publish(Event{
		Type: EventStateChanged,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishLog mirrors an operator-facing log line onto the bus
func (eb *EventBus) PublishLog(level, symbol, message string) {
	eb.Publish(Event{
		Type: EventLog,
		Data: map[string]interface{}{
			"level":   level,
			"symbol":  symbol,
			"message": message,
		},
	})
}

// PublishSignal publishes a classified signal
func (eb *EventBus) PublishSignal(symbol, strategy string, score, conditionsMet int, price float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"symbol":         symbol,
			"strategy":       strategy,
			"score":          score,
			"conditions_met": conditionsMet,
			"price":          price,
		},
	})
}

// PublishConfirmation publishes a confirmation gate transition
func (eb *EventBus) PublishConfirmation(eventType EventType, symbol, outcome string) {
	eb.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"symbol":  symbol,
			"outcome": outcome,
		},
	})
}

// PublishTradeOpened publishes a trade opened event
func (eb *EventBus) PublishTradeOpened(id int64, symbol, strategy, profile string, entryPrice, quantity, stopLoss, takeProfit float64) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"id":          id,
			"symbol":      symbol,
			"strategy":    strategy,
			"profile":     profile,
			"entry_price": entryPrice,
			"quantity":    quantity,
			"stop_loss":   stopLoss,
			"take_profit": takeProfit,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(id int64, symbol, reason string, entryPrice, exitPrice, quantity, pnl, pnlPercent float64) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"id":          id,
			"symbol":      symbol,
			"reason":      reason,
			"entry_price": entryPrice,
			"exit_price":  exitPrice,
			"quantity":    quantity,
			"pnl":         pnl,
			"pnl_percent": pnlPercent,
		},
	})
}

// PublishStopMoved publishes a stop-loss adjustment
func (eb *EventBus) PublishStopMoved(id int64, symbol, reason string, oldStop, newStop float64) {
	eb.Publish(Event{
		Type: EventStopMoved,
		Data: map[string]interface{}{
			"id":       id,
			"symbol":   symbol,
			"reason":   reason,
			"old_stop": oldStop,
			"new_stop": newStop,
		},
	})
}

// PublishPartialTakeProfit publishes a partial scale-out
func (eb *EventBus) PublishPartialTakeProfit(id int64, symbol string, price, quantity, pnl float64) {
	eb.Publish(Event{
		Type: EventPartialTakeProfit,
		Data: map[string]interface{}{
			"id":       id,
			"symbol":   symbol,
			"price":    price,
			"quantity": quantity,
			"pnl":      pnl,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
