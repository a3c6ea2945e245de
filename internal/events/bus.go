package events

import (
	"sync"
	"time"

	"impulse-trading-bot/internal/position"
	"impulse-trading-bot/internal/setup"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSetupCreated EventType = "SETUP_CREATED"
	EventSetupUpdated EventType = "SETUP_UPDATED"
	EventSetupRemoved EventType = "SETUP_REMOVED"

	EventPositionOpened    EventType = "POSITION_OPENED"
	EventPositionUpdate    EventType = "POSITION_UPDATE"
	EventPositionClosed    EventType = "POSITION_CLOSED"
	EventPartialClose      EventType = "PARTIAL_CLOSE"
	EventBreakevenLocked   EventType = "BREAKEVEN_LOCKED"
	EventTrailingActivated EventType = "TRAILING_ACTIVATED"
	EventTrailingAdvanced  EventType = "TRAILING_ADVANCED"
	EventExitSignal        EventType = "EXIT_SIGNAL"

	EventBalanceUpdate  EventType = "BALANCE_UPDATE"
	EventTradingHalted  EventType = "TRADING_HALTED"
	EventTradingResumed EventType = "TRADING_RESUMED"
	EventBotStarted     EventType = "BOT_STARTED"
	EventBotStopped     EventType = "BOT_STOPPED"
	EventError          EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
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

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSetupCreated publishes a setup created event carrying the full
// setup snapshot plus the summary fields quick consumers key on.
func (eb *EventBus) PublishSetupCreated(s setup.Setup) {
	eb.Publish(Event{
		Type: EventSetupCreated,
		Data: map[string]interface{}{
			"key":            s.Key().String(),
			"state":          string(s.State),
			"classification": string(s.Classification),
			"osc_value":      s.OscValue,
			"structure_stop": s.StructureStop,
			"setup":          s,
		},
	})
}

// PublishSetupUpdated publishes a setup updated event
func (eb *EventBus) PublishSetupUpdated(s setup.Setup) {
	eb.Publish(Event{
		Type: EventSetupUpdated,
		Data: map[string]interface{}{
			"key":       s.Key().String(),
			"state":     string(s.State),
			"tier":      s.Tier,
			"osc_value": s.OscValue,
			"setup":     s,
		},
	})
}

// PublishSetupRemoved publishes the final snapshot of a retired setup
func (eb *EventBus) PublishSetupRemoved(s setup.Setup) {
	eb.Publish(Event{
		Type: EventSetupRemoved,
		Data: map[string]interface{}{
			"key":    s.Key().String(),
			"reason": string(s.PlayedOutReason),
			"setup":  s,
		},
	})
}

// PublishPositionOpened publishes a position opened event
func (eb *EventBus) PublishPositionOpened(p position.Position) {
	eb.Publish(Event{
		Type: EventPositionOpened,
		Data: map[string]interface{}{
			"key":         p.Key,
			"symbol":      p.Symbol,
			"direction":   string(p.Direction),
			"entry_price": p.EntryPrice,
			"margin":      p.Margin,
			"stop_price":  p.StopLossPrice,
			"position":    p,
		},
	})
}

// PublishPositionClosed publishes the settled position and the balance after
// the settle.
func (eb *EventBus) PublishPositionClosed(p position.Position, balance float64) {
	eb.Publish(Event{
		Type: EventPositionClosed,
		Data: map[string]interface{}{
			"key":          p.Key,
			"symbol":       p.Symbol,
			"reason":       string(p.ExitReason),
			"exit_price":   p.ExitPrice,
			"realized_pnl": p.RealizedPnL,
			"balance":      balance,
			"position":     p,
		},
	})
}

// PublishPositionUpdate publishes the latest mark of an open position
func (eb *EventBus) PublishPositionUpdate(p position.Position) {
	eb.Publish(Event{
		Type: EventPositionUpdate,
		Data: map[string]interface{}{
			"key":            p.Key,
			"current_price":  p.CurrentPrice,
			"unrealized_pnl": p.UnrealizedPnL,
			"roi":            p.UnrealizedPnLPercent,
			"position":       p,
		},
	})
}

// PublishPartialClose publishes the surviving position after a partial close.
// realizedDelta is the net PnL realized by this partial alone.
func (eb *EventBus) PublishPartialClose(p position.Position, fraction, price, realizedDelta float64) {
	eb.Publish(Event{
		Type: EventPartialClose,
		Data: map[string]interface{}{
			"key":          p.Key,
			"fraction":     fraction,
			"price":        price,
			"realized_pnl": realizedDelta,
			"position":     p,
		},
	})
}

// PublishProtectiveNotice publishes a breakeven or trailing stop change
func (eb *EventBus) PublishProtectiveNotice(eventType EventType, p position.Position) {
	eb.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"key":         p.Key,
			"stop_price":  p.StopLossPrice,
			"trail_level": p.TrailLevel,
			"position":    p,
		},
	})
}

// PublishExitSignal publishes an exit condition hit
func (eb *EventBus) PublishExitSignal(key, reason string, price float64) {
	eb.Publish(Event{
		Type: EventExitSignal,
		Data: map[string]interface{}{
			"key":    key,
			"reason": reason,
			"price":  price,
		},
	})
}

// PublishBalanceUpdate publishes a balance update event
func (eb *EventBus) PublishBalanceUpdate(balance, peakBalance, maxDrawdown float64) {
	eb.Publish(Event{
		Type: EventBalanceUpdate,
		Data: map[string]interface{}{
			"balance":      balance,
			"peak_balance": peakBalance,
			"max_drawdown": maxDrawdown,
		},
	})
}

// PublishHalt publishes a trading halt state change
func (eb *EventBus) PublishHalt(halted bool, reason string) {
	eventType := EventTradingResumed
	if halted {
		eventType = EventTradingHalted
	}
	eb.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"reason": reason,
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
