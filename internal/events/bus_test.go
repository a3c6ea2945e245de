package events

import (
	"testing"
	"time"

	"impulse-trading-bot/internal/market"
	"impulse-trading-bot/internal/position"
	"impulse-trading-bot/internal/setup"
)

func waitFor(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Expected an event before the timeout")
		return Event{}
	}
}

func sampleSetup() setup.Setup {
	return setup.Setup{
		Symbol:         "BTCUSDT",
		Timeframe:      "1h",
		Direction:      market.Long,
		State:          setup.StateTriggered,
		Classification: setup.ClassificationImpulseReversal,
		OscValue:       27.5,
		StructureStop:  158.2,
	}
}

func samplePosition() position.Position {
	return position.Position{
		Key:           "BTCUSDT:1h:long",
		Symbol:        "BTCUSDT",
		Direction:     market.Long,
		Status:        position.StatusOpen,
		EntryPrice:    100,
		Margin:        1000,
		StopLossPrice: 98,
	}
}

// TestSubscribeReceivesMatchingType tests typed subscription delivery
func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewEventBus()
	got := make(chan Event, 1)

	bus.Subscribe(EventSetupCreated, func(ev Event) {
		got <- ev
	})

	bus.PublishSetupCreated(sampleSetup())

	ev := waitFor(t, got)
	if ev.Type != EventSetupCreated {
		t.Errorf("Expected SETUP_CREATED, got %s", ev.Type)
	}
	if ev.Data["key"] != "BTCUSDT:1h:long" {
		t.Errorf("Expected the setup key in the payload, got %v", ev.Data["key"])
	}
	snapshot, ok := ev.Data["setup"].(setup.Setup)
	if !ok {
		t.Fatalf("Expected the full setup snapshot in the payload, got %T", ev.Data["setup"])
	}
	if snapshot.OscValue != 27.5 || snapshot.State != setup.StateTriggered {
		t.Errorf("Expected the snapshot to carry engine state, got %+v", snapshot)
	}
	if ev.Timestamp.IsZero() {
		t.Error("Expected the bus to stamp the event")
	}
}

// TestSubscribeIgnoresOtherTypes tests that typed subscribers do not see
// unrelated events
func TestSubscribeIgnoresOtherTypes(t *testing.T) {
	bus := NewEventBus()
	got := make(chan Event, 1)

	bus.Subscribe(EventPositionClosed, func(ev Event) {
		got <- ev
	})

	retired := sampleSetup()
	retired.State = setup.StatePlayedOut
	retired.PlayedOutReason = setup.ReasonStructureBreak
	bus.PublishSetupRemoved(retired)

	select {
	case ev := <-got:
		t.Errorf("Expected no delivery, got %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestSubscribeAll tests the firehose subscription
func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	got := make(chan Event, 4)

	bus.SubscribeAll(func(ev Event) {
		got <- ev
	})

	bus.PublishPositionOpened(samplePosition())
	bus.PublishExitSignal("BTCUSDT:1h:long", "closed_trailing", 101.5)
	bus.PublishHalt(true, "max drawdown reached")

	seen := map[EventType]bool{}
	for i := 0; i < 3; i++ {
		seen[waitFor(t, got).Type] = true
	}
	for _, want := range []EventType{EventPositionOpened, EventExitSignal, EventTradingHalted} {
		if !seen[want] {
			t.Errorf("Expected %s to reach the all-subscriber", want)
		}
	}
}

// TestPositionClosedSnapshot tests that close events carry the settled entity
func TestPositionClosedSnapshot(t *testing.T) {
	bus := NewEventBus()
	got := make(chan Event, 1)

	bus.Subscribe(EventPositionClosed, func(ev Event) {
		got <- ev
	})

	p := samplePosition()
	p.Status = position.StatusClosed
	p.ExitPrice = 110
	p.RealizedPnL = 92.4
	p.ExitReason = position.ExitTrailing
	bus.PublishPositionClosed(p, 10092.4)

	ev := waitFor(t, got)
	if ev.Data["reason"] != "closed_trailing" {
		t.Errorf("Expected the exit reason in the payload, got %v", ev.Data["reason"])
	}
	if ev.Data["balance"] != 10092.4 {
		t.Errorf("Expected the post-settle balance, got %v", ev.Data["balance"])
	}
	snapshot, ok := ev.Data["position"].(position.Position)
	if !ok {
		t.Fatalf("Expected the full position snapshot, got %T", ev.Data["position"])
	}
	if snapshot.RealizedPnL != 92.4 || snapshot.Status != position.StatusClosed {
		t.Errorf("Expected the settled snapshot, got %+v", snapshot)
	}
}

// TestPublishErrorPayload tests error flattening into the payload
func TestPublishErrorPayload(t *testing.T) {
	bus := NewEventBus()
	got := make(chan Event, 1)

	bus.Subscribe(EventError, func(ev Event) {
		got <- ev
	})

	bus.PublishError("exchange", "kline fetch failed", errTest)

	ev := waitFor(t, got)
	if ev.Data["source"] != "exchange" {
		t.Errorf("Expected the source in the payload, got %v", ev.Data["source"])
	}
	if ev.Data["error"] != "boom" {
		t.Errorf("Expected the error string, got %v", ev.Data["error"])
	}
}

type testError string

func (e testError) Error() string { return string(e) }

var errTest = testError("boom")
