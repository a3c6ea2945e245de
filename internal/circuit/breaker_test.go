package circuit

import (
	"math"
	"strings"
	"testing"
)

// TestConsecutiveLossTrip tests the loss-streak trip and streak reset
func TestConsecutiveLossTrip(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.MaxConsecutiveLosses = 3
	cb := NewCircuitBreaker(cfg)

	cb.RecordTrade(-10)
	cb.RecordTrade(-10)
	if ok, _ := cb.CanTrade(); !ok {
		t.Fatal("Two losses must not trip a three-loss breaker")
	}

	cb.RecordTrade(5)
	cb.RecordTrade(-10)
	cb.RecordTrade(-10)
	if ok, _ := cb.CanTrade(); !ok {
		t.Fatal("A winner must reset the streak")
	}

	cb.RecordTrade(-10)
	if cb.GetState() != StateOpen {
		t.Errorf("Expected open after the third straight loss, got %s", cb.GetState())
	}
	ok, reason := cb.CanTrade()
	if ok {
		t.Error("Expected trading blocked while open")
	}
	if !strings.Contains(reason, "cooldown") {
		t.Errorf("Expected a cooldown reason, got %q", reason)
	}
}

// TestHalfOpenRecovery tests cooldown expiry and the closing winner
func TestHalfOpenRecovery(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.MaxConsecutiveLosses = 2
	cfg.CooldownMinutes = 0
	cb := NewCircuitBreaker(cfg)

	cb.RecordTrade(-5)
	cb.RecordTrade(-5)
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected open, got %s", cb.GetState())
	}

	// Zero cooldown expires immediately but the streak still blocks
	ok, reason := cb.CanTrade()
	if ok {
		t.Fatalf("Expected the loss streak to keep blocking, got %q", reason)
	}
	if cb.GetState() != StateHalfOpen {
		t.Errorf("Expected half_open after the cooldown, got %s", cb.GetState())
	}

	cb.RecordTrade(8)
	if cb.GetState() != StateClosed {
		t.Errorf("Expected a winner to close the breaker, got %s", cb.GetState())
	}
	if ok, _ := cb.CanTrade(); !ok {
		t.Error("Expected trading allowed after recovery")
	}
}

// TestDailyLossLimit tests the cumulative daily loss gate
func TestDailyLossLimit(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.MaxConsecutiveLosses = 100
	cfg.MaxLossPerHour = 1000
	cfg.MaxDailyLoss = 25
	cb := NewCircuitBreaker(cfg)

	cb.RecordTrade(-15)
	if ok, _ := cb.CanTrade(); !ok {
		t.Fatal("15 percent down must not hit a 25 percent daily limit")
	}
	cb.RecordTrade(-12)
	if cb.GetState() != StateOpen {
		t.Errorf("Expected the daily limit to trip, got %s", cb.GetState())
	}
}

// TestRateLimit tests the trades-per-minute gate
func TestRateLimit(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.MaxTradesPerMinute = 2
	cb := NewCircuitBreaker(cfg)

	cb.RecordTrade(1)
	cb.RecordTrade(1)
	ok, reason := cb.CanTrade()
	if ok {
		t.Error("Expected the rate limit to block")
	}
	if !strings.Contains(reason, "rate limit") {
		t.Errorf("Expected a rate limit reason, got %q", reason)
	}
}

// TestInvalidPnLIgnored tests the NaN/Inf guard
func TestInvalidPnLIgnored(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.MaxConsecutiveLosses = 1
	cb := NewCircuitBreaker(cfg)

	cb.RecordTrade(math.NaN())
	cb.RecordTrade(math.Inf(-1))
	if cb.GetState() != StateClosed {
		t.Errorf("Invalid returns must not move the breaker, got %s", cb.GetState())
	}
	if cb.GetStats()["daily_trades"] != 0 {
		t.Error("Invalid returns must not count as trades")
	}
}

// TestForceReset tests the manual reset path
func TestForceReset(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.MaxConsecutiveLosses = 1
	cb := NewCircuitBreaker(cfg)

	cb.RecordTrade(-5)
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected open, got %s", cb.GetState())
	}

	cb.ForceReset()
	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed after reset, got %s", cb.GetState())
	}
	if ok, _ := cb.CanTrade(); !ok {
		t.Error("Expected trading allowed after reset")
	}
}

// TestDisabledBreaker tests that a disabled breaker never blocks
func TestDisabledBreaker(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	cfg.Enabled = false
	cb := NewCircuitBreaker(cfg)

	for i := 0; i < 20; i++ {
		cb.RecordTrade(-50)
	}
	if ok, _ := cb.CanTrade(); !ok {
		t.Error("A disabled breaker must never block")
	}
}
