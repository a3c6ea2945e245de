package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"impulse-trading-bot/internal/auth"
	"impulse-trading-bot/internal/circuit"
	"impulse-trading-bot/internal/events"
	"impulse-trading-bot/internal/market"
	"impulse-trading-bot/internal/position"
	"impulse-trading-bot/internal/setup"
	"impulse-trading-bot/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// stubBot records control calls without running a real orchestrator.
type stubBot struct {
	running     bool
	startErr    error
	stopErr     error
	closeErr    error
	partialErr  error
	closedKeys  []string
	partialKey  string
	partialFrac float64
}

func (b *stubBot) Status() map[string]interface{} {
	return map[string]interface{}{"running": b.running, "symbols": []string{"BTCUSDT", "ETHUSDT"}}
}

func (b *stubBot) ConfigSummary() map[string]interface{} {
	return map[string]interface{}{"timeframe": "1h", "auto_trade": false}
}

func (b *stubBot) Start() error {
	if b.startErr != nil {
		return b.startErr
	}
	b.running = true
	return nil
}

func (b *stubBot) Stop() error {
	if b.stopErr != nil {
		return b.stopErr
	}
	b.running = false
	return nil
}

func (b *stubBot) IsRunning() bool { return b.running }

func (b *stubBot) ClosePosition(key string) error {
	if b.closeErr != nil {
		return b.closeErr
	}
	b.closedKeys = append(b.closedKeys, key)
	return nil
}

func (b *stubBot) PartialClosePosition(key string, fraction float64) error {
	if b.partialErr != nil {
		return b.partialErr
	}
	b.partialKey = key
	b.partialFrac = fraction
	return nil
}

// stubStore satisfies store.Store with in-memory history.
type stubStore struct {
	closed   []position.Position
	balances []store.BalanceEntry
	pingErr  error
}

func (s *stubStore) SaveSetup(ctx context.Context, st setup.Setup) error { return nil }
func (s *stubStore) DeleteSetup(ctx context.Context, key string) error   { return nil }
func (s *stubStore) LoadSetups(ctx context.Context) ([]setup.Setup, error) {
	return nil, nil
}
func (s *stubStore) SavePosition(ctx context.Context, p position.Position) error { return nil }
func (s *stubStore) DeletePosition(ctx context.Context, key string) error        { return nil }
func (s *stubStore) LoadPositions(ctx context.Context) ([]position.Position, error) {
	return nil, nil
}
func (s *stubStore) RecordClosedPosition(ctx context.Context, p position.Position) error {
	s.closed = append(s.closed, p)
	return nil
}
func (s *stubStore) ClosedPositions(ctx context.Context, limit int) ([]position.Position, error) {
	if limit <= 0 || limit > len(s.closed) {
		limit = len(s.closed)
	}
	return s.closed[:limit], nil
}
func (s *stubStore) SaveAccount(ctx context.Context, a store.Account) error { return nil }
func (s *stubStore) LoadAccount(ctx context.Context) (store.Account, error) {
	return store.Account{}, store.ErrNotFound
}
func (s *stubStore) RecordBalance(ctx context.Context, e store.BalanceEntry) error {
	s.balances = append(s.balances, e)
	return nil
}
func (s *stubStore) BalanceHistory(ctx context.Context, limit int) ([]store.BalanceEntry, error) {
	if limit <= 0 || limit > len(s.balances) {
		limit = len(s.balances)
	}
	return s.balances[:limit], nil
}
func (s *stubStore) Ping(ctx context.Context) error { return s.pingErr }
func (s *stubStore) Close() {}

// newTestServer builds a server over stub dependencies.
func newTestServer(t *testing.T, authService *auth.Service) (*Server, *stubBot, *stubStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	setups := setup.NewEngine(setup.DefaultDetectionConfig(), zerolog.Nop())
	positions := position.NewEngine(position.DefaultLifecycleConfig(), nil, zerolog.Nop())
	breaker := circuit.NewCircuitBreaker(nil)
	bot := &stubBot{running: true}
	st := &stubStore{}

	srv := NewServer(
		ServerConfig{Port: 8088, ProductionMode: true},
		st, nil, setups, positions, breaker, bot,
		events.NewEventBus(), authService, nil, zerolog.Nop(),
	)
	return srv, bot, st
}

func doRequest(srv *Server, method, path, body, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Response is not valid JSON: %v", err)
	}
	return body
}

// TestHealthEndpoint tests the liveness endpoint against a healthy store.
func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	w := doRequest(srv, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got '%v'", body["status"])
	}
	if body["running"] != true {
		t.Errorf("Expected running true, got %v", body["running"])
	}
}

// TestHealthEndpointStoreDown tests the 503 path when the store fails.
func TestHealthEndpointStoreDown(t *testing.T) {
	srv, _, st := newTestServer(t, nil)
	st.pingErr = errors.New("connection refused")

	w := doRequest(srv, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", w.Code)
	}
}

// TestHealthEndpointMirrorDegraded tests that an unreachable mirror is
// reported without failing the check.
func TestHealthEndpointMirrorDegraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mirror := store.NewRedisMirror(context.Background(), store.RedisConfig{}, zerolog.Nop())
	srv := NewServer(
		ServerConfig{Port: 8088, ProductionMode: true},
		&stubStore{}, mirror,
		setup.NewEngine(setup.DefaultDetectionConfig(), zerolog.Nop()),
		position.NewEngine(position.DefaultLifecycleConfig(), nil, zerolog.Nop()),
		circuit.NewCircuitBreaker(nil), &stubBot{running: true},
		events.NewEventBus(), nil, nil, zerolog.Nop(),
	)

	w := doRequest(srv, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["mirror"] != "degraded" {
		t.Errorf("Expected mirror 'degraded', got '%v'", body["mirror"])
	}
}

// TestStatusEndpoint tests that bot status flows through with hub info.
func TestStatusEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	w := doRequest(srv, http.MethodGet, "/api/v1/status", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected data object, got %v", body["data"])
	}
	if data["running"] != true {
		t.Errorf("Expected running true, got %v", data["running"])
	}
	if _, ok := data["ws_clients"]; !ok {
		t.Error("Expected ws_clients field in status")
	}
}

// TestListSetups tests setup listing with symbol and actionable filters.
func TestListSetups(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	now := time.Now()
	srv.setups.Restore(setup.Setup{
		Symbol: "BTCUSDT", Timeframe: "1h", Direction: market.Long,
		State: setup.StateTriggered, Classification: setup.ClassificationImpulseReversal,
		DetectedAt: now, LastUpdatedAt: now,
	})
	srv.setups.Restore(setup.Setup{
		Symbol: "ETHUSDT", Timeframe: "4h", Direction: market.Short,
		State: setup.StateReversing, Classification: setup.ClassificationImpulseReversal,
		DetectedAt: now, LastUpdatedAt: now,
	})

	w := doRequest(srv, http.MethodGet, "/api/v1/setups", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["count"] != float64(2) {
		t.Errorf("Expected 2 setups, got %v", data["count"])
	}

	w = doRequest(srv, http.MethodGet, "/api/v1/setups?actionable=true", "", "")
	data = decodeBody(t, w)["data"].(map[string]interface{})
	if data["count"] != float64(1) {
		t.Errorf("Expected 1 actionable setup, got %v", data["count"])
	}

	w = doRequest(srv, http.MethodGet, "/api/v1/setups?symbol=ethusdt", "", "")
	data = decodeBody(t, w)["data"].(map[string]interface{})
	if data["count"] != float64(1) {
		t.Errorf("Expected 1 ETHUSDT setup, got %v", data["count"])
	}
}

// TestGetSetupByKey tests single-setup lookup and key validation.
func TestGetSetupByKey(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	now := time.Now()
	srv.setups.Restore(setup.Setup{
		Symbol: "BTCUSDT", Timeframe: "1h", Direction: market.Long,
		State: setup.StateTriggered, DetectedAt: now, LastUpdatedAt: now,
	})

	w := doRequest(srv, http.MethodGet, "/api/v1/setups/BTCUSDT:1h:long", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["symbol"] != "BTCUSDT" {
		t.Errorf("Expected symbol BTCUSDT, got %v", data["symbol"])
	}

	w = doRequest(srv, http.MethodGet, "/api/v1/setups/not-a-key", "", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed key, got %d", w.Code)
	}

	w = doRequest(srv, http.MethodGet, "/api/v1/setups/SOLUSDT:1h:short", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown key, got %d", w.Code)
	}
}

// TestPositionEndpoints tests listing and single lookup of open positions.
func TestPositionEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	_, err := srv.positions.Open(position.OpenRequest{
		Key: "BTCUSDT:1h:long", Symbol: "BTCUSDT", Timeframe: "1h",
		Direction: market.Long, Price: 100, Margin: 1000, Leverage: 10,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	w := doRequest(srv, http.MethodGet, "/api/v1/positions", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["count"] != float64(1) {
		t.Errorf("Expected 1 position, got %v", data["count"])
	}

	w = doRequest(srv, http.MethodGet, "/api/v1/positions/BTCUSDT:1h:long", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	w = doRequest(srv, http.MethodGet, "/api/v1/positions/ETHUSDT:1h:short", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

// TestClosePosition tests that close requests route to the bot.
func TestClosePosition(t *testing.T) {
	srv, bot, _ := newTestServer(t, nil)

	w := doRequest(srv, http.MethodPost, "/api/v1/positions/BTCUSDT:1h:long/close", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if len(bot.closedKeys) != 1 || bot.closedKeys[0] != "BTCUSDT:1h:long" {
		t.Errorf("Expected close call for BTCUSDT:1h:long, got %v", bot.closedKeys)
	}

	bot.closeErr = position.ErrPositionNotFound
	w = doRequest(srv, http.MethodPost, "/api/v1/positions/NOPE:1h:long/close", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

// TestPartialClose tests fraction validation and bot routing.
func TestPartialClose(t *testing.T) {
	srv, bot, _ := newTestServer(t, nil)
	path := "/api/v1/positions/BTCUSDT:1h:long/partial-close"

	w := doRequest(srv, http.MethodPost, path, "", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing body, got %d", w.Code)
	}

	w = doRequest(srv, http.MethodPost, path, `{"fraction": 1.5}`, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for fraction 1.5, got %d", w.Code)
	}

	w = doRequest(srv, http.MethodPost, path, `{"fraction": 0.5}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if bot.partialKey != "BTCUSDT:1h:long" || bot.partialFrac != 0.5 {
		t.Errorf("Expected partial close 0.5 for BTCUSDT:1h:long, got %s %f", bot.partialKey, bot.partialFrac)
	}
}

// TestHistoryEndpoint tests closed-trade history with limits.
func TestHistoryEndpoint(t *testing.T) {
	srv, _, st := newTestServer(t, nil)
	st.closed = []position.Position{
		{Key: "BTCUSDT:1h:long", Symbol: "BTCUSDT", Status: position.StatusClosed},
		{Key: "ETHUSDT:4h:short", Symbol: "ETHUSDT", Status: position.StatusClosed},
	}

	w := doRequest(srv, http.MethodGet, "/api/v1/history", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["count"] != float64(2) {
		t.Errorf("Expected 2 closed positions, got %v", data["count"])
	}

	w = doRequest(srv, http.MethodGet, "/api/v1/history?limit=1", "", "")
	data = decodeBody(t, w)["data"].(map[string]interface{})
	if data["count"] != float64(1) {
		t.Errorf("Expected 1 closed position with limit, got %v", data["count"])
	}
}

// TestBalanceHistoryEndpoint tests the balance history listing with limits.
func TestBalanceHistoryEndpoint(t *testing.T) {
	srv, _, st := newTestServer(t, nil)
	st.balances = []store.BalanceEntry{
		{Balance: 10150, PeakBalance: 10150, Change: 150, PositionKey: "BTCUSDT:1h:long", Reason: "closed_trailing"},
		{Balance: 10000, PeakBalance: 10000, Change: -80, PositionKey: "ETHUSDT:4h:short", Reason: "closed_sl"},
	}

	w := doRequest(srv, http.MethodGet, "/api/v1/account/history", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["count"] != float64(2) {
		t.Errorf("Expected 2 balance rows, got %v", data["count"])
	}

	entries, ok := data["entries"].([]interface{})
	if !ok || len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %v", data["entries"])
	}
	first := entries[0].(map[string]interface{})
	if first["change"] != float64(150) {
		t.Errorf("Expected change 150, got %v", first["change"])
	}

	w = doRequest(srv, http.MethodGet, "/api/v1/account/history?limit=1", "", "")
	data = decodeBody(t, w)["data"].(map[string]interface{})
	if data["count"] != float64(1) {
		t.Errorf("Expected 1 balance row with limit, got %v", data["count"])
	}
}

// TestStatsAndAccount tests the aggregate endpoints.
func TestStatsAndAccount(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	w := doRequest(srv, http.MethodGet, "/api/v1/stats", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["balance"] != float64(10000) {
		t.Errorf("Expected balance 10000, got %v", data["balance"])
	}

	w = doRequest(srv, http.MethodGet, "/api/v1/account", "", "")
	data = decodeBody(t, w)["data"].(map[string]interface{})
	if data["balance"] != float64(10000) {
		t.Errorf("Expected account balance 10000, got %v", data["balance"])
	}
}

// TestBreakerEndpoints tests breaker status and force reset.
func TestBreakerEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	w := doRequest(srv, http.MethodGet, "/api/v1/breaker", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["state"] != "closed" {
		t.Errorf("Expected breaker state closed, got %v", data["state"])
	}

	// Trip via consecutive losses, then reset through the API.
	for i := 0; i < 5; i++ {
		srv.breaker.RecordTrade(-10)
	}
	if srv.breaker.GetState() != circuit.StateOpen {
		t.Fatalf("Expected breaker open after losses, got %s", srv.breaker.GetState())
	}

	w = doRequest(srv, http.MethodPost, "/api/v1/breaker/reset", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if srv.breaker.GetState() != circuit.StateClosed {
		t.Errorf("Expected breaker closed after reset, got %s", srv.breaker.GetState())
	}
}

// TestBotControl tests start/stop plumbing and conflict mapping.
func TestBotControl(t *testing.T) {
	srv, bot, _ := newTestServer(t, nil)

	w := doRequest(srv, http.MethodPost, "/api/v1/bot/stop", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if bot.running {
		t.Error("Expected bot stopped")
	}

	bot.startErr = errors.New("already running")
	w = doRequest(srv, http.MethodPost, "/api/v1/bot/start", "", "")
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

// TestAuthProtectedRoutes tests that middleware guards the API group and a
// login issues a usable token.
func TestAuthProtectedRoutes(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("Sup3rSecret!"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	svc, err := auth.NewService(auth.Config{
		JWTSecret:         "0123456789abcdef0123456789abcdef",
		TokenDuration:     time.Hour,
		AdminUsername:     "operator",
		AdminPasswordHash: string(hash),
		MinPasswordLength: 8,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create auth service: %v", err)
	}

	srv, _, _ := newTestServer(t, svc)

	// Status endpoint reports auth is on.
	w := doRequest(srv, http.MethodGet, "/api/v1/auth/status", "", "")
	body := decodeBody(t, w)
	if body["auth_enabled"] != true {
		t.Errorf("Expected auth_enabled true, got %v", body["auth_enabled"])
	}

	// Protected route without a token.
	w = doRequest(srv, http.MethodGet, "/api/v1/status", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", w.Code)
	}

	// Wrong password.
	w = doRequest(srv, http.MethodPost, "/api/v1/auth/login", `{"username":"operator","password":"wrong"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401 for bad password, got %d", w.Code)
	}

	// Successful login.
	w = doRequest(srv, http.MethodPost, "/api/v1/auth/login", `{"username":"operator","password":"Sup3rSecret!"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var login auth.LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatalf("Failed to parse login response: %v", err)
	}
	if login.AccessToken == "" {
		t.Fatal("Expected non-empty access token")
	}

	// Token unlocks the protected route.
	w = doRequest(srv, http.MethodGet, "/api/v1/status", "", login.AccessToken)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 with token, got %d", w.Code)
	}
}

// TestLoginRateLimit tests the per-IP throttle on the login endpoint.
func TestLoginRateLimit(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("Expected request %d to be allowed", i+1)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Error("Expected 4th request to be blocked")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Error("Expected different key to be allowed")
	}
}
