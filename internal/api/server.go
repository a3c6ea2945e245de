// Package api exposes the bot over HTTP: a REST surface for state and
// control, a WebSocket feed mirroring the event bus, and the Prometheus
// scrape endpoint. All live state is read straight from the engines; the
// store is only consulted for closed-trade history.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"impulse-trading-bot/internal/auth"
	"impulse-trading-bot/internal/circuit"
	"impulse-trading-bot/internal/events"
	"impulse-trading-bot/internal/metrics"
	"impulse-trading-bot/internal/position"
	"impulse-trading-bot/internal/setup"
	"impulse-trading-bot/internal/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimiter provides simple in-memory rate limiting per key.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a rate limiter allowing limit requests per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// BotController is the control surface the orchestrator exposes to the API.
type BotController interface {
	Status() map[string]interface{}
	ConfigSummary() map[string]interface{}
	Start() error
	Stop() error
	IsRunning() bool
	ClosePosition(key string) error
	PartialClosePosition(key string, fraction float64) error
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port             int
	Host             string
	AllowedOrigins   []string
	ProductionMode   bool
	TLSEnabled       bool
	TLSCertFile      string
	TLSKeyFile       string
	ReadTimeoutSecs  int
	WriteTimeoutSecs int
}

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig

	store     store.Store
	mirror    *store.RedisMirror
	setups    *setup.Engine
	positions *position.Engine
	breaker   *circuit.CircuitBreaker
	bot       BotController

	authService *auth.Service
	authEnabled bool

	metrics *metrics.Metrics
	hub     *WSHub
	logger  zerolog.Logger

	loginLimiter *RateLimiter
	startedAt    time.Time
}

// NewServer creates the API server and wires the WebSocket hub to the event
// bus. mirror, authService and m may be nil when the respective feature is
// disabled.
func NewServer(
	config ServerConfig,
	st store.Store,
	mirror *store.RedisMirror,
	setups *setup.Engine,
	positions *position.Engine,
	breaker *circuit.CircuitBreaker,
	bot BotController,
	eventBus *events.EventBus,
	authService *auth.Service,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8088"}
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:       router,
		config:       config,
		store:        st,
		mirror:       mirror,
		setups:       setups,
		positions:    positions,
		breaker:      breaker,
		bot:          bot,
		authService:  authService,
		authEnabled:  authService != nil,
		metrics:      m,
		logger:       logger.With().Str("component", "api").Logger(),
		loginLimiter: NewRateLimiter(10, time.Minute),
		startedAt:    time.Now(),
	}

	router.Use(server.requestLogger())

	server.hub = NewWSHub(server.logger)
	if m != nil {
		server.hub.onCount = func(n int) { m.WSClients.Set(float64(n)) }
	}
	go server.hub.Run()
	if eventBus != nil {
		eventBus.SubscribeAll(func(event events.Event) {
			server.hub.BroadcastEvent(event)
		})
	}

	server.setupRoutes()

	return server
}

// requestLogger logs each request at debug, or warn for error statuses.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		evt := s.logger.Debug()
		if status >= http.StatusInternalServerError {
			evt = s.logger.Error()
		} else if status >= http.StatusBadRequest {
			evt = s.logger.Warn()
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

// loginRateLimit throttles login attempts per client IP.
func (s *Server) loginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.loginLimiter.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": "Too many login attempts. Please wait and try again.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	// Auth endpoints stay public; login is throttled per IP.
	s.router.GET("/api/v1/auth/status", s.handleAuthStatus)
	if s.authEnabled {
		s.router.POST("/api/v1/auth/login", s.loginRateLimit(), s.handleLogin)
	}

	api := s.router.Group("/api/v1")
	if s.authEnabled {
		api.Use(auth.Middleware(s.authService.JWT()))
	}
	{
		api.GET("/status", s.handleStatus)
		api.GET("/config", s.handleConfig)

		api.GET("/setups", s.handleListSetups)
		api.GET("/setups/:key", s.handleGetSetup)

		api.GET("/positions", s.handleListPositions)
		api.GET("/positions/:key", s.handleGetPosition)
		api.POST("/positions/:key/close", s.handleClosePosition)
		api.POST("/positions/:key/partial-close", s.handlePartialClosePosition)

		api.GET("/history", s.handleHistory)
		api.GET("/stats", s.handleStats)
		api.GET("/account", s.handleAccount)
		api.GET("/account/history", s.handleBalanceHistory)

		api.GET("/breaker", s.handleBreakerStatus)
		api.POST("/breaker/reset", s.handleBreakerReset)

		api.POST("/bot/start", s.handleBotStart)
		api.POST("/bot/stop", s.handleBotStop)
	}

	s.router.GET("/ws", s.handleWebSocket)
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	readTimeout := 15 * time.Second
	if s.config.ReadTimeoutSecs > 0 {
		readTimeout = time.Duration(s.config.ReadTimeoutSecs) * time.Second
	}
	writeTimeout := 15 * time.Second
	if s.config.WriteTimeoutSecs > 0 {
		writeTimeout = time.Duration(s.config.WriteTimeoutSecs) * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Bool("tls", s.config.TLSEnabled).Msg("Starting HTTP server")

	var err error
	if s.config.TLSEnabled {
		err = s.httpServer.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// handleHealth returns server health status.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	storeHealthy := true
	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			storeHealthy = false
		}
	}

	if !storeHealthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"store":  "unhealthy",
		})
		return
	}

	resp := gin.H{
		"status":  "healthy",
		"store":   "healthy",
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
		"running": s.bot != nil && s.bot.IsRunning(),
	}
	// The mirror is best-effort, a degraded mirror never fails the check.
	if s.mirror != nil {
		if err := s.mirror.CheckConnection(ctx); err != nil {
			resp["mirror"] = "degraded"
		} else {
			resp["mirror"] = "healthy"
		}
	}

	c.JSON(http.StatusOK, resp)
}

// errorResponse is a helper to send error responses.
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses.
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
