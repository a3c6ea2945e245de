package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"impulse-trading-bot/internal/auth"
	"impulse-trading-bot/internal/position"
	"impulse-trading-bot/internal/setup"

	"github.com/gin-gonic/gin"
)

// ============================================================================
// AUTH HANDLERS
// ============================================================================

// handleAuthStatus reports whether authentication is required.
func (s *Server) handleAuthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"auth_enabled": s.authEnabled,
	})
}

// handleLogin authenticates the operator and issues a JWT.
func (s *Server) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "INVALID_REQUEST",
			"message": "username and password are required",
		})
		return
	}

	resp, err := s.authService.Login(req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "INVALID_CREDENTIALS",
				"message": "invalid username or password",
			})
			return
		}
		errorResponse(c, http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ============================================================================
// BOT HANDLERS
// ============================================================================

// handleStatus returns the current bot status.
func (s *Server) handleStatus(c *gin.Context) {
	status := s.bot.Status()
	status["ws_clients"] = s.hub.ClientCount()
	successResponse(c, status)
}

// handleConfig returns the sanitized runtime configuration.
func (s *Server) handleConfig(c *gin.Context) {
	successResponse(c, s.bot.ConfigSummary())
}

// handleBotStart resumes scanning and trading.
func (s *Server) handleBotStart(c *gin.Context) {
	if err := s.bot.Start(); err != nil {
		errorResponse(c, http.StatusConflict, err.Error())
		return
	}
	successResponse(c, gin.H{"message": "Bot started"})
}

// handleBotStop pauses scanning and trading. Open positions stay managed
// until the process exits; this only halts new evaluation cycles.
func (s *Server) handleBotStop(c *gin.Context) {
	if err := s.bot.Stop(); err != nil {
		errorResponse(c, http.StatusConflict, err.Error())
		return
	}
	successResponse(c, gin.H{"message": "Bot stopped"})
}

// ============================================================================
// SETUP HANDLERS
// ============================================================================

// handleListSetups returns tracked setups, optionally filtered by symbol or
// narrowed to the actionable states.
func (s *Server) handleListSetups(c *gin.Context) {
	symbol := strings.ToUpper(c.Query("symbol"))
	actionableOnly := c.Query("actionable") == "true"

	all := s.setups.Active()
	out := make([]setup.Setup, 0, len(all))
	for i := range all {
		if symbol != "" && all[i].Symbol != symbol {
			continue
		}
		if actionableOnly && !all[i].Actionable() {
			continue
		}
		out = append(out, all[i])
	}

	successResponse(c, gin.H{
		"setups": out,
		"count":  len(out),
	})
}

// handleGetSetup returns a single setup by its symbol:timeframe:direction key.
func (s *Server) handleGetSetup(c *gin.Context) {
	key, err := setup.ParseKey(c.Param("key"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid setup key, expected symbol:timeframe:direction")
		return
	}

	st, ok := s.setups.Get(key)
	if !ok {
		errorResponse(c, http.StatusNotFound, "Setup not found")
		return
	}

	successResponse(c, st)
}

// ============================================================================
// POSITION HANDLERS
// ============================================================================

// handleListPositions returns all open positions.
func (s *Server) handleListPositions(c *gin.Context) {
	positions := s.positions.Active()
	successResponse(c, gin.H{
		"positions": positions,
		"count":     len(positions),
	})
}

// handleGetPosition returns a single open position by key.
func (s *Server) handleGetPosition(c *gin.Context) {
	p, ok := s.positions.Get(c.Param("key"))
	if !ok {
		errorResponse(c, http.StatusNotFound, "Position not found")
		return
	}
	successResponse(c, p)
}

// handleClosePosition closes an open position at the current market price.
func (s *Server) handleClosePosition(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		errorResponse(c, http.StatusBadRequest, "Position key is required")
		return
	}

	if err := s.bot.ClosePosition(key); err != nil {
		if errors.Is(err, position.ErrPositionNotFound) {
			errorResponse(c, http.StatusNotFound, "Position not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	successResponse(c, gin.H{"message": "Position closed", "key": key})
}

// partialCloseRequest is the body for POST /positions/:key/partial-close.
type partialCloseRequest struct {
	Fraction float64 `json:"fraction" binding:"required"`
}

// handlePartialClosePosition closes a fraction of an open position.
func (s *Server) handlePartialClosePosition(c *gin.Context) {
	key := c.Param("key")

	var req partialCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "fraction is required")
		return
	}
	if req.Fraction <= 0 || req.Fraction >= 1 {
		errorResponse(c, http.StatusBadRequest, "fraction must be between 0 and 1 exclusive")
		return
	}

	if err := s.bot.PartialClosePosition(key, req.Fraction); err != nil {
		switch {
		case errors.Is(err, position.ErrPositionNotFound):
			errorResponse(c, http.StatusNotFound, "Position not found")
		case errors.Is(err, position.ErrInvalidFraction):
			errorResponse(c, http.StatusBadRequest, err.Error())
		default:
			errorResponse(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	successResponse(c, gin.H{"message": "Partial close executed", "key": key, "fraction": req.Fraction})
}

// ============================================================================
// HISTORY & STATS HANDLERS
// ============================================================================

// handleHistory returns closed positions, most recent first.
func (s *Server) handleHistory(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 500 {
		limit = 500
	}

	closed, err := s.store.ClosedPositions(c.Request.Context(), limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to fetch trade history")
		return
	}

	successResponse(c, gin.H{
		"positions": closed,
		"count":     len(closed),
	})
}

// handleStats returns aggregate account and trade statistics.
func (s *Server) handleStats(c *gin.Context) {
	successResponse(c, s.positions.Stats())
}

// handleAccount returns the live account snapshot.
func (s *Server) handleAccount(c *gin.Context) {
	stats := s.positions.Stats()
	successResponse(c, gin.H{
		"balance":              stats.Balance,
		"peak_balance":         stats.PeakBalance,
		"max_drawdown_percent": stats.MaxDrawdownPercent,
		"open_positions":       stats.OpenPositions,
		"updated_at":           time.Now().UTC(),
	})
}

// handleBalanceHistory returns persisted balance rows, most recent first.
func (s *Server) handleBalanceHistory(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 500 {
		limit = 500
	}

	entries, err := s.store.BalanceHistory(c.Request.Context(), limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to fetch balance history")
		return
	}

	successResponse(c, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// ============================================================================
// CIRCUIT BREAKER HANDLERS
// ============================================================================

// handleBreakerStatus returns the circuit breaker state and counters.
func (s *Server) handleBreakerStatus(c *gin.Context) {
	successResponse(c, s.breaker.GetStats())
}

// handleBreakerReset force-resets a tripped breaker.
func (s *Server) handleBreakerReset(c *gin.Context) {
	s.breaker.ForceReset()
	successResponse(c, s.breaker.GetStats())
}
