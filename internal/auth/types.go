// Package auth guards the mutating API surface with a single operator
// account: bcrypt-verified login issuing short-lived JWTs. The bot stays
// single-tenant, so there is no user store to manage.
package auth

import (
	"time"
)

// OperatorClaims represents the JWT claims for the operator
type OperatorClaims struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // Seconds
	TokenType   string `json:"token_type"` // Always "Bearer"
}

// Config holds authentication configuration
type Config struct {
	JWTSecret         string        `json:"jwt_secret"`
	TokenDuration     time.Duration `json:"token_duration"`
	AdminUsername     string        `json:"admin_username"`
	AdminPasswordHash string        `json:"admin_password_hash"`
	MinPasswordLength int           `json:"min_password_length"`
}

// DefaultConfig returns default authentication configuration
func DefaultConfig() Config {
	return Config{
		JWTSecret:         "", // Must be set
		TokenDuration:     24 * time.Hour,
		AdminUsername:     "admin",
		MinPasswordLength: 8,
	}
}

// AuthError is a coded authentication error
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

// Common authentication errors
var (
	ErrInvalidCredentials = AuthError{Code: "INVALID_CREDENTIALS", Message: "invalid username or password"}
	ErrInvalidToken       = AuthError{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	ErrTokenExpired       = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrUnauthorized       = AuthError{Code: "UNAUTHORIZED", Message: "unauthorized access"}
	ErrForbidden          = AuthError{Code: "FORBIDDEN", Message: "access forbidden"}
	ErrWeakPassword       = AuthError{Code: "WEAK_PASSWORD", Message: "password does not meet requirements"}
)
