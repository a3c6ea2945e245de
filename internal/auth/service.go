package auth

import (
	"crypto/subtle"
	"fmt"

	"github.com/rs/zerolog"
)

// Service authenticates the single operator account and issues tokens.
type Service struct {
	jwt       *JWTManager
	passwords *PasswordManager
	username  string
	hash      string
	logger    zerolog.Logger
}

// NewService creates the auth service. The password hash must be a bcrypt
// hash; use PasswordManager.HashPassword to produce one from a plaintext
// bootstrap password.
func NewService(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if cfg.AdminUsername == "" || cfg.AdminPasswordHash == "" {
		return nil, fmt.Errorf("admin credentials are required")
	}

	return &Service{
		jwt:       NewJWTManager(cfg.JWTSecret, cfg.TokenDuration),
		passwords: NewPasswordManager(DefaultBcryptCost, cfg.MinPasswordLength),
		username:  cfg.AdminUsername,
		hash:      cfg.AdminPasswordHash,
		logger:    logger.With().Str("component", "auth").Logger(),
	}, nil
}

// Login verifies the operator credentials and returns a token
func (s *Service) Login(req LoginRequest) (*LoginResponse, error) {
	usernameOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.username)) == 1
	passwordOK := s.passwords.VerifyPassword(req.Password, s.hash)
	if !usernameOK || !passwordOK {
		s.logger.Warn().Str("username", req.Username).Msg("Failed login attempt")
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateToken(OperatorClaims{Username: s.username, IsAdmin: true})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("username", s.username).Msg("Operator logged in")
	return &LoginResponse{
		AccessToken: token,
		ExpiresIn:   s.jwt.TokenDurationSeconds(),
		TokenType:   "Bearer",
	}, nil
}

// JWT exposes the token manager for middleware wiring
func (s *Service) JWT() *JWTManager {
	return s.jwt
}
