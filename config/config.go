// Package config loads the bot configuration from an optional JSON file and
// applies environment variable overrides on top. Environment values always
// win, so deployments can keep secrets out of the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"impulse-trading-bot/internal/circuit"
	"impulse-trading-bot/internal/notification"
	"impulse-trading-bot/internal/position"
	"impulse-trading-bot/internal/setup"
)

type Config struct {
	Bot          BotConfig                    `json:"bot"`
	Exchange     ExchangeConfig               `json:"exchange"`
	Detection    setup.DetectionConfig        `json:"detection"`
	Lifecycle    position.LifecycleConfig     `json:"lifecycle"`
	Breaker      circuit.CircuitBreakerConfig `json:"circuit_breaker"`
	Database     DatabaseConfig               `json:"database"`
	Redis        RedisConfig                  `json:"redis"`
	Server       ServerConfig                 `json:"server"`
	Auth         AuthConfig                   `json:"auth"`
	Vault        VaultConfig                  `json:"vault"`
	Notification NotificationConfig           `json:"notification"`
	Logging      LoggingConfig                `json:"logging"`
}

// BotConfig holds the orchestrator settings
type BotConfig struct {
	Symbols          []string `json:"symbols"`
	Timeframe        string   `json:"timeframe"`
	HTFTimeframe     string   `json:"htf_timeframe"`      // higher timeframe for trend confirmation
	ScanIntervalSecs int      `json:"scan_interval_secs"` // seconds between detection sweeps
	WorkerCount      int      `json:"worker_count"`       // concurrent symbol workers
	CandleLimit      int      `json:"candle_limit"`       // candles fetched per sweep
	AutoTrade        bool     `json:"auto_trade"`         // open positions on triggered setups
	TradeExhaustion  bool     `json:"trade_exhaustion"`   // also act on momentum_exhaustion setups
	MarginPerTrade   float64  `json:"margin_per_trade"`
	Leverage         float64  `json:"leverage"`
	TimeStopMinutes  int      `json:"time_stop_minutes"` // close stale positions, 0 disables
}

// ExchangeConfig holds market data client settings
type ExchangeConfig struct {
	BaseURL      string `json:"base_url"`
	TimeoutSecs  int    `json:"timeout_secs"`
	KlineTTLSecs int    `json:"kline_ttl_secs"`
	PriceTTLSecs int    `json:"price_ttl_secs"`
}

// DatabaseConfig holds persistence settings. Driver selects the backend.
type DatabaseConfig struct {
	Driver     string `json:"driver"` // "postgres" or "sqlite"
	Host       string `json:"host"`
	Port       int    `json:"port"`
	User       string `json:"user"`
	Password   string `json:"password"`
	Database   string `json:"database"`
	SSLMode    string `json:"ssl_mode"`
	SQLitePath string `json:"sqlite_path"`
}

// RedisConfig holds the live state mirror settings
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // comma-separated CORS origins, empty uses the dev defaults
	TLSEnabled      bool   `json:"tls_enabled"`
	TLSCertFile     string `json:"tls_cert_file"`
	TLSKeyFile      string `json:"tls_key_file"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// AuthConfig holds authentication configuration for the API
type AuthConfig struct {
	Enabled           bool          `json:"enabled"`
	JWTSecret         string        `json:"jwt_secret"`
	TokenDuration     time.Duration `json:"token_duration"`
	AdminUsername     string        `json:"admin_username"`
	AdminPasswordHash string        `json:"admin_password_hash"` // bcrypt hash
	MinPasswordLength int           `json:"min_password_length"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for bot secrets
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// NotificationConfig holds chat provider configuration
type NotificationConfig struct {
	Enabled  bool                        `json:"enabled"`
	Telegram notification.TelegramConfig `json:"telegram"`
	Discord  notification.DiscordConfig  `json:"discord"`
}

// LoggingConfig holds structured logging configuration
type LoggingConfig struct {
	Level         string `json:"level"`  // trace, debug, info, warn, error
	Output        string `json:"output"` // "stdout", "stderr", or a file path
	Pretty        bool   `json:"pretty"` // human-readable console output
	IncludeCaller bool   `json:"include_caller"`
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			Symbols:          []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT"},
			Timeframe:        "1h",
			HTFTimeframe:     "4h",
			ScanIntervalSecs: 60,
			WorkerCount:      4,
			CandleLimit:      120,
			AutoTrade:        false,
			TradeExhaustion:  false,
			MarginPerTrade:   1000,
			Leverage:         10,
			TimeStopMinutes:  0,
		},
		Exchange: ExchangeConfig{
			BaseURL:      "https://fapi.binance.com",
			TimeoutSecs:  10,
			KlineTTLSecs: 30,
			PriceTTLSecs: 3,
		},
		Detection: setup.DefaultDetectionConfig(),
		Lifecycle: position.DefaultLifecycleConfig(),
		Breaker:   *circuit.DefaultCircuitBreakerConfig(),
		Database: DatabaseConfig{
			Driver:     "sqlite",
			Host:       "localhost",
			Port:       5432,
			User:       "impulse_bot",
			Database:   "impulse_bot",
			SSLMode:    "disable",
			SQLitePath: "impulse_bot.db",
		},
		Redis: RedisConfig{
			Enabled: false,
			Address: "localhost:6379",
		},
		Server: ServerConfig{
			Port:            8088,
			Host:            "0.0.0.0",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		Auth: AuthConfig{
			Enabled:           false,
			TokenDuration:     24 * time.Hour,
			AdminUsername:     "admin",
			MinPasswordLength: 8,
		},
		Vault: VaultConfig{
			Enabled:    false,
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "impulse-bot",
		},
		Notification: NotificationConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			Pretty: false,
		},
	}
}

// Load reads the config file at path (empty means "config.json", which may be
// absent) and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = "config.json"
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Bot config
	if symbols := os.Getenv("BOT_SYMBOLS"); symbols != "" {
		parts := strings.Split(symbols, ",")
		cfg.Bot.Symbols = cfg.Bot.Symbols[:0]
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				cfg.Bot.Symbols = append(cfg.Bot.Symbols, strings.ToUpper(s))
			}
		}
	}
	cfg.Bot.Timeframe = getEnvOrDefault("BOT_TIMEFRAME", cfg.Bot.Timeframe)
	cfg.Bot.HTFTimeframe = getEnvOrDefault("BOT_HTF_TIMEFRAME", cfg.Bot.HTFTimeframe)
	cfg.Bot.ScanIntervalSecs = getEnvIntOrDefault("BOT_SCAN_INTERVAL", cfg.Bot.ScanIntervalSecs)
	cfg.Bot.WorkerCount = getEnvIntOrDefault("BOT_WORKER_COUNT", cfg.Bot.WorkerCount)
	cfg.Bot.AutoTrade = getEnvBoolOrDefault("BOT_AUTO_TRADE", cfg.Bot.AutoTrade)
	cfg.Bot.TradeExhaustion = getEnvBoolOrDefault("BOT_TRADE_EXHAUSTION", cfg.Bot.TradeExhaustion)
	cfg.Bot.MarginPerTrade = getEnvFloatOrDefault("BOT_MARGIN_PER_TRADE", cfg.Bot.MarginPerTrade)
	cfg.Bot.Leverage = getEnvFloatOrDefault("BOT_LEVERAGE", cfg.Bot.Leverage)
	cfg.Bot.TimeStopMinutes = getEnvIntOrDefault("BOT_TIME_STOP_MINUTES", cfg.Bot.TimeStopMinutes)

	// Exchange config
	cfg.Exchange.BaseURL = getEnvOrDefault("EXCHANGE_BASE_URL", cfg.Exchange.BaseURL)
	cfg.Exchange.TimeoutSecs = getEnvIntOrDefault("EXCHANGE_TIMEOUT_SECS", cfg.Exchange.TimeoutSecs)

	// Database config
	cfg.Database.Driver = getEnvOrDefault("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Host = getEnvOrDefault("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvIntOrDefault("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnvOrDefault("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnvOrDefault("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.SQLitePath = getEnvOrDefault("SQLITE_PATH", cfg.Database.SQLitePath)

	// Redis config
	cfg.Redis.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDR", cfg.Redis.Address)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvIntOrDefault("REDIS_DB", cfg.Redis.DB)

	// Server config
	cfg.Server.Port = getEnvIntOrDefault("WEB_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnvOrDefault("WEB_HOST", cfg.Server.Host)
	cfg.Server.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)
	cfg.Server.TLSEnabled = getEnvBoolOrDefault("SERVER_TLS_ENABLED", cfg.Server.TLSEnabled)
	cfg.Server.TLSCertFile = getEnvOrDefault("SERVER_TLS_CERT", cfg.Server.TLSCertFile)
	cfg.Server.TLSKeyFile = getEnvOrDefault("SERVER_TLS_KEY", cfg.Server.TLSKeyFile)
	cfg.Server.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	// Auth config
	cfg.Auth.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.TokenDuration = getEnvDurationOrDefault("AUTH_TOKEN_DURATION", cfg.Auth.TokenDuration)
	cfg.Auth.AdminUsername = getEnvOrDefault("ADMIN_USERNAME", cfg.Auth.AdminUsername)
	cfg.Auth.AdminPasswordHash = getEnvOrDefault("ADMIN_PASSWORD_HASH", cfg.Auth.AdminPasswordHash)

	// Vault config
	cfg.Vault.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.Vault.Enabled)
	cfg.Vault.Address = getEnvOrDefault("VAULT_ADDR", cfg.Vault.Address)
	cfg.Vault.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.Vault.MountPath)
	cfg.Vault.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.Vault.SecretPath)
	cfg.Vault.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.Vault.TLSEnabled)
	cfg.Vault.CACert = getEnvOrDefault("VAULT_CACERT", cfg.Vault.CACert)

	// Notification config
	cfg.Notification.Enabled = getEnvBoolOrDefault("NOTIFICATIONS_ENABLED", cfg.Notification.Enabled)
	cfg.Notification.Telegram.Enabled = getEnvBoolOrDefault("TELEGRAM_ENABLED", cfg.Notification.Telegram.Enabled)
	cfg.Notification.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.Notification.Telegram.BotToken)
	cfg.Notification.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.Notification.Telegram.ChatID)
	cfg.Notification.Discord.Enabled = getEnvBoolOrDefault("DISCORD_ENABLED", cfg.Notification.Discord.Enabled)
	cfg.Notification.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.Notification.Discord.WebhookURL)

	// Logging config
	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Output = getEnvOrDefault("LOG_OUTPUT", cfg.Logging.Output)
	cfg.Logging.Pretty = getEnvBoolOrDefault("LOG_PRETTY", cfg.Logging.Pretty)
	cfg.Logging.IncludeCaller = getEnvBoolOrDefault("LOG_INCLUDE_CALLER", cfg.Logging.IncludeCaller)
}

// Validate rejects configurations the bot cannot run with.
func (c *Config) Validate() error {
	if len(c.Bot.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if c.Bot.Timeframe == "" {
		return fmt.Errorf("timeframe is required")
	}
	if c.Bot.MarginPerTrade <= 0 {
		return fmt.Errorf("margin_per_trade must be positive")
	}
	if c.Bot.Leverage < 1 {
		return fmt.Errorf("leverage must be at least 1")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth is enabled but jwt_secret is empty")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes a starter configuration file.
func GenerateSampleConfig(filename string) error {
	cfg := Default()
	cfg.Bot.AutoTrade = false
	cfg.Notification.Telegram = notification.TelegramConfig{}
	cfg.Notification.Discord = notification.DiscordConfig{}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
