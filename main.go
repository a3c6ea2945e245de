package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"impulse-trading-bot/config"
	"impulse-trading-bot/internal/api"
	"impulse-trading-bot/internal/auth"
	"impulse-trading-bot/internal/bot"
	"impulse-trading-bot/internal/circuit"
	"impulse-trading-bot/internal/events"
	"impulse-trading-bot/internal/exchange"
	"impulse-trading-bot/internal/logging"
	"impulse-trading-bot/internal/metrics"
	"impulse-trading-bot/internal/notification"
	"impulse-trading-bot/internal/position"
	"impulse-trading-bot/internal/setup"
	"impulse-trading-bot/internal/store"
	"impulse-trading-bot/internal/vault"
)

func main() {
	// .env is optional and never overrides real environment variables
	godotenv.Load()

	configPath := flag.String("config", "", "path to the JSON config file")
	sampleConfig := flag.Bool("sample-config", false, "write config.json.example and exit")
	flag.Parse()

	if *sampleConfig {
		if err := config.GenerateSampleConfig("config.json.example"); err != nil {
			fmt.Fprintln(os.Stderr, "failed to write sample config:", err)
			os.Exit(1)
		}
		fmt.Println("Wrote config.json.example")
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:         cfg.Logging.Level,
		Output:        cfg.Logging.Output,
		JSONFormat:    !cfg.Logging.Pretty,
		IncludeCaller: cfg.Logging.IncludeCaller,
	})

	ctx := context.Background()

	// Vault secrets land before validation so a vaulted JWT secret counts
	if cfg.Vault.Enabled {
		applyVaultSecrets(ctx, cfg, logger)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger.Info().
		Strs("symbols", cfg.Bot.Symbols).
		Str("timeframe", cfg.Bot.Timeframe).
		Str("driver", cfg.Database.Driver).
		Bool("auto_trade", cfg.Bot.AutoTrade).
		Msg("Impulse trading bot starting")

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open the state store")
	}
	defer st.Close()

	var mirror *store.RedisMirror
	if cfg.Redis.Enabled {
		mirror = store.NewRedisMirror(ctx, store.RedisConfig{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		defer mirror.Close()
	}

	eventBus := events.NewEventBus()
	notifier := buildNotifier(cfg, logger)
	m := metrics.NewMetrics()

	ex := exchange.NewClient(exchange.Config{
		BaseURL:  cfg.Exchange.BaseURL,
		Timeout:  time.Duration(cfg.Exchange.TimeoutSecs) * time.Second,
		KlineTTL: time.Duration(cfg.Exchange.KlineTTLSecs) * time.Second,
		PriceTTL: time.Duration(cfg.Exchange.PriceTTLSecs) * time.Second,
	}, logger)

	setups := setup.NewEngine(cfg.Detection, logger)
	positions := position.NewEngine(cfg.Lifecycle, nil, logger)
	breaker := circuit.NewCircuitBreaker(&cfg.Breaker)

	tradingBot := bot.NewBot(cfg.Bot, ex, setups, positions, breaker, st, mirror, eventBus, notifier, m, logger)

	restoreCtx, cancelRestore := context.WithTimeout(ctx, 30*time.Second)
	err = tradingBot.Restore(restoreCtx)
	cancelRestore()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to restore persisted state")
	}

	var authService *auth.Service
	if cfg.Auth.Enabled {
		authService, err = buildAuthService(cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize authentication")
		}
		logger.Info().Str("username", cfg.Auth.AdminUsername).Msg("API authentication enabled")
	}

	server := api.NewServer(api.ServerConfig{
		Port:             cfg.Server.Port,
		Host:             cfg.Server.Host,
		AllowedOrigins:   splitOrigins(cfg.Server.AllowedOrigins),
		ProductionMode:   true,
		TLSEnabled:       cfg.Server.TLSEnabled,
		TLSCertFile:      cfg.Server.TLSCertFile,
		TLSKeyFile:       cfg.Server.TLSKeyFile,
		ReadTimeoutSecs:  cfg.Server.ReadTimeout,
		WriteTimeoutSecs: cfg.Server.WriteTimeout,
	}, st, mirror, setups, positions, breaker, tradingBot, eventBus, authService, m, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("API server failed")
		}
	}()

	if err := tradingBot.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start the bot")
	}

	logger.Info().
		Str("listen", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Msg("Bot is live")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API server shutdown error")
	}
	if err := tradingBot.Stop(); err != nil {
		logger.Error().Err(err).Msg("Bot stop error")
	}

	logger.Info().Msg("Shutdown complete")
}

// openStore selects the persistence backend from the configured driver.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, error) {
	if cfg.Database.Driver == "postgres" {
		return store.NewPostgresStore(ctx, store.PostgresConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
		}, logger)
	}
	return store.NewSQLiteStore(ctx, cfg.Database.SQLitePath, logger)
}

// buildNotifier assembles the configured chat providers. A disabled manager
// still absorbs sends, so callers never nil-check.
func buildNotifier(cfg *config.Config, logger zerolog.Logger) *notification.Manager {
	notifier := notification.NewManager()
	if !cfg.Notification.Enabled {
		notifier.SetEnabled(false)
		return notifier
	}
	if cfg.Notification.Telegram.Enabled {
		notifier.AddNotifier(notification.NewTelegramNotifier(cfg.Notification.Telegram))
		logger.Info().Msg("Telegram notifications enabled")
	}
	if cfg.Notification.Discord.Enabled {
		notifier.AddNotifier(notification.NewDiscordNotifier(cfg.Notification.Discord))
		logger.Info().Msg("Discord notifications enabled")
	}
	return notifier
}

// buildAuthService maps the auth configuration, hashing a plaintext bootstrap
// password from ADMIN_PASSWORD when no hash is configured.
func buildAuthService(cfg *config.Config, logger zerolog.Logger) (*auth.Service, error) {
	hash := cfg.Auth.AdminPasswordHash
	if hash == "" {
		plain := os.Getenv("ADMIN_PASSWORD")
		if plain == "" {
			return nil, fmt.Errorf("auth is enabled but neither ADMIN_PASSWORD_HASH nor ADMIN_PASSWORD is set")
		}
		pm := auth.NewPasswordManager(auth.DefaultBcryptCost, cfg.Auth.MinPasswordLength)
		if err := pm.ValidatePasswordStrength(plain); err != nil {
			return nil, fmt.Errorf("bootstrap admin password rejected: %w", err)
		}
		hashed, err := pm.HashPassword(plain)
		if err != nil {
			return nil, err
		}
		hash = hashed
		logger.Warn().Msg("Hashed ADMIN_PASSWORD at startup, set ADMIN_PASSWORD_HASH to skip this")
	}

	return auth.NewService(auth.Config{
		JWTSecret:         cfg.Auth.JWTSecret,
		TokenDuration:     cfg.Auth.TokenDuration,
		AdminUsername:     cfg.Auth.AdminUsername,
		AdminPasswordHash: hash,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
	}, logger)
}

// applyVaultSecrets overlays secret bundles from Vault onto the configuration.
// Missing bundles are not an error; the file and environment values stand.
func applyVaultSecrets(ctx context.Context, cfg *config.Config, logger zerolog.Logger) {
	client, err := vault.NewClient(cfg.Vault)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create the Vault client, continuing without it")
		return
	}
	if err := client.Health(ctx); err != nil {
		logger.Error().Err(err).Msg("Vault is unreachable, continuing without it")
		return
	}
	// Each bundle is read exactly once here, nothing re-reads them later.
	client.SetCacheEnabled(false)

	if bundle, err := client.GetSecret(ctx, vault.SecretAuth); err == nil {
		if v := bundle["jwt_secret"]; v != "" {
			cfg.Auth.JWTSecret = v
		}
		if v := bundle["admin_password_hash"]; v != "" {
			cfg.Auth.AdminPasswordHash = v
		}
		logger.Info().Msg("Auth secrets loaded from Vault")
	}
	if bundle, err := client.GetSecret(ctx, vault.SecretTelegram); err == nil {
		if v := bundle["bot_token"]; v != "" {
			cfg.Notification.Telegram.BotToken = v
		}
		if v := bundle["chat_id"]; v != "" {
			cfg.Notification.Telegram.ChatID = v
		}
		logger.Info().Msg("Telegram secrets loaded from Vault")
	}
	if bundle, err := client.GetSecret(ctx, vault.SecretDiscord); err == nil {
		if v := bundle["webhook_url"]; v != "" {
			cfg.Notification.Discord.WebhookURL = v
		}
		logger.Info().Msg("Discord secrets loaded from Vault")
	}
}

// splitOrigins parses the comma-separated origin list. Empty and "*" fall
// back to the server's development defaults.
func splitOrigins(s string) []string {
	if s == "" || s == "*" {
		return nil
	}
	var origins []string
	for _, part := range strings.Split(s, ",") {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
