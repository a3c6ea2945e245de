package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"impulse-trading-bot/config"
	"impulse-trading-bot/internal/auth"
	"impulse-trading-bot/internal/vault"

	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()

	configPath := flag.String("config", "config.json", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	client, err := vault.NewClient(cfg.Vault)
	if err != nil {
		fmt.Printf("Failed to connect to Vault: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("========================================")
	fmt.Println(" Secrets Administration Tool")
	fmt.Println("========================================")
	if !client.IsEnabled() {
		fmt.Println("\nWARNING: Vault is disabled in config.")
		fmt.Println("Writes go to an in-memory stub and are lost on exit.")
	}

	reader := bufio.NewReader(os.Stdin)
	passwords := auth.NewPasswordManager(auth.DefaultBcryptCost, cfg.Auth.MinPasswordLength)

	for {
		fmt.Println("\nOptions:")
		fmt.Println("  1. Store auth secrets (JWT secret + admin password)")
		fmt.Println("  2. Store Telegram credentials")
		fmt.Println("  3. Store Discord webhook")
		fmt.Println("  4. Store exchange API credentials")
		fmt.Println("  5. Show a secret bundle")
		fmt.Println("  6. Delete a secret bundle")
		fmt.Println("  7. Vault health check")
		fmt.Println("  8. Exit")
		fmt.Print("\nSelect option: ")

		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		switch input {
		case "1":
			storeAuthSecrets(reader, client, passwords)
		case "2":
			storeTelegramSecrets(reader, client)
		case "3":
			storeDiscordSecrets(reader, client)
		case "4":
			storeExchangeSecrets(reader, client)
		case "5":
			showBundle(reader, client)
		case "6":
			deleteBundle(reader, client)
		case "7":
			healthCheck(client)
		case "8":
			fmt.Println("Goodbye!")
			os.Exit(0)
		default:
			fmt.Println("Invalid option")
		}
	}
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func storeAuthSecrets(reader *bufio.Reader, client *vault.Client, passwords *auth.PasswordManager) {
	fmt.Println("\n--- Store Auth Secrets ---")

	fmt.Print("Generate a random JWT secret? (y/n): ")
	var jwtSecret string
	if strings.ToLower(readLine(reader)) == "y" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			fmt.Printf("Failed to generate secret: %v\n", err)
			return
		}
		jwtSecret = hex.EncodeToString(buf)
		fmt.Printf("Generated JWT secret: %s\n", jwtSecret)
	} else {
		fmt.Print("Enter JWT secret: ")
		jwtSecret = readLine(reader)
		if len(jwtSecret) < 32 {
			fmt.Println("JWT secret must be at least 32 characters")
			return
		}
	}

	fmt.Print("Enter admin password (input is echoed): ")
	password := readLine(reader)
	if err := passwords.ValidatePasswordStrength(password); err != nil {
		fmt.Printf("Password rejected: %v\n", err)
		return
	}
	hash, err := passwords.HashPassword(password)
	if err != nil {
		fmt.Printf("Failed to hash password: %v\n", err)
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	err = client.StoreSecret(ctx, vault.SecretAuth, map[string]string{
		"jwt_secret":          jwtSecret,
		"admin_password_hash": hash,
	})
	if err != nil {
		fmt.Printf("Failed to store auth bundle: %v\n", err)
		return
	}

	fmt.Println("\n========================================")
	fmt.Println("  Auth bundle stored")
	fmt.Printf("  Password hash: %s\n", mask(hash))
	fmt.Printf("  Stored:        %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println("========================================")
}

func storeTelegramSecrets(reader *bufio.Reader, client *vault.Client) {
	fmt.Println("\n--- Store Telegram Credentials ---")

	fmt.Print("Bot token: ")
	botToken := readLine(reader)
	fmt.Print("Chat ID: ")
	chatID := readLine(reader)
	if botToken == "" || chatID == "" {
		fmt.Println("Both bot token and chat ID are required")
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	err := client.StoreSecret(ctx, vault.SecretTelegram, map[string]string{
		"bot_token": botToken,
		"chat_id":   chatID,
	})
	if err != nil {
		fmt.Printf("Failed to store telegram bundle: %v\n", err)
		return
	}
	fmt.Println("Telegram bundle stored")
}

func storeDiscordSecrets(reader *bufio.Reader, client *vault.Client) {
	fmt.Println("\n--- Store Discord Webhook ---")

	fmt.Print("Webhook URL: ")
	webhookURL := readLine(reader)
	if !strings.HasPrefix(webhookURL, "https://") {
		fmt.Println("Webhook URL must start with https://")
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	err := client.StoreSecret(ctx, vault.SecretDiscord, map[string]string{
		"webhook_url": webhookURL,
	})
	if err != nil {
		fmt.Printf("Failed to store discord bundle: %v\n", err)
		return
	}
	fmt.Println("Discord bundle stored")
}

func storeExchangeSecrets(reader *bufio.Reader, client *vault.Client) {
	fmt.Println("\n--- Store Exchange API Credentials ---")

	fmt.Print("API key: ")
	apiKey := readLine(reader)
	fmt.Print("Secret key: ")
	secretKey := readLine(reader)
	if apiKey == "" || secretKey == "" {
		fmt.Println("Both API key and secret key are required")
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	err := client.StoreExchangeCredentials(ctx, vault.ExchangeCredentials{
		APIKey:    apiKey,
		SecretKey: secretKey,
	})
	if err != nil {
		fmt.Printf("Failed to store exchange credentials: %v\n", err)
		return
	}
	fmt.Println("Exchange credentials stored")
}

func pickBundle(reader *bufio.Reader) string {
	fmt.Println("Bundles:")
	fmt.Println("  1. auth")
	fmt.Println("  2. telegram")
	fmt.Println("  3. discord")
	fmt.Println("  4. exchange")
	fmt.Print("Select bundle (1-4): ")

	switch readLine(reader) {
	case "1":
		return vault.SecretAuth
	case "2":
		return vault.SecretTelegram
	case "3":
		return vault.SecretDiscord
	case "4":
		return vault.SecretExchange
	default:
		fmt.Println("Invalid bundle")
		return ""
	}
}

func showBundle(reader *bufio.Reader, client *vault.Client) {
	fmt.Println("\n--- Show Secret Bundle ---")
	name := pickBundle(reader)
	if name == "" {
		return
	}

	// With Vault enabled, show what Vault holds rather than the cached copy
	// of an earlier write. In disabled mode the cache is the store itself.
	if client.IsEnabled() {
		client.ClearCache()
	}

	ctx, cancel := opCtx()
	defer cancel()
	bundle, err := client.GetSecret(ctx, name)
	if err != nil {
		fmt.Printf("Failed to read bundle %q: %v\n", name, err)
		return
	}
	if len(bundle) == 0 {
		fmt.Printf("Bundle %q is empty\n", name)
		return
	}

	fmt.Println("\n========================================")
	fmt.Printf("  Bundle: %s\n", name)
	for key, value := range bundle {
		fmt.Printf("  %-20s %s\n", key+":", mask(value))
	}
	fmt.Println("========================================")
}

func deleteBundle(reader *bufio.Reader, client *vault.Client) {
	fmt.Println("\n--- Delete Secret Bundle ---")
	name := pickBundle(reader)
	if name == "" {
		return
	}

	fmt.Printf("Really delete bundle %q? (y/n): ", name)
	if strings.ToLower(readLine(reader)) != "y" {
		fmt.Println("Aborted")
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	if err := client.DeleteSecret(ctx, name); err != nil {
		fmt.Printf("Failed to delete bundle %q: %v\n", name, err)
		return
	}
	fmt.Printf("Bundle %q deleted\n", name)
}

func healthCheck(client *vault.Client) {
	fmt.Println("\n--- Vault Health Check ---")

	ctx, cancel := opCtx()
	defer cancel()
	if err := client.Health(ctx); err != nil {
		fmt.Printf("Vault health: FAILED (%v)\n", err)
		return
	}
	fmt.Println("Vault health: OK")
}

// mask keeps a short recognizable prefix so operators can tell values apart
// without the full secret landing in a terminal scrollback.
func mask(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + strings.Repeat("*", 8) + value[len(value)-2:]
}
