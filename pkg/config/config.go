// Package config loads the handful of environment variables this module's
// collaborators need. Local .env loading and production secret-store
// indirection are handled here so the HTTP collaborator (out of scope) and
// cmd/ledgerd only ever deal with a resolved Config.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gocloud.dev/secrets"
)

// Config holds the resolved runtime settings this module needs at boot.
type Config struct {
	DatabaseURL            string
	DatabaseMaxConnections int
	Host                   string
	Port                   int
	Environment            string
	RateLimitPerMinute     int
}

// IsProduction reports whether Environment is "production".
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads .env (if present, silently ignored if missing — this module
// may run in an environment where variables are already exported) and then
// the environment, applying this package's defaults.
// DATABASE_URL may itself be a gocloud.dev/secrets reference (e.g.
// "awskms://...", "hashivault://...") instead of a literal DSN; Load
// resolves it transparently so callers always receive a usable DSN.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	databaseURL, err := resolveDatabaseURL(ctx, requireEnv("DATABASE_URL"))
	if err != nil {
		return nil, err
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("config: missing required environment variable DATABASE_URL")
	}

	maxConns, err := envInt("DATABASE_MAX_CONNECTIONS", 10)
	if err != nil {
		return nil, err
	}
	port, err := envInt("PORT", 3000)
	if err != nil {
		return nil, err
	}
	rateLimit, err := envInt("RATE_LIMIT_PER_MINUTE", 100)
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabaseURL:            databaseURL,
		DatabaseMaxConnections: maxConns,
		Host:                   envString("HOST", "127.0.0.1"),
		Port:                   port,
		Environment:            envString("ENVIRONMENT", "development"),
		RateLimitPerMinute:     rateLimit,
	}, nil
}

// resolveDatabaseURL passes raw through unchanged unless it looks like a
// gocloud.dev/secrets keeper URL (scheme other than a plain DSN's), in
// which case it opens the keeper and decrypts to recover the real DSN.
func resolveDatabaseURL(ctx context.Context, raw string) (string, error) {
	if raw == "" || !looksLikeSecretsURL(raw) {
		return raw, nil
	}

	keeper, err := secrets.OpenKeeper(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("config: open secret keeper for DATABASE_URL: %w", err)
	}
	defer keeper.Close()

	plaintext, err := keeper.Decrypt(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("config: resolve DATABASE_URL secret: %w", err)
	}
	return string(plaintext), nil
}

var knownSecretSchemes = []string{
	"awskms://", "gcpkms://", "azurekeyvault://", "hashivault://", "base64key://", "secrets://",
}

func looksLikeSecretsURL(raw string) bool {
	for _, scheme := range knownSecretSchemes {
		if strings.HasPrefix(raw, scheme) {
			return true
		}
	}
	return false
}

func requireEnv(key string) string {
	return os.Getenv(key)
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid value for %s: %w", key, err)
	}
	return n, nil
}
