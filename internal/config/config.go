// Package config loads the relay's process configuration from a .env file
// and the environment.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every environment-tunable knob the relay reads at startup.
type Config struct {
	Environment             string
	Port                    string
	LogLevel                string
	JWTSecret               string
	StoragePath             string
	MetricsPath             string
	AuditLogPath            string
	IPAllowlist             []string
	BreakerFailureThreshold int
	BreakerCooldownSeconds  int
	OperatorMnemonic        string
	AnimationStyle          string
	DefaultNetwork          string
}

// Load reads .env (if present — a missing file is not an error, since
// production injects real environment variables) and maps known keys into a
// Config, applying defaults for any variable that is unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		Environment:  getEnvDefault("RUST_ENV", "development"),
		Port:         getEnvDefault("PORT", "4000"),
		LogLevel:     getEnvDefault("LOG_LEVEL", "info"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		StoragePath:  getEnvDefault("WALLET_CORE_STORAGE_PATH", "./data/transactions.json"),
		MetricsPath:  getEnvDefault("WALLET_CORE_METRICS_PATH", "./data/metrics.json"),
		AuditLogPath: getEnvDefault("WALLET_CORE_AUDIT_LOG_PATH", "./data/audit.log"),

		OperatorMnemonic: os.Getenv("WALLET_CORE_OPERATOR_MNEMONIC"),
		AnimationStyle:   os.Getenv("ANIMATION_STYLE"),
		DefaultNetwork:   os.Getenv("WALLET_CORE_DEFAULT_NETWORK"),
	}

	if raw := os.Getenv("WALLET_CORE_IP_ALLOWLIST"); raw != "" {
		for _, entry := range strings.Split(raw, ",") {
			if e := strings.TrimSpace(entry); e != "" {
				cfg.IPAllowlist = append(cfg.IPAllowlist, e)
			}
		}
	}

	cfg.BreakerFailureThreshold = getEnvInt("WALLET_CORE_BREAKER_FAILURE_THRESHOLD", 5)
	cfg.BreakerCooldownSeconds = getEnvInt("WALLET_CORE_BREAKER_COOLDOWN_SECONDS", 30)

	if cfg.JWTSecret == "" {
		if cfg.Environment == "production" {
			return nil, fmt.Errorf("JWT_SECRET must be set when RUST_ENV=production")
		}
		secret, err := generateDevSecret()
		if err != nil {
			return nil, fmt.Errorf("generating development JWT_SECRET: %w", err)
		}
		cfg.JWTSecret = secret
		fmt.Fprintf(os.Stderr, "JWT_SECRET not set; generated a development secret for this run only: %s\n", secret)
		logrus.Warn("JWT_SECRET not set: generated a one-shot development secret; set JWT_SECRET to persist sessions across restarts")
	}

	return cfg, nil
}

// generateDevSecret produces a 512-bit hex-encoded secret for local
// development runs where no JWT_SECRET is configured. It is never
// persisted; restarting the process without setting JWT_SECRET invalidates
// every token issued under the previous run's generated secret.
func generateDevSecret() (string, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
