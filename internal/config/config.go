package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config holds all application configuration. It is built once in main and
// handed to the constructors that need it.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Storage
	Storage     string
	RedisURL    string
	RedisPass   string
	RedisDB     int
	DatabaseURL string

	// Ledger
	StartingBalance decimal.Decimal
	MaxBet          decimal.Decimal // zero means unlimited

	// PassimPay. PlatformID is a decimal integer; "0" means unset.
	PlatformID      string
	SecretKey       string
	GatewayURL      string
	CallbackURL     string
	Currency        string
	AddressLifetime int
	GatewayTimeout  time.Duration
	PaymentIDs      []int // empty accepts any positive id

	SuccessStatuses      []string
	CreditReportedAmount bool
}

// Default returns a configuration with the demo defaults and no secrets.
func Default() *Config {
	return &Config{
		Port:            "3001",
		Env:             "development",
		LogLevel:        "info",
		Storage:         StorageMemory,
		PlatformID:      "0",
		RedisURL:        "localhost:6379",
		StartingBalance: decimal.NewFromInt(100),
		GatewayURL:      "https://api.passimpay.io",
		Currency:        "USD",
		AddressLifetime: 3600,
		GatewayTimeout:  10 * time.Second,
		SuccessStatuses: []string{"success", "paid", "1"},
	}
}

// Load reads the configuration from environment variables on top of Default.
func Load() (*Config, error) {
	cfg := Default()

	setString(&cfg.Port, "PORT")
	setString(&cfg.Env, "ENV")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Storage, "STORAGE")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.RedisPass, "REDIS_PASSWORD")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.PlatformID, "PASSIMPAY_PLATFORM_ID")
	setString(&cfg.SecretKey, "PASSIMPAY_API_KEY")
	setString(&cfg.GatewayURL, "PASSIMPAY_URL")
	setString(&cfg.CallbackURL, "PASSIMPAY_CALLBACK_URL")
	setString(&cfg.Currency, "PASSIMPAY_CURRENCY")

	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		cfg.RedisDB = db
	}

	if v := os.Getenv("STARTING_BALANCE"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			return nil, fmt.Errorf("invalid STARTING_BALANCE %q", v)
		}
		cfg.StartingBalance = d.Round(2)
	}

	if v := os.Getenv("MAX_BET"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			return nil, fmt.Errorf("invalid MAX_BET %q", v)
		}
		cfg.MaxBet = d.Round(2)
	}

	if v := os.Getenv("PASSIMPAY_LIFETIME"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid PASSIMPAY_LIFETIME %q", v)
		}
		cfg.AddressLifetime = n
	}

	if v := os.Getenv("PASSIMPAY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid PASSIMPAY_TIMEOUT %q", v)
		}
		cfg.GatewayTimeout = d
	}

	if v := os.Getenv("PASSIMPAY_PAYMENT_IDS"); v != "" {
		ids, err := parseIntList(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PASSIMPAY_PAYMENT_IDS: %w", err)
		}
		cfg.PaymentIDs = ids
	}

	if v := os.Getenv("DEPOSIT_SUCCESS_STATUSES"); v != "" {
		cfg.SuccessStatuses = splitList(v)
	}

	if v := os.Getenv("DEPOSIT_CREDIT_REPORTED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DEPOSIT_CREDIT_REPORTED %q: %w", v, err)
		}
		cfg.CreditReportedAmount = b
	}

	cfg.PlatformID = normalizePlatformID(cfg.PlatformID)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants that Load cannot express per variable.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageRedis:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}

	if _, err := strconv.ParseUint(c.PlatformID, 10, 64); err != nil {
		return fmt.Errorf("PASSIMPAY_PLATFORM_ID must be numeric")
	}

	if c.Env == "production" && (c.PlatformID == "0" || c.SecretKey == "") {
		return fmt.Errorf("PASSIMPAY_PLATFORM_ID and PASSIMPAY_API_KEY are required in production")
	}

	if len(c.SuccessStatuses) == 0 {
		return fmt.Errorf("at least one deposit success status is required")
	}

	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// normalizePlatformID gives the id the single spelling used both in the
// platform_id JSON field and as the signature prefix.
func normalizePlatformID(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "0"
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return v
	}
	return strconv.FormatUint(n, 10)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIntList(v string) ([]int, error) {
	var out []int
	for _, part := range splitList(v) {
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("bad payment id %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}
