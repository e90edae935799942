package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendSQL    = "sql"
	BackendRedis  = "redis"
	BackendMemory = "memory"

	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	// Modes in which missing secrets fall back to development values.
	ModeDebug = "debug"
	ModeTest  = "test"

	devSeedPassword = "password"
)

// Config holds everything main needs to wire the process.
type Config struct {
	Port    string
	GinMode string

	StoreBackend string
	DBDriver     string
	DBDSN        string
	RedisURL     string

	JWTSecret         string
	SeedAdminPassword string

	Gateway Gateway
}

// Gateway configures the Razorpay client.
type Gateway struct {
	KeyID       string
	KeySecret   string
	BaseURL     string
	Currency    string
	Timeout     time.Duration
	MaxAttempts int
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: os.Getenv("GIN_MODE"),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendSQL)),
		DBDriver:     strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBDSN:        getEnv("DB_DSN", "data/mess.db"),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		SeedAdminPassword: os.Getenv("SEED_ADMIN_PASSWORD"),

		Gateway: Gateway{
			KeyID:       os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret:   os.Getenv("RAZORPAY_KEY_SECRET"),
			BaseURL:     getEnv("RAZORPAY_API_URL", "https://api.razorpay.com"),
			Currency:    strings.ToUpper(getEnv("PAYMENT_CURRENCY", "INR")),
			Timeout:     getDuration("GATEWAY_TIMEOUT", 10*time.Second),
			MaxAttempts: getInt("GATEWAY_MAX_ATTEMPTS", 3),
		},
	}
}

// Validate refuses to run without JWT_SECRET and SEED_ADMIN_PASSWORD unless
// GIN_MODE is debug or test. There the seed password defaults to a
// development value and the JWT package keeps its development key.
func (c *Config) Validate() error {
	var missing []string
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.SeedAdminPassword == "" {
		missing = append(missing, "SEED_ADMIN_PASSWORD")
	}
	if len(missing) == 0 {
		return nil
	}
	if c.GinMode != ModeDebug && c.GinMode != ModeTest {
		return fmt.Errorf("%s must be set unless GIN_MODE is %s", strings.Join(missing, " and "), ModeDebug)
	}
	if c.SeedAdminPassword == "" {
		c.SeedAdminPassword = devSeedPassword
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
