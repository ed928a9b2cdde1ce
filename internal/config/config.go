package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Security SecurityConfig
	Email    EmailConfig
	Identity IdentityConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

// SecurityConfig carries the tunables of the lockout engine, the captcha
// verifier, the reset-token service and the session lifecycle manager
type SecurityConfig struct {
	MaxLoginAttempts        int
	LockoutDurations        []time.Duration
	LockoutFailMode         string // "open" or "closed"
	SecurityRecordRetention time.Duration

	CaptchaGridSize      int
	CaptchaExpiry        time.Duration
	CaptchaRequiredAfter int

	ResetTokenExpiry time.Duration

	SessionIdleTimeout     time.Duration
	SessionPollInterval    time.Duration
	SessionValidateTimeout time.Duration

	CleanupInterval time.Duration
}

type EmailConfig struct {
	AWSRegion    string
	FromAddress  string
	ResetURLBase string
}

// IdentityConfig points at the upstream identity provider that owns
// credential storage
type IdentityConfig struct {
	BaseURL string
	Timeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	lockoutDurations, err := parseDurationList(getEnv("LOCKOUT_DURATIONS", "1m,10m,30m,1h,24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOCKOUT_DURATIONS: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatekeeper"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      env,
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Security: SecurityConfig{
			MaxLoginAttempts:        getEnvAsInt("MAX_LOGIN_ATTEMPTS", 3),
			LockoutDurations:        lockoutDurations,
			LockoutFailMode:         getEnv("LOCKOUT_FAIL_MODE", "open"),
			SecurityRecordRetention: getEnvAsDuration("SECURITY_RECORD_RETENTION", 30*24*time.Hour),
			CaptchaGridSize:         getEnvAsInt("CAPTCHA_GRID_SIZE", 3),
			CaptchaExpiry:           getEnvAsDuration("CAPTCHA_EXPIRY", 5*time.Minute),
			CaptchaRequiredAfter:    getEnvAsInt("CAPTCHA_REQUIRED_AFTER", 2),
			ResetTokenExpiry:        getEnvAsDuration("RESET_TOKEN_EXPIRY", 3*time.Minute),
			SessionIdleTimeout:      getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
			SessionPollInterval:     getEnvAsDuration("SESSION_POLL_INTERVAL", 30*time.Second),
			SessionValidateTimeout:  getEnvAsDuration("SESSION_VALIDATE_TIMEOUT", 5*time.Second),
			CleanupInterval:         getEnvAsDuration("CLEANUP_INTERVAL", 5*time.Minute),
		},
		Identity: IdentityConfig{
			BaseURL: getEnv("IDENTITY_PROVIDER_URL", "http://localhost:9000"),
			Timeout: getEnvAsDuration("IDENTITY_PROVIDER_TIMEOUT", 5*time.Second),
		},
		Email: EmailConfig{
			AWSRegion:    getEnv("AWS_SES_REGION", "us-east-1"),
			FromAddress:  getEnv("EMAIL_FROM_ADDRESS", "no-reply@localhost"),
			ResetURLBase: getEnv("RESET_URL_BASE", "http://localhost:3000"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateSecurity(&cfg.Security); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity rejects configurations that would neuter the lockout
// engine or make timers impossible to schedule
func validateSecurity(sec *SecurityConfig) error {
	if sec.MaxLoginAttempts < 1 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be at least 1 (got %d)", sec.MaxLoginAttempts)
	}
	if len(sec.LockoutDurations) == 0 {
		return fmt.Errorf("LOCKOUT_DURATIONS must contain at least one entry")
	}
	if sec.LockoutFailMode != "open" && sec.LockoutFailMode != "closed" {
		return fmt.Errorf("LOCKOUT_FAIL_MODE must be \"open\" or \"closed\" (got %q)", sec.LockoutFailMode)
	}
	if sec.CaptchaGridSize < 2 {
		return fmt.Errorf("CAPTCHA_GRID_SIZE must be at least 2 (got %d)", sec.CaptchaGridSize)
	}
	if sec.SessionPollInterval <= 0 {
		return fmt.Errorf("SESSION_POLL_INTERVAL must be positive")
	}
	if sec.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func parseDurationList(raw string) ([]time.Duration, error) {
	parts := strings.Split(raw, ",")
	durations := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if d <= 0 {
			return nil, fmt.Errorf("duration %q must be positive", part)
		}
		durations = append(durations, d)
	}
	return durations, nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
