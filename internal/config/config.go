package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Invitations   InvitationConfig
	Reminders     ReminderConfig
	Provisioner   ProvisionerConfig
	Notifier      NotifierConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// InvitationConfig holds invitation token policy
type InvitationConfig struct {
	AdminTTL     time.Duration
	MemberTTL    time.Duration
	SetupBaseURL string
}

// ReminderConfig holds the reminder escalation policy
type ReminderConfig struct {
	FirstAfter   time.Duration
	SecondAfter  time.Duration
	FinalWindow  time.Duration
	Interval     time.Duration
	InitialDelay time.Duration
}

// ProvisionerConfig holds the external resource provisioner endpoint
type ProvisionerConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NotifierConfig holds the notification gateway endpoint
type NotifierConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// AuthConfig holds operator API authentication
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Argon2Memory      uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8
	Argon2SaltLength  uint32
	Argon2KeyLength   uint32
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "openagency"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "openagency"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: parseInt("DB_MAX_IDLE_CONNS", 5),
		},
		Invitations: InvitationConfig{
			AdminTTL:     parseDuration("INVITE_ADMIN_TTL", "48h"),
			MemberTTL:    parseDuration("INVITE_MEMBER_TTL", "168h"),
			SetupBaseURL: getEnv("INVITE_SETUP_BASE_URL", "https://app.openagency.test/setup"),
		},
		Reminders: ReminderConfig{
			FirstAfter:   parseDuration("REMINDER_FIRST_AFTER", "24h"),
			SecondAfter:  parseDuration("REMINDER_SECOND_AFTER", "72h"),
			FinalWindow:  parseDuration("REMINDER_FINAL_WINDOW", "24h"),
			Interval:     parseDuration("REMINDER_INTERVAL", "6h"),
			InitialDelay: parseDuration("REMINDER_INITIAL_DELAY", "30s"),
		},
		Provisioner: ProvisionerConfig{
			BaseURL: getEnv("PROVISIONER_BASE_URL", "http://localhost:9090"),
			Timeout: parseDuration("PROVISIONER_TIMEOUT", "10s"),
		},
		Notifier: NotifierConfig{
			Endpoint: getEnv("NOTIFIER_ENDPOINT", ""),
			Timeout:  parseDuration("NOTIFIER_TIMEOUT", "10s"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("OPERATOR_JWT_SECRET", ""),
			Issuer:    getEnv("OPERATOR_JWT_ISSUER", "openagency"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "openagency"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		Security: SecurityConfig{
			Argon2Memory:      uint32(parseInt("ARGON2_MEMORY", 65536)),
			Argon2Iterations:  uint32(parseInt("ARGON2_ITERATIONS", 3)),
			Argon2Parallelism: uint8(parseInt("ARGON2_PARALLELISM", 4)),
			Argon2SaltLength:  uint32(parseInt("ARGON2_SALT_LENGTH", 16)),
			Argon2KeyLength:   uint32(parseInt("ARGON2_KEY_LENGTH", 32)),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", 10)),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("OPERATOR_JWT_SECRET is required")
	}
	if c.Notifier.Endpoint == "" {
		return fmt.Errorf("NOTIFIER_ENDPOINT is required")
	}
	if c.Invitations.AdminTTL <= 0 || c.Invitations.MemberTTL <= 0 {
		return fmt.Errorf("invitation TTLs must be positive")
	}
	if c.Reminders.Interval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL must be positive")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
