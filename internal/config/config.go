package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Outbound mail configuration
	Mail MailConfig

	// Personnel registry configuration
	Identity IdentityConfig

	// Verification decision configuration
	Verification VerificationConfig

	// Approval scheduler configuration
	Scheduler SchedulerConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
	BaseURL     string // public base URL used to build verification links
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret             string
	RefreshSecret      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// MailConfig holds outbound mail configuration
type MailConfig struct {
	Mode     string // "dev" logs messages instead of sending
	Host     string
	Port     string
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// IdentityConfig holds personnel registry client configuration
type IdentityConfig struct {
	Mode    string // "mock" or "production"
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// VerificationConfig holds identity verification decision configuration
type VerificationConfig struct {
	SimilarityThreshold int           // minimum name similarity score for auto-approval
	MaxAttempts         int           // retry budget for unavailable lookups
	RetryInterval       time.Duration // delay before a failed lookup is retried
	TokenTTL            time.Duration // verification token lifetime
	TrustedMode         bool          // score every lookup 100; non-production only
}

// SchedulerConfig holds approval scheduler configuration
type SchedulerConfig struct {
	BusinessHoursSpec string // cron spec for Mon-Fri business hours
	OffHoursSpec      string // cron spec for weekday nights
	WeekendSpec       string // cron spec for weekends
	Workers           int    // bounded worker pool size per pass
	BatchSize         int    // max registrations selected per pass
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", ""),
			RefreshSecret:      getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenExpiry:  time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
			RefreshTokenExpiry: time.Duration(getEnvAsInt("JWT_REFRESH_TOKEN_EXPIRY", 604800)) * time.Second,
		},
		Mail: MailConfig{
			Mode:     getEnv("MAIL_MODE", "dev"), // "dev" or "production"
			Host:     getEnv("MAIL_HOST", ""),
			Port:     getEnv("MAIL_PORT", "587"),
			Username: getEnv("MAIL_USERNAME", ""),
			Password: getEnv("MAIL_PASSWORD", ""),
			From:     getEnv("MAIL_FROM", "alumni@kenya-airways.com"),
			Timeout:  time.Duration(getEnvAsInt("MAIL_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Identity: IdentityConfig{
			Mode:    getEnv("IDENTITY_MODE", "mock"), // "mock" or "production"
			BaseURL: getEnv("IDENTITY_API_URL", ""),
			APIKey:  getEnv("IDENTITY_API_KEY", ""),
			Timeout: time.Duration(getEnvAsInt("IDENTITY_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Verification: VerificationConfig{
			SimilarityThreshold: getEnvAsInt("VERIFICATION_SIMILARITY_THRESHOLD", 80),
			MaxAttempts:         getEnvAsInt("VERIFICATION_MAX_ATTEMPTS", 5),
			RetryInterval:       time.Duration(getEnvAsInt("VERIFICATION_RETRY_MINUTES", 30)) * time.Minute,
			TokenTTL:            time.Duration(getEnvAsInt("VERIFICATION_TOKEN_TTL_DAYS", 30)) * 24 * time.Hour,
			TrustedMode:         getEnvAsBool("VERIFICATION_TRUSTED_MODE", false),
		},
		Scheduler: SchedulerConfig{
			// second minute hour day month weekday
			BusinessHoursSpec: getEnv("SCHEDULER_BUSINESS_HOURS_SPEC", "0 */5 8-17 * * 1-5"),
			OffHoursSpec:      getEnv("SCHEDULER_OFF_HOURS_SPEC", "0 0 0-7,18-23 * * 1-5"),
			WeekendSpec:       getEnv("SCHEDULER_WEEKEND_SPEC", "0 0 */3 * * 0,6"),
			Workers:           getEnvAsInt("SCHEDULER_WORKERS", 4),
			BatchSize:         getEnvAsInt("SCHEDULER_BATCH_SIZE", 100),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.JWT.RefreshSecret == "" {
		return fmt.Errorf("JWT_REFRESH_SECRET is required")
	}

	if c.Mail.Mode == "production" {
		if c.Mail.Host == "" {
			return fmt.Errorf("MAIL_HOST is required in production mail mode")
		}
		if c.Mail.From == "" {
			return fmt.Errorf("MAIL_FROM is required in production mail mode")
		}
	}

	if c.Identity.Mode == "production" && c.Identity.BaseURL == "" {
		return fmt.Errorf("IDENTITY_API_URL is required in production identity mode")
	}

	// Trusted mode bypasses name matching entirely; refuse it in production
	if c.Verification.TrustedMode && c.Server.Environment == "production" {
		return fmt.Errorf("VERIFICATION_TRUSTED_MODE must not be enabled in production")
	}

	if c.Verification.SimilarityThreshold < 0 || c.Verification.SimilarityThreshold > 100 {
		return fmt.Errorf("VERIFICATION_SIMILARITY_THRESHOLD must be between 0 and 100")
	}

	if c.Verification.MaxAttempts < 1 {
		return fmt.Errorf("VERIFICATION_MAX_ATTEMPTS must be at least 1")
	}

	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("SCHEDULER_WORKERS must be at least 1")
	}

	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}

	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: invalid boolean value for %s, using default %v", key, defaultValue)
		return defaultValue
	}

	return value
}

// getEnvAsSlice gets an environment variable as a comma-separated slice
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
