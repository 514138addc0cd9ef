package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Search   SearchConfig
	Timeouts TimeoutConfig
	Logging  LoggingConfig
	LLM      LLMConfig
	OpenAI   OpenAIConfig
	Gemini   GeminiConfig
	Geocoder GeocoderConfig
	Redis    RedisConfig
	Bot      BotConfig
}

// DBType selects the SQL backend
type DBType string

const (
	DBTypePostgreSQL DBType = "postgres"
	DBTypeMemory     DBType = "memory"
)

// DatabaseConfig holds ride database configuration
type DatabaseConfig struct {
	Type               DBType
	DSN                string // full connection string, takes precedence over the parts
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port             int
	Host             string
	GinMode          string
	AllowedOrigins   string
	RateLimitPerMin  float64
	RateLimitBurst   int
	ShutdownDeadline time.Duration
}

// SearchConfig holds ride search defaults
type SearchConfig struct {
	DefaultLimit    int
	MaxLimit        int
	DefaultRadiusKm float64
	RelaxedRadiusKm float64
	UpstreamCap     int
	Timezone        string
}

// TimeoutConfig bounds every external call made while interpreting a message
type TimeoutConfig struct {
	ExternalCall   time.Duration
	Interpretation time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LLMConfig selects the language-understanding provider
type LLMConfig struct {
	Provider string // openai | gemini
}

// OpenAIConfig holds OpenAI-compatible API configuration
type OpenAIConfig struct {
	APIKey          string
	APIBase         string
	ChatModel       string
	ChatTemperature float64
	ChatTopP        float64
	ChatMaxTokens   int
	ChatExtraBody   string // JSON string for extra_body
	EmbeddingModel  string
	EmbeddingDims   int
	BatchSize       int
	Timeout         int
	Enabled         bool
}

// GeminiConfig holds Google GenAI configuration
type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string // optional API endpoint override
	Temperature float64
	MaxTokens   int
	Enabled     bool
}

// GeocoderConfig holds geocoding provider configuration
type GeocoderConfig struct {
	Provider         string // nominatim | gazetteer
	BaseURL          string
	UserAgent        string
	CountryCodes     string
	RequestsPerSec   float64
	CacheTTL         time.Duration
	NegativeCacheTTL time.Duration
}

// RedisConfig holds Redis configuration. An empty URL disables Redis.
type RedisConfig struct {
	URL string
}

// BotConfig holds settings for the chat-facing output
type BotConfig struct {
	PublicBaseURL string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	dbType := DBType(getEnv("DB_TYPE", string(DBTypePostgreSQL)))
	if dbType != DBTypePostgreSQL && dbType != DBTypeMemory {
		return nil, fmt.Errorf("unsupported DB_TYPE %q", dbType)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Type:               dbType,
			DSN:                getEnv("DATABASE_URL", getEnv("PG_DSN", "")),
			Host:               getEnv("PG_HOST", "localhost"),
			Port:               getEnvAsInt("PG_PORT", 5432),
			User:               getEnv("PG_USER", "postgres"),
			Password:           getEnv("PG_PASSWORD", ""),
			Database:           getEnv("PG_DATABASE", "rides"),
			SSLMode:            getEnv("PG_SSLMODE", "disable"),
			MaxConnections:     getEnvAsInt("PG_MAX_CONNECTIONS", 25),
			MaxIdleConnections: getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 5),
		},
		Server: ServerConfig{
			Port:             getEnvAsInt("SERVER_PORT", 8080),
			Host:             getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode:          getEnv("GIN_MODE", "release"),
			AllowedOrigins:   getEnv("CORS_ALLOWED_ORIGINS", "*"),
			RateLimitPerMin:  getEnvAsFloat("RATE_LIMIT_PER_MINUTE", 30),
			RateLimitBurst:   getEnvAsInt("RATE_LIMIT_BURST", 10),
			ShutdownDeadline: getEnvAsDuration("SERVER_SHUTDOWN_DEADLINE", 15*time.Second),
		},
		Search: SearchConfig{
			DefaultLimit:    getEnvAsInt("SEARCH_DEFAULT_LIMIT", 5),
			MaxLimit:        getEnvAsInt("SEARCH_MAX_LIMIT", 20),
			DefaultRadiusKm: getEnvAsFloat("SEARCH_DEFAULT_RADIUS_KM", 50),
			RelaxedRadiusKm: getEnvAsFloat("SEARCH_RELAXED_RADIUS_KM", 100),
			UpstreamCap:     getEnvAsInt("SEARCH_UPSTREAM_CAP", 200),
			Timezone:        getEnv("SEARCH_TIMEZONE", "Local"),
		},
		Timeouts: TimeoutConfig{
			ExternalCall:   getEnvAsDuration("EXTERNAL_CALL_TIMEOUT", 8*time.Second),
			Interpretation: getEnvAsDuration("INTERPRETATION_TIMEOUT", 25*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", "openai"),
		},
		OpenAI: OpenAIConfig{
			APIKey:          getEnv("OPENAI_API_KEY", ""),
			APIBase:         getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"),
			ChatModel:       getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			ChatTemperature: getEnvAsFloat("OPENAI_CHAT_TEMPERATURE", 0.1),
			ChatTopP:        getEnvAsFloat("OPENAI_CHAT_TOP_P", 0),
			ChatMaxTokens:   getEnvAsInt("OPENAI_CHAT_MAX_TOKENS", 300),
			ChatExtraBody:   getEnv("OPENAI_CHAT_EXTRA_BODY", ""),
			EmbeddingModel:  getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDims:   getEnvAsInt("OPENAI_EMBEDDING_DIMENSIONS", 0),
			BatchSize:       getEnvAsInt("OPENAI_EMBEDDING_BATCH_SIZE", 64),
			Timeout:         getEnvAsInt("OPENAI_TIMEOUT", 15),
			Enabled:         getEnv("OPENAI_API_KEY", "") != "",
		},
		Gemini: GeminiConfig{
			APIKey:      getEnv("GEMINI_API_KEY", ""),
			Model:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			BaseURL:     getEnv("GEMINI_BASE_URL", ""),
			Temperature: getEnvAsFloat("GEMINI_TEMPERATURE", 0.1),
			MaxTokens:   getEnvAsInt("GEMINI_MAX_TOKENS", 300),
			Enabled:     getEnv("GEMINI_API_KEY", "") != "",
		},
		Geocoder: GeocoderConfig{
			Provider:         getEnv("GEOCODER_PROVIDER", "nominatim"),
			BaseURL:          getEnv("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),
			UserAgent:        getEnv("NOMINATIM_USER_AGENT", "ridequery/1.0"),
			CountryCodes:     getEnv("NOMINATIM_COUNTRY_CODES", ""),
			RequestsPerSec:   getEnvAsFloat("NOMINATIM_REQUESTS_PER_SECOND", 1),
			CacheTTL:         getEnvAsDuration("GEOCODE_CACHE_TTL", 7*24*time.Hour),
			NegativeCacheTTL: getEnvAsDuration("GEOCODE_NEGATIVE_CACHE_TTL", time.Hour),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Bot: BotConfig{
			PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		},
	}

	if cfg.Search.DefaultLimit > cfg.Search.MaxLimit {
		cfg.Search.DefaultLimit = cfg.Search.MaxLimit
	}

	return cfg, nil
}

// GetDatabaseDSN returns the connection string for the configured backend
func (c *Config) GetDatabaseDSN() string {
	if c.Database.Type == DBTypeMemory {
		if c.Database.DSN != "" {
			return c.Database.DSN
		}
		return "file:rides?mode=memory&cache=shared"
	}

	if c.Database.DSN != "" {
		return c.Database.DSN
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// Location resolves the configured search timezone, falling back to the server clock
func (c SearchConfig) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("Warning: unknown SEARCH_TIMEZONE %q, using server local time", c.Timezone)
		return time.Local
	}
	return loc
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid float value for %s, using default %f", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration value for %s, using default %s", key, defaultValue)
		return defaultValue
	}
	return value
}
