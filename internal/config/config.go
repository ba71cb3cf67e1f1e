package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot.
type Config struct {
	App     AppConfig
	Store   StoreConfig
	Redis   RedisConfig
	Logger  LoggerConfig
	Support SupportConfig
}

// AppConfig controls process level behavior.
type AppConfig struct {
	Name        string
	Env         string
	Version     string
	StatusHost  string
	StatusPort  string
	StatusToken string
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	Backend   string // "bolt" or "redis"
	Dir       string // bolt only
	Namespace string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// SupportConfig defines the support plugin parameters.
type SupportConfig struct {
	RolesFile           string
	ChannelID           uint64
	ChannelNameTemplate string
	DynamicChannelName  bool
	CommandPrefix       string
	OfferTimeoutSeconds int
	SweepSeconds        int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	channelID, err := strconv.ParseUint(getEnv("SUPPORT_CHANNEL_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SUPPORT_CHANNEL_ID: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "support-bot"),
			Env:         getEnv("APP_ENV", "development"),
			Version:     getEnv("APP_VERSION", "dev"),
			StatusHost:  getEnv("STATUS_HOST", "127.0.0.1"),
			StatusPort:  getEnv("STATUS_PORT", "8080"),
			StatusToken: os.Getenv("STATUS_TOKEN"),
		},
		Store: StoreConfig{
			Backend:   getEnv("STORE_BACKEND", "bolt"),
			Dir:       getEnv("STORE_DIR", "."),
			Namespace: getEnv("STORE_NAMESPACE", "support"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Support: SupportConfig{
			RolesFile:           getEnv("SUPPORT_ROLES_FILE", "roles.json"),
			ChannelID:           channelID,
			ChannelNameTemplate: getEnv("SUPPORT_CHANNEL_NAME_TEMPLATE", "Support | %count% online"),
			DynamicChannelName:  getEnvAsBool("SUPPORT_DYNAMIC_CHANNEL_NAME", false),
			CommandPrefix:       getEnv("SUPPORT_COMMAND_PREFIX", "!"),
			OfferTimeoutSeconds: getEnvAsInt("SUPPORT_OFFER_TIMEOUT_SECONDS", 120),
			SweepSeconds:        getEnvAsInt("SUPPORT_SWEEP_SECONDS", 30),
		},
	}

	return cfg, nil
}

// StatusAddr returns the status API bind address.
func (a AppConfig) StatusAddr() string {
	return fmt.Sprintf("%s:%s", a.StatusHost, a.StatusPort)
}

// OfferTimeout returns the response-offer deadline duration.
func (s SupportConfig) OfferTimeout() time.Duration {
	if s.OfferTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(s.OfferTimeoutSeconds) * time.Second
}

// SweepInterval returns the maintenance sweep cadence.
func (s SupportConfig) SweepInterval() time.Duration {
	if s.SweepSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.SweepSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
