package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the configuration settings for the departure reminder engine.
// It includes the environment, monitoring server port, trip-planner provider
// settings, the tick interval and the backing store configuration.
//
// Fields:
// - Env: The current environment (e.g., local, dev, prod).
// - Port: The port for the engine monitoring server.
// - ProviderType: The trip-planning provider to use (otp, google).
// - APIKey: The API key for the trip-planning provider.
// - PlannerURL: The base URL of the OTP endpoint (unused for Google).
// - Interval: The duration between reminder checks.
// - StaticLat/StaticLon: A fixed position for deployments without a device feed.
// - Database: Configuration settings for the PostgreSQL appointment source.
// - Redis: Configuration settings for the durable settings store.
type Config struct {
	Env          string         `yaml:"env"`              // Env is the current environment: local, dev, prod.
	Port         int            `yaml:"engine.port"`      // Port is the engine monitoring server port.
	ProviderType string         `yaml:"provider.type"`    // ProviderType specifies which trip planner to use
	APIKey       string         `yaml:"provider.api_key"` // The API key for the trip-planning provider.
	PlannerURL   string         `yaml:"provider.url"`     // Base URL of the OTP plan endpoint.
	Interval     time.Duration  `yaml:"engine.interval"`  // The duration between reminder checks.
	StaticLat    float64        `yaml:"location.lat"`     // Fixed latitude when no device feed is wired in.
	StaticLon    float64        `yaml:"location.lon"`     // Fixed longitude when no device feed is wired in.
	Database     PostgresConfig `yaml:"postgres"`         // Database holds the postgres appointment source configuration
	Redis        RedisConfig    `yaml:"redis"`            // Redis holds the settings store configuration
}

// PostgresConfig struct holds the configuration details for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `yaml:"host"`                        // Host is the database server address.
	Port     string `yaml:"port"     env-default:"5432"` // Port is the database server port.
	User     string `yaml:"user"`                        // User is the database user.
	Password string `yaml:"password"`                    // Password is the database user's password.
	Name     string `yaml:"db_name"`                     // Name is the name of the database.
}

// RedisConfig holds the connection details for the settings store. When Addr
// is empty the engine falls back to an in-process store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MustLoad loads the configuration from the environment and returns a Config
// struct. It panics on malformed values.
func MustLoad() *Config {
	_ = godotenv.Load()

	interval, err := time.ParseDuration(setDefaultEnv("HERMES_INTERVAL", "5m"))
	if err != nil {
		panic("failed to parse interval from configuration")
	}

	healthPort, err := strconv.Atoi(setDefaultEnv("HERMES_HEALTH_PORT", "8080"))
	if err != nil {
		panic("failed to parse port for monitoring server from configuration")
	}

	staticLat, err := strconv.ParseFloat(setDefaultEnv("HERMES_LOCATION_LAT", "0"), 64)
	if err != nil {
		panic("failed to parse static latitude from configuration")
	}

	staticLon, err := strconv.ParseFloat(setDefaultEnv("HERMES_LOCATION_LON", "0"), 64)
	if err != nil {
		panic("failed to parse static longitude from configuration")
	}

	redisDB, err := strconv.Atoi(setDefaultEnv("REDIS_DB", "0"))
	if err != nil {
		panic("failed to parse redis database number from configuration")
	}

	return &Config{
		Env:          setDefaultEnv("HERMES_ENV", "production"),
		Port:         healthPort,
		ProviderType: setDefaultEnv("HERMES_PROVIDER_TYPE", "otp"),
		APIKey:       os.Getenv("HERMES_PROVIDER_KEY"),
		PlannerURL:   os.Getenv("HERMES_PROVIDER_URL"),
		Interval:     interval,
		StaticLat:    staticLat,
		StaticLon:    staticLon,
		Database: PostgresConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     os.Getenv("DB_PORT"),
			User:     os.Getenv("DB_USERNAME"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
	}
}

func setDefaultEnv(key, override string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		value = override
	}

	return value
}
