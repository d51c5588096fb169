package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Port     string `yaml:"port"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`

	// Storage
	UseMemoryStore         bool   `yaml:"use_memory_store"`
	DatabaseURL            string `yaml:"database_url"`
	InstanceConnectionName string `yaml:"instance_connection_name"`
	DBHost                 string `yaml:"db_host"`
	DBPort                 string `yaml:"db_port"`
	DBUser                 string `yaml:"db_user"`
	DBPass                 string `yaml:"db_pass"`
	DBName                 string `yaml:"db_name"`

	// Event fan-out
	RedisURL string `yaml:"redis_url"`

	// Messaging client
	BrowserBin      string        `yaml:"browser_bin"`
	BrowserHeadless bool          `yaml:"browser_headless"`
	SessionDataDir  string        `yaml:"session_data_dir"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	StartTimeout    time.Duration `yaml:"start_timeout"`

	// History sync pacing
	SyncPerChatLimit   int           `yaml:"sync_per_chat_limit"`
	SyncInterChatDelay time.Duration `yaml:"sync_inter_chat_delay"`

	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Port:               "8080",
		Env:                "development",
		LogLevel:           "info",
		DBHost:             "localhost",
		DBPort:             "5432",
		DBUser:             "postgres",
		DBName:             "wamirror",
		BrowserHeadless:    true,
		SessionDataDir:     ".sessions",
		PollInterval:       time.Second,
		StartTimeout:       60 * time.Second,
		SyncPerChatLimit:   50,
		SyncInterChatDelay: 3 * time.Second,
		ReconcileInterval:  time.Minute,
	}
}

// Load reads configuration from an optional YAML file (CONFIG_FILE) and then
// environment variables, which take precedence. In development, it loads
// from .env file if present.
func Load() (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.UseMemoryStore = getBool("USE_MEMORY_STORE", cfg.UseMemoryStore)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.InstanceConnectionName = getEnv("INSTANCE_CONNECTION_NAME", cfg.InstanceConnectionName)
	cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
	cfg.DBPort = getEnv("DB_PORT", cfg.DBPort)
	cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
	cfg.DBPass = getEnv("DB_PASS", cfg.DBPass)
	cfg.DBName = getEnv("DB_NAME", cfg.DBName)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.BrowserBin = getEnv("BROWSER_BIN", cfg.BrowserBin)
	cfg.BrowserHeadless = getBool("BROWSER_HEADLESS", cfg.BrowserHeadless)
	cfg.SessionDataDir = getEnv("SESSION_DATA_DIR", cfg.SessionDataDir)

	var err error
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.StartTimeout, err = getDuration("START_TIMEOUT", cfg.StartTimeout); err != nil {
		return nil, err
	}
	if cfg.SyncInterChatDelay, err = getDuration("SYNC_INTER_CHAT_DELAY", cfg.SyncInterChatDelay); err != nil {
		return nil, err
	}
	if cfg.ReconcileInterval, err = getDuration("RECONCILE_INTERVAL", cfg.ReconcileInterval); err != nil {
		return nil, err
	}
	if v := os.Getenv("SYNC_PER_CHAT_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid SYNC_PER_CHAT_LIMIT %q", v)
		}
		cfg.SyncPerChatLimit = n
	}

	// In production, require a real database
	if cfg.IsProduction() && cfg.UseMemoryStore {
		return nil, fmt.Errorf("USE_MEMORY_STORE is not allowed in production")
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
