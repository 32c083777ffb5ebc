package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	NewsAPI   NewsAPIConfig
	Normalize NormalizeConfig
	Monitor   MonitorConfig
	Worker    WorkerConfig
	DB        DatabaseConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS int
}

// NewsAPIConfig points at the upstream news service. Only the path varies per call.
type NewsAPIConfig struct {
	BaseURL   string
	TimeoutMs int
}

func (c NewsAPIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type NormalizeConfig struct {
	// SkipMalformedLocations excludes a row with a bad location instead of failing the listing.
	SkipMalformedLocations bool
}

type MonitorConfig struct {
	Enabled  bool
	Interval time.Duration
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 5),
		},
		NewsAPI: NewsAPIConfig{
			BaseURL:   getEnv("NEWS_API_BASE_URL", "http://localhost:8001"),
			TimeoutMs: getEnvInt("NEWS_API_TIMEOUT_MS", 15000),
		},
		Normalize: NormalizeConfig{
			SkipMalformedLocations: getEnvBool("NORMALIZE_SKIP_BAD_LOCATIONS", false),
		},
		Monitor: MonitorConfig{
			Enabled:  getEnvBool("MONITOR_ENABLED", true),
			Interval: getEnvDuration("MONITOR_INTERVAL", 5*time.Minute),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 1),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		DB: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			DSN:    getEnv("DB_DSN", "./data/disaster-news.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	// Zero disables rate limiting.
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("invalid rate limit: %d", c.Server.RateLimitRPS)
	}

	u, err := url.Parse(c.NewsAPI.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid news api base url: %q", c.NewsAPI.BaseURL)
	}
	if c.NewsAPI.TimeoutMs <= 0 {
		return fmt.Errorf("invalid news api timeout: %dms", c.NewsAPI.TimeoutMs)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Monitor.Interval < time.Minute {
		return fmt.Errorf("monitor interval must be at least 1 minute")
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("invalid worker count: %d", c.Worker.Count)
	}

	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db driver: %s", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
