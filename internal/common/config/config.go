package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Database   DatabaseConfig
	GTFSStatic GTFSStaticConfig
	Realtime   RealtimeConfig
	Server     ServerConfig
	Logging    LoggingConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// GTFSStaticConfig points at the directory holding the extracted GTFS
// static tables (routes.txt, stops.txt, trips.txt, ...).
type GTFSStaticConfig struct {
	DataDir string
}

// RealtimeConfig for the GTFS-realtime vehicle position feed
type RealtimeConfig struct {
	FeedURL           string
	PollInterval      time.Duration
	FetchTimeout      time.Duration
	HeartbeatInterval time.Duration
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

type LoggingConfig struct {
	Level    string
	FilePath string
}

func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "hsltracker"),
		},
		GTFSStatic: GTFSStaticConfig{
			DataDir: getEnv("GTFS_STATIC_DIR", "gtfs-static"),
		},
		Realtime: RealtimeConfig{
			FeedURL:           getEnv("GTFS_RT_FEED_URL", "https://realtime.hsl.fi/realtime/vehicle-positions/v2/hsl"),
			PollInterval:      getDurationEnv("GTFS_RT_POLL_INTERVAL", 10*time.Second),
			FetchTimeout:      getDurationEnv("GTFS_RT_FETCH_TIMEOUT", 10*time.Second),
			HeartbeatInterval: getDurationEnv("WS_HEARTBEAT_INTERVAL", 30*time.Second),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "3000"),
			AllowedOrigins: splitEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		},
		Logging: LoggingConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			FilePath: getEnv("LOG_FILE", "hsltracker.log"),
		},
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitEnv(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
