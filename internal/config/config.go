package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/go-drone-routes/internal/mapview"
	"github.com/mr1hm/go-drone-routes/internal/models"
)

type Config struct {
	Server  ServerConfig
	Planner PlannerConfig
	Map     MapConfig
	Worker  WorkerConfig
	DB      DatabaseConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS int
	AllowOrigins []string
}

type PlannerConfig struct {
	URL     string
	Timeout time.Duration
}

type MapConfig struct {
	TileURL     string
	Attribution string
	CenterLat   float64
	CenterLng   float64
	Zoom        int
	MinZoom     int
	MaxZoom     int
	Width       int
	Height      int
	Padding     int
}

// Options converts the map settings into map view options.
func (m MapConfig) Options() mapview.Options {
	return mapview.Options{
		Tiles: mapview.TileLayer{
			URLTemplate: m.TileURL,
			Attribution: m.Attribution,
		},
		Center:  models.GeoPoint{Lat: m.CenterLat, Lng: m.CenterLng},
		Zoom:    m.Zoom,
		MinZoom: m.MinZoom,
		MaxZoom: m.MaxZoom,
		Width:   m.Width,
		Height:  m.Height,
		Padding: m.Padding,
	}
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8090),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 5),
			AllowOrigins: getEnvList("CORS_ALLOW_ORIGINS", []string{"*"}),
		},
		Planner: PlannerConfig{
			URL:     strings.TrimRight(getEnv("PLANNER_URL", "http://localhost:8080"), "/"),
			Timeout: getEnvDuration("PLANNER_TIMEOUT", 30*time.Second),
		},
		Map: MapConfig{
			TileURL:     getEnv("MAP_TILE_URL", "https://tile.openstreetmap.org/{z}/{x}/{y}.png"),
			Attribution: getEnv("MAP_ATTRIBUTION", "© OpenStreetMap contributors"),
			CenterLat:   getEnvFloat("MAP_CENTER_LAT", 55.94468066708487),
			CenterLng:   getEnvFloat("MAP_CENTER_LNG", -3.1863580788986368),
			Zoom:        getEnvInt("MAP_ZOOM", 15),
			MinZoom:     getEnvInt("MAP_MIN_ZOOM", 0),
			MaxZoom:     getEnvInt("MAP_MAX_ZOOM", 18),
			Width:       getEnvInt("MAP_WIDTH", 1024),
			Height:      getEnvInt("MAP_HEIGHT", 768),
			Padding:     getEnvInt("MAP_PADDING", 0),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 1),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 64),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/drone-routes.db"),
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
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 req/s, got %d", c.Server.RateLimitRPS)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Planner.URL == "" {
		return fmt.Errorf("planner URL must not be empty")
	}
	if c.Planner.Timeout <= 0 {
		return fmt.Errorf("planner timeout must be positive, got %s", c.Planner.Timeout)
	}

	m := c.Map
	if m.CenterLat < -90 || m.CenterLat > 90 {
		return fmt.Errorf("invalid map center latitude: %f", m.CenterLat)
	}
	if m.CenterLng < -180 || m.CenterLng > 180 {
		return fmt.Errorf("invalid map center longitude: %f", m.CenterLng)
	}
	if err := m.Options().Validate(); err != nil {
		return err
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.Worker.BufferSize < 0 {
		return fmt.Errorf("worker buffer size must not be negative")
	}

	if c.DB.Path == "" {
		return fmt.Errorf("database path must not be empty")
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

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
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

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(val, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
