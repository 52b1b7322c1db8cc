package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime settings, read from SPEEDMAP_* environment variables
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Blob      BlobConfig
	SpeedTest SpeedTestConfig
	Engine    EngineConfig
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig selects the SQL driver and its connection settings
type DatabaseConfig struct {
	Driver          string // postgres, pgx or sqlite
	Path            string // sqlite file, ":memory:" allowed
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type LoggingConfig struct {
	Level string
}

// BlobConfig selects where floor-plan images are stored
type BlobConfig struct {
	Driver    string // fs, s3 or memory
	Root      string
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
	AccessKey string
	SecretKey string
}

type SpeedTestConfig struct {
	BaseURL       string
	PhaseDuration time.Duration
	DefaultRuns   int
	DownloadBytes int64
	UploadChunk   int
	HTTPTimeout   time.Duration
}

// EngineConfig tunes interpolation and gestures
type EngineConfig struct {
	IDWPower         float64
	ConfidenceRadius float64
	Subdivisions     int
	TapThreshold     float64
	MaxZoom          float64
}

// LoadConfig reads the environment, falling back to defaults for unset keys
func LoadConfig() (*Config, error) {
	l := loader{}
	cfg := &Config{
		Server: ServerConfig{
			Host:         l.str("SPEEDMAP_SERVER_HOST", "0.0.0.0"),
			Port:         l.intVal("SPEEDMAP_SERVER_PORT", 8080),
			ReadTimeout:  l.duration("SPEEDMAP_SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: l.duration("SPEEDMAP_SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  l.duration("SPEEDMAP_SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(l.str("SPEEDMAP_DB_DRIVER", "sqlite")),
			Path:            l.str("SPEEDMAP_DB_PATH", "./data/speedmap.db"),
			Host:            l.str("SPEEDMAP_DB_HOST", "localhost"),
			Port:            l.intVal("SPEEDMAP_DB_PORT", 5432),
			User:            l.str("SPEEDMAP_DB_USER", "speedmap"),
			Password:        l.str("SPEEDMAP_DB_PASSWORD", ""),
			Database:        l.str("SPEEDMAP_DB_NAME", "speedmap"),
			SSLMode:         l.str("SPEEDMAP_DB_SSLMODE", "disable"),
			MaxOpenConns:    l.intVal("SPEEDMAP_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    l.intVal("SPEEDMAP_DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: l.duration("SPEEDMAP_DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: l.duration("SPEEDMAP_DB_CONN_MAX_IDLE_TIME", time.Minute),
		},
		Logging: LoggingConfig{
			Level: l.str("SPEEDMAP_LOG_LEVEL", "info"),
		},
		Blob: BlobConfig{
			Driver:    strings.ToLower(l.str("SPEEDMAP_BLOB_DRIVER", "fs")),
			Root:      l.str("SPEEDMAP_BLOB_ROOT", "./data/floorplans"),
			Bucket:    l.str("SPEEDMAP_BLOB_BUCKET", ""),
			Region:    l.str("SPEEDMAP_BLOB_REGION", "us-east-1"),
			Endpoint:  l.str("SPEEDMAP_BLOB_ENDPOINT", ""),
			PathStyle: l.boolVal("SPEEDMAP_BLOB_PATH_STYLE", false),
			AccessKey: l.str("SPEEDMAP_BLOB_ACCESS_KEY", ""),
			SecretKey: l.str("SPEEDMAP_BLOB_SECRET_KEY", ""),
		},
		SpeedTest: SpeedTestConfig{
			BaseURL:       l.str("SPEEDMAP_SPEEDTEST_URL", "https://speed.cloudflare.com"),
			PhaseDuration: l.duration("SPEEDMAP_SPEEDTEST_PHASE_DURATION", 5*time.Second),
			DefaultRuns:   l.intVal("SPEEDMAP_SPEEDTEST_RUNS", 1),
			DownloadBytes: int64(l.intVal("SPEEDMAP_SPEEDTEST_DOWNLOAD_BYTES", 10*1024*1024)),
			UploadChunk:   l.intVal("SPEEDMAP_SPEEDTEST_UPLOAD_CHUNK", 1024*1024),
			HTTPTimeout:   l.duration("SPEEDMAP_SPEEDTEST_HTTP_TIMEOUT", 30*time.Second),
		},
		Engine: EngineConfig{
			IDWPower:         l.floatVal("SPEEDMAP_ENGINE_IDW_POWER", 2),
			ConfidenceRadius: l.floatVal("SPEEDMAP_ENGINE_CONFIDENCE_RADIUS", 5),
			Subdivisions:     l.intVal("SPEEDMAP_ENGINE_SUBDIVISIONS", 10),
			TapThreshold:     l.floatVal("SPEEDMAP_ENGINE_TAP_THRESHOLD", 10),
			MaxZoom:          l.floatVal("SPEEDMAP_ENGINE_MAX_ZOOM", 5),
		},
	}

	if len(l.errs) > 0 {
		return nil, fmt.Errorf("invalid environment: %s", strings.Join(l.errs, "; "))
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("sqlite driver requires SPEEDMAP_DB_PATH")
		}
	case "postgres", "pgx":
		if c.Database.Host == "" || c.Database.Database == "" {
			return fmt.Errorf("%s driver requires a host and database name", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("max open connections must be at least 1")
	}

	switch c.Blob.Driver {
	case "fs":
		if c.Blob.Root == "" {
			return fmt.Errorf("fs blob driver requires SPEEDMAP_BLOB_ROOT")
		}
	case "s3":
		if c.Blob.Bucket == "" {
			return fmt.Errorf("s3 blob driver requires SPEEDMAP_BLOB_BUCKET")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}

	if c.SpeedTest.DefaultRuns < 1 || c.SpeedTest.DefaultRuns > 5 {
		return fmt.Errorf("speed test runs must be between 1 and 5, got %d", c.SpeedTest.DefaultRuns)
	}
	if c.SpeedTest.PhaseDuration <= 0 {
		return fmt.Errorf("speed test phase duration must be positive")
	}

	if c.Engine.IDWPower <= 0 {
		return fmt.Errorf("IDW power must be positive")
	}
	if c.Engine.ConfidenceRadius <= 0 {
		return fmt.Errorf("confidence radius must be positive")
	}
	if c.Engine.Subdivisions < 1 {
		return fmt.Errorf("heatmap subdivisions must be at least 1")
	}
	if c.Engine.MaxZoom < 1 {
		return fmt.Errorf("max zoom must be at least 1")
	}
	return nil
}

// DSN builds the connection string for the configured driver
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// loader collects parse errors so every bad key is reported at once
type loader struct {
	errs []string
}

func (l *loader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (l *loader) intVal(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return n
}

func (l *loader) floatVal(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.errs = append(l.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return f
}

func (l *loader) boolVal(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return b
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return d
}
