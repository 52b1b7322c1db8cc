package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %v, want sqlite", cfg.Database.Driver)
	}
	if cfg.SpeedTest.PhaseDuration != 5*time.Second {
		t.Errorf("SpeedTest.PhaseDuration = %v, want 5s", cfg.SpeedTest.PhaseDuration)
	}
	if cfg.Engine.IDWPower != 2 {
		t.Errorf("Engine.IDWPower = %v, want 2", cfg.Engine.IDWPower)
	}
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("SPEEDMAP_SERVER_PORT", "9090")
	t.Setenv("SPEEDMAP_DB_DRIVER", "PGX")
	t.Setenv("SPEEDMAP_BLOB_PATH_STYLE", "true")
	t.Setenv("SPEEDMAP_SPEEDTEST_PHASE_DURATION", "250ms")
	t.Setenv("SPEEDMAP_ENGINE_CONFIDENCE_RADIUS", "7.5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %v, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Driver != "pgx" {
		t.Errorf("Database.Driver = %v, want pgx", cfg.Database.Driver)
	}
	if !cfg.Blob.PathStyle {
		t.Error("Blob.PathStyle = false, want true")
	}
	if cfg.SpeedTest.PhaseDuration != 250*time.Millisecond {
		t.Errorf("SpeedTest.PhaseDuration = %v, want 250ms", cfg.SpeedTest.PhaseDuration)
	}
	if cfg.Engine.ConfidenceRadius != 7.5 {
		t.Errorf("Engine.ConfidenceRadius = %v, want 7.5", cfg.Engine.ConfidenceRadius)
	}
}

func TestLoadConfig_ReportsEveryBadKey(t *testing.T) {
	t.Setenv("SPEEDMAP_SERVER_PORT", "eighty")
	t.Setenv("SPEEDMAP_ENGINE_IDW_POWER", "strong")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("LoadConfig() error = nil, want parse error")
	}
	for _, key := range []string{"SPEEDMAP_SERVER_PORT", "SPEEDMAP_ENGINE_IDW_POWER"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: true},
		{name: "postgres without host", mutate: func(c *Config) { c.Database.Driver = "postgres"; c.Database.Host = "" }, wantErr: true},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Blob.Driver = "s3" }, wantErr: true},
		{name: "memory blob", mutate: func(c *Config) { c.Blob.Driver = "memory" }},
		{name: "too many runs", mutate: func(c *Config) { c.SpeedTest.DefaultRuns = 6 }, wantErr: true},
		{name: "zero power", mutate: func(c *Config) { c.Engine.IDWPower = 0 }, wantErr: true},
		{name: "zoom below one", mutate: func(c *Config) { c.Engine.MaxZoom = 0.5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	sqlite := DatabaseConfig{Driver: "sqlite", Path: ":memory:"}
	if got := sqlite.DSN(); got != ":memory:" {
		t.Errorf("sqlite DSN = %q", got)
	}

	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Database: "speedmap", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=speedmap sslmode=disable"
	if got := pg.DSN(); got != want {
		t.Errorf("postgres DSN = %q, want %q", got, want)
	}
}
