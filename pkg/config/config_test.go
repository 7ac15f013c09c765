package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got: %v", err)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server address", func(c *Config) { c.Server.Address = "" }},
		{"zero read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }},
		{"zero quality interval", func(c *Config) { c.Ingest.QualityInterval = 0 }},
		{"empty publish app", func(c *Config) { c.Publish.App = "" }},
		{"zero video bitrate", func(c *Config) { c.Encoder.VideoBitrateKbps = 0 }},
		{"relay not above mesh", func(c *Config) { c.Topology.RelayMaxViewers = c.Topology.MeshMaxViewers }},
		{"fair not above poor", func(c *Config) { c.Quality.FairBelowKbps = c.Quality.PoorBelowKbps }},
		{"empty segments root", func(c *Config) { c.Segments.Root = "" }},
		{"redis enabled without address", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Address = ""
		}},
		{"rate limiting enabled without rps", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.RequestsPerSecond = 0
		}},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("Expected default server address, got: %s", cfg.Server.Address)
	}
	if cfg.Publish.App != "live" {
		t.Errorf("Expected default publish app, got: %s", cfg.Publish.App)
	}
}

func TestLoad_ParsesSeedCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
credentials:
  - key: key-a
    owner: user-1
    title: Demo
  - owner: user-2
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(cfg.Credentials) != 2 {
		t.Fatalf("Expected 2 seed credentials, got: %d", len(cfg.Credentials))
	}
	if cfg.Credentials[0].Key != "key-a" || cfg.Credentials[0].Owner != "user-1" || cfg.Credentials[0].Title != "Demo" {
		t.Errorf("Unexpected first credential: %+v", cfg.Credentials[0])
	}
	// A blank key is allowed; one is generated at startup.
	if cfg.Credentials[1].Key != "" || cfg.Credentials[1].Owner != "user-2" {
		t.Errorf("Unexpected second credential: %+v", cfg.Credentials[1])
	}
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  address: ":9090"
topology:
  mesh_max_viewers: 3
  relay_max_viewers: 30
segments:
  retention_grace: 10s
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Server.Address != ":9090" {
		t.Errorf("Expected :9090, got: %s", cfg.Server.Address)
	}
	if cfg.Topology.MeshMaxViewers != 3 {
		t.Errorf("Expected mesh_max_viewers 3, got: %d", cfg.Topology.MeshMaxViewers)
	}
	if cfg.Segments.RetentionGrace != 10*time.Second {
		t.Errorf("Expected retention_grace 10s, got: %v", cfg.Segments.RetentionGrace)
	}
	// Values not in the file keep their defaults
	if cfg.Encoder.VideoBitrateKbps != 2500 {
		t.Errorf("Expected default video bitrate, got: %d", cfg.Encoder.VideoBitrateKbps)
	}
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  address: ""
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected validation error, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STREAMCAST_SERVER_ADDRESS", ":7070")
	t.Setenv("STREAMCAST_LOG_LEVEL", "debug")
	t.Setenv("STREAMCAST_FFMPEG_PATH", "/usr/local/bin/ffmpeg")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Server.Address != ":7070" {
		t.Errorf("Expected :7070, got: %s", cfg.Server.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected debug, got: %s", cfg.Logging.Level)
	}
	if cfg.Encoder.FFmpegPath != "/usr/local/bin/ffmpeg" {
		t.Errorf("Expected /usr/local/bin/ffmpeg, got: %s", cfg.Encoder.FFmpegPath)
	}
}
