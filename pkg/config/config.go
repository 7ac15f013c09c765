package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Ingest struct {
		Path            string        `yaml:"path"`
		QualityInterval time.Duration `yaml:"quality_interval"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
	} `yaml:"ingest"`

	Publish struct {
		Address string `yaml:"address"`
		App     string `yaml:"app"`
	} `yaml:"publish"`

	Encoder struct {
		FFmpegPath       string        `yaml:"ffmpeg_path"`
		VideoBitrateKbps int           `yaml:"video_bitrate_kbps"`
		AudioBitrateKbps int           `yaml:"audio_bitrate_kbps"`
		StopGrace        time.Duration `yaml:"stop_grace"`
	} `yaml:"encoder"`

	Topology struct {
		MeshMaxViewers  int `yaml:"mesh_max_viewers"`
		RelayMaxViewers int `yaml:"relay_max_viewers"`
	} `yaml:"topology"`

	Quality struct {
		PoorBelowKbps int `yaml:"poor_below_kbps"`
		FairBelowKbps int `yaml:"fair_below_kbps"`
	} `yaml:"quality"`

	Segments struct {
		Root           string        `yaml:"root"`
		WindowSize     int           `yaml:"window_size"`
		Duration       time.Duration `yaml:"duration"`
		RetentionGrace time.Duration `yaml:"retention_grace"`
	} `yaml:"segments"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
	} `yaml:"webrtc"`

	Chat struct {
		MessagesPerSecond float64 `yaml:"messages_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"chat"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limiting"`

	// Credentials seeds the in-memory credential store at startup, for
	// development and single-node runs. Ignored when Redis is enabled.
	Credentials []SeedCredential `yaml:"credentials"`
}

// SeedCredential is one startup-provisioned publish credential. A blank
// key gets an opaque generated one, logged once at boot.
type SeedCredential struct {
	Key   string `yaml:"key"`
	Owner string `yaml:"owner"`
	Title string `yaml:"title"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	if c.Ingest.QualityInterval <= 0 {
		return fmt.Errorf("ingest.quality_interval must be > 0")
	}
	if c.Ingest.PingInterval <= 0 {
		return fmt.Errorf("ingest.ping_interval must be > 0")
	}

	if c.Publish.Address == "" {
		return fmt.Errorf("publish.address must not be empty")
	}
	if c.Publish.App == "" {
		return fmt.Errorf("publish.app must not be empty")
	}

	if c.Encoder.VideoBitrateKbps <= 0 {
		return fmt.Errorf("encoder.video_bitrate_kbps must be > 0")
	}
	if c.Encoder.AudioBitrateKbps <= 0 {
		return fmt.Errorf("encoder.audio_bitrate_kbps must be > 0")
	}
	if c.Encoder.StopGrace <= 0 {
		return fmt.Errorf("encoder.stop_grace must be > 0")
	}

	if c.Topology.MeshMaxViewers <= 0 {
		return fmt.Errorf("topology.mesh_max_viewers must be > 0")
	}
	if c.Topology.RelayMaxViewers <= c.Topology.MeshMaxViewers {
		return fmt.Errorf("topology.relay_max_viewers must be > mesh_max_viewers")
	}

	if c.Quality.PoorBelowKbps <= 0 {
		return fmt.Errorf("quality.poor_below_kbps must be > 0")
	}
	if c.Quality.FairBelowKbps <= c.Quality.PoorBelowKbps {
		return fmt.Errorf("quality.fair_below_kbps must be > poor_below_kbps")
	}

	if c.Segments.Root == "" {
		return fmt.Errorf("segments.root must not be empty")
	}
	if c.Segments.WindowSize <= 0 {
		return fmt.Errorf("segments.window_size must be > 0")
	}
	if c.Segments.RetentionGrace <= 0 {
		return fmt.Errorf("segments.retention_grace must be > 0")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Ingest.Path = "/ingest"
	cfg.Ingest.QualityInterval = 4 * time.Second
	cfg.Ingest.PingInterval = 30 * time.Second
	cfg.Ingest.ReadTimeout = 60 * time.Second
	cfg.Ingest.WriteTimeout = 10 * time.Second

	cfg.Publish.Address = ":1935"
	cfg.Publish.App = "live"

	cfg.Encoder.FFmpegPath = "ffmpeg"
	cfg.Encoder.VideoBitrateKbps = 2500
	cfg.Encoder.AudioBitrateKbps = 128
	cfg.Encoder.StopGrace = 3 * time.Second

	cfg.Topology.MeshMaxViewers = 5
	cfg.Topology.RelayMaxViewers = 50

	cfg.Quality.PoorBelowKbps = 800
	cfg.Quality.FairBelowKbps = 2000

	cfg.Segments.Root = "./segments"
	cfg.Segments.WindowSize = 6
	cfg.Segments.Duration = 4 * time.Second
	cfg.Segments.RetentionGrace = 30 * time.Second

	cfg.Chat.MessagesPerSecond = 5
	cfg.Chat.Burst = 10

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 50
	cfg.RateLimiting.Burst = 100

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("STREAMCAST_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if addr := os.Getenv("STREAMCAST_PUBLISH_ADDRESS"); addr != "" {
		c.Publish.Address = addr
	}
	if level := os.Getenv("STREAMCAST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if root := os.Getenv("STREAMCAST_SEGMENTS_ROOT"); root != "" {
		c.Segments.Root = root
	}
	if path := os.Getenv("STREAMCAST_FFMPEG_PATH"); path != "" {
		c.Encoder.FFmpegPath = path
	}
	if addr := os.Getenv("STREAMCAST_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
}
