package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Media   MediaConfig   `yaml:"media"`
	Storage StorageConfig `yaml:"storage"`
	Fetch   FetchConfig   `yaml:"fetch"`
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr          string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	MaxUploadSize ByteSize      `yaml:"maxUploadSize"`
	WorkerCount   int           `yaml:"workerCount"`
	QueueCapacity int           `yaml:"queueCapacity"`
	APIKey        string        `yaml:"apiKey"`        // optional static API key header (X-API-Key)
	ShutdownGrace time.Duration `yaml:"shutdownGrace"` // time to wait for workers before forced stop
	LogLevel      string        `yaml:"logLevel"`      // debug|info|warn|error
}

// MediaConfig configures the external transcoding binaries.
type MediaConfig struct {
	FFmpegPath  string        `yaml:"ffmpegPath"`
	StepTimeout time.Duration `yaml:"stepTimeout"` // bound on each external call of a job
}

// StorageConfig configures local persistence: the job database and the
// object store root with its public URL prefix.
type StorageConfig struct {
	Dir             string `yaml:"dir"`
	DatabasePath    string `yaml:"databasePath"`    // optional, overrides default dir/reelsmith.db
	PublicURLPrefix string `yaml:"publicUrlPrefix"` // prefix of returned artifact URLs
}

// FetchConfig configures source downloads.
type FetchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ByteSize represents a size in bytes that unmarshals from strings like
// "10MiB", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
	}
	parsed, err := humanize.ParseBytes(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", value.Value, err)
	}
	*b = ByteSize(parsed)
	return nil
}

// Load reads YAML config from path, expands environment variables, and
// validates it. A .env file next to the process, if present, is folded into
// the environment first. If path is empty, it will attempt to read from env
// var REELSMITH_CONFIG, then default to "config.yaml".
func Load(path string) (*Config, error) {
	// Best-effort: absence of a .env file is the normal production case.
	_ = godotenv.Load()

	if path == "" {
		if env := os.Getenv("REELSMITH_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	// Expand environment variables in file content.
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	// Ensure storage dir exists
	if err := os.MkdirAll(cfg.Storage.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("ensure storage dir: %w", err)
	}
	// Default DB path under storage dir if not set.
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = filepath.Join(cfg.Storage.Dir, "reelsmith.db")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 2 * time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = ByteSize(10 * 1024 * 1024) // 10 MiB default
	}
	if cfg.Server.WorkerCount <= 0 {
		cfg.Server.WorkerCount = 2
	}
	if cfg.Server.QueueCapacity <= 0 {
		cfg.Server.QueueCapacity = 128
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}

	// Media defaults
	if cfg.Media.FFmpegPath == "" {
		cfg.Media.FFmpegPath = "ffmpeg"
	}
	if cfg.Media.StepTimeout == 0 {
		cfg.Media.StepTimeout = 5 * time.Minute
	}

	// Storage defaults
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "data"
	}
	if cfg.Storage.PublicURLPrefix == "" {
		cfg.Storage.PublicURLPrefix = "/files"
	}

	// Fetch defaults
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = 60 * time.Second
	}
}

func validate(cfg *Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Server.LogLevel)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.logLevel %q is not one of debug|info|warn|error", cfg.Server.LogLevel)
	}
	if cfg.Media.StepTimeout < 0 {
		return fmt.Errorf("media.stepTimeout must not be negative")
	}
	if cfg.Fetch.Timeout < 0 {
		return fmt.Errorf("fetch.timeout must not be negative")
	}
	if !strings.HasPrefix(cfg.Storage.PublicURLPrefix, "/") && !strings.Contains(cfg.Storage.PublicURLPrefix, "://") {
		return fmt.Errorf("storage.publicUrlPrefix must be an absolute path or URL")
	}
	return nil
}
