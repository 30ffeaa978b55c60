// Package config loads framesift configuration from a TOML file with
// repository defaults and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// EnvConfigPath names the environment variable that overrides the default
// config file location.
const EnvConfigPath = "FRAMESIFT_CONFIG"

// Paths contains directory and bind address configuration.
type Paths struct {
	VideoDir  string `toml:"video_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
}

// Analysis contains frame sampling and flagging parameters.
type Analysis struct {
	IntervalSeconds float64 `toml:"interval_seconds"`
	MaxFrames       int     `toml:"max_frames"` // 0 = unlimited
	FlagThreshold   float64 `toml:"flag_threshold"`
	FramePrefix     string  `toml:"frame_prefix"`
}

// Backend contains connection settings for the scoring backend.
type Backend struct {
	Provider          string `toml:"provider"` // "openai" or "ollama"
	BaseURL           string `toml:"base_url"`
	APIKey            string `toml:"api_key"`
	Model             string `toml:"model"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	MaxAttempts       int    `toml:"max_attempts"`
	MalformedAttempts int    `toml:"malformed_attempts"`
	RetryBackoffMS    int    `toml:"retry_backoff_ms"`
}

// Postgres contains settings for the optional relational mirror.
type Postgres struct {
	Enabled        bool   `toml:"enabled"`
	Host           string `toml:"host"`
	Port           string `toml:"port"`
	User           string `toml:"user"`
	Password       string `toml:"password"`
	Database       string `toml:"database"`
	EmbeddingModel string `toml:"embedding_model"`
}

// Log contains logging configuration.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
}

// Config is the root configuration document.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Analysis Analysis `toml:"analysis"`
	Backend  Backend  `toml:"backend"`
	Postgres Postgres `toml:"postgres"`
	Log      Log      `toml:"log"`
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			VideoDir:  "video",
			OutputDir: "analysis_results",
			LogDir:    "",
			APIBind:   "127.0.0.1:8000",
		},
		Analysis: Analysis{
			IntervalSeconds: defaultIntervalSeconds,
			MaxFrames:       0,
			FlagThreshold:   defaultFlagThreshold,
			FramePrefix:     "",
		},
		Backend: Backend{
			Provider:          "openai",
			BaseURL:           defaultBackendBaseURL,
			Model:             defaultBackendModel,
			TimeoutSeconds:    defaultBackendTimeoutSeconds,
			MaxAttempts:       defaultMaxAttempts,
			MalformedAttempts: defaultMalformedAttempts,
			RetryBackoffMS:    defaultRetryBackoffMS,
		},
		Postgres: Postgres{
			Host:           "localhost",
			Port:           "5432",
			User:           "postgres",
			Database:       "framesift",
			EmbeddingModel: defaultEmbeddingModel,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

const (
	defaultIntervalSeconds       = 60.0
	defaultFlagThreshold         = 41.0
	defaultBackendBaseURL        = "http://localhost:1234"
	defaultBackendModel          = "qwen2-vl-7b-instruct"
	defaultBackendTimeoutSeconds = 30
	defaultMaxAttempts           = 3
	defaultMalformedAttempts     = 2
	defaultRetryBackoffMS        = 500
	defaultEmbeddingModel        = "text-embedding-nomic-embed-text-v1.5"
)

// DefaultPath reports the config file location: $FRAMESIFT_CONFIG when set,
// otherwise ~/.config/framesift/config.toml.
func DefaultPath() string {
	if env := strings.TrimSpace(os.Getenv(EnvConfigPath)); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "framesift", "config.toml")
	}
	return filepath.Join(home, ".config", "framesift", "config.toml")
}

// Load reads the TOML file at path layered over defaults. A missing file is
// not an error; defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects parameter combinations before any work starts.
func (c *Config) Validate() error {
	if c.Analysis.IntervalSeconds <= 0 {
		return fmt.Errorf("analysis.interval_seconds must be > 0, got %v", c.Analysis.IntervalSeconds)
	}
	if c.Analysis.MaxFrames < 0 {
		return fmt.Errorf("analysis.max_frames must be >= 0, got %d", c.Analysis.MaxFrames)
	}
	if c.Analysis.FlagThreshold < 0 || c.Analysis.FlagThreshold > 100 {
		return fmt.Errorf("analysis.flag_threshold must be within [0,100], got %v", c.Analysis.FlagThreshold)
	}
	switch c.Backend.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("backend.provider must be \"openai\" or \"ollama\", got %q", c.Backend.Provider)
	}
	if c.Backend.MaxAttempts < 1 {
		return fmt.Errorf("backend.max_attempts must be >= 1, got %d", c.Backend.MaxAttempts)
	}
	if c.Backend.MalformedAttempts < 1 || c.Backend.MalformedAttempts > c.Backend.MaxAttempts {
		return fmt.Errorf("backend.malformed_attempts must be within [1, max_attempts], got %d", c.Backend.MalformedAttempts)
	}
	if c.Backend.TimeoutSeconds < 1 {
		return fmt.Errorf("backend.timeout_seconds must be >= 1, got %d", c.Backend.TimeoutSeconds)
	}
	return nil
}

// EnsureDirectories creates the output and log directories if missing.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.OutputDir}
	if c.Paths.LogDir != "" {
		dirs = append(dirs, c.Paths.LogDir)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure directory %s: %w", dir, err)
		}
	}
	return nil
}
