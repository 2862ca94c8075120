// Package config loads margin settings from defaults, a YAML file, a .env
// file and the environment, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sprite-ai/margin/internal/ai"
	"github.com/sprite-ai/margin/internal/logging"
)

// Config is the full margin configuration.
type Config struct {
	StatePath    string         `yaml:"state"`
	Redis        Redis          `yaml:"redis"`
	AI           ai.Config      `yaml:"ai"`
	Log          logging.Config `yaml:"log"`
	Addr         string         `yaml:"addr"`
	DismissDelay time.Duration  `yaml:"dismiss_delay"`
	SaveDelay    time.Duration  `yaml:"save_delay"`
	Context      int            `yaml:"context"` // lines shown around an annotation in CLI output
}

// Redis selects the Redis persister when URL is set.
type Redis struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StatePath:    defaultStatePath(),
		Redis:        Redis{Key: "margin:state"},
		AI:           ai.Config{Provider: "openai"},
		Log:          logging.Config{Level: "info", Format: logging.FormatText},
		Addr:         ":6142",
		DismissDelay: 1200 * time.Millisecond,
		SaveDelay:    1500 * time.Millisecond,
		Context:      1,
	}
}

// DefaultPath returns ~/.config/margin/config.yaml.
func DefaultPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".margin"
	}
	return filepath.Join(home, ".config", "margin")
}

func defaultStatePath() string {
	return filepath.Join(configDir(), "state.json")
}

// Load reads the configuration. An empty path means DefaultPath, which may
// be missing; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.StatePath = getenv("MARGIN_STATE", cfg.StatePath)
	cfg.Redis.URL = getenv("MARGIN_REDIS_URL", cfg.Redis.URL)
	cfg.Redis.Key = getenv("MARGIN_REDIS_KEY", cfg.Redis.Key)
	cfg.Addr = getenv("MARGIN_ADDR", cfg.Addr)
	cfg.Log.Level = getenv("MARGIN_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = logging.Format(getenv("MARGIN_LOG_FORMAT", string(cfg.Log.Format)))

	cfg.AI.Provider = getenv("MARGIN_PROVIDER", cfg.AI.Provider)
	cfg.AI.Model = getenv("MARGIN_MODEL", cfg.AI.Model)
	cfg.AI.BaseURL = getenv("MARGIN_BASE_URL", cfg.AI.BaseURL)
	cfg.AI.Transcript = getenv("MARGIN_TRANSCRIPT", cfg.AI.Transcript)
	cfg.AI.RPS = getenvFloat("MARGIN_RPS", cfg.AI.RPS)

	switch strings.ToLower(cfg.AI.Provider) {
	case "openai":
		cfg.AI.APIKey = getenv("OPENAI_API_KEY", cfg.AI.APIKey)
	case "gemini":
		cfg.AI.APIKey = getenv("GEMINI_API_KEY", cfg.AI.APIKey)
	}
	cfg.AI.APIKey = getenv("MARGIN_API_KEY", cfg.AI.APIKey)

	if ms := getenvInt("MARGIN_DISMISS_DELAY_MS", 0); ms > 0 {
		cfg.DismissDelay = time.Duration(ms) * time.Millisecond
	}
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	if c.StatePath == "" && c.Redis.URL == "" {
		return errors.New("config: no state path or redis url")
	}
	if c.DismissDelay < 0 || c.SaveDelay < 0 {
		return errors.New("config: delays must not be negative")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
