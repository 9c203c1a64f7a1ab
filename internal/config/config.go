package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all constellation configuration.
type Config struct {
	Server   ServerConfig      `yaml:"server"`
	Database DatabaseConfig    `yaml:"database"`
	LLM      LLMConfig         `yaml:"llm"`
	Search   SearchConfig      `yaml:"search"`
	Feed     FeedConfig        `yaml:"feed"`
	Schedule ScheduleConfig    `yaml:"schedule"`
	Graph    GraphConfig       `yaml:"graph"`
	Log      LogConfig         `yaml:"log"`
	Contexts map[string]string `yaml:"contexts"` // app name or url substring -> category
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LLMConfig struct {
	Provider  string        `yaml:"provider"` // "anthropic", "openai", "ollama", "claude-cli"
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

type SearchConfig struct {
	URL      string        `yaml:"url"`
	APIKey   string        `yaml:"api_key"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Delay    time.Duration `yaml:"delay"` // pause between consecutive queries
	Timeout  time.Duration `yaml:"timeout"`
}

type FeedConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

type ScheduleConfig struct {
	Extraction  time.Duration `yaml:"extraction"`
	Enrichment  time.Duration `yaml:"enrichment"`
	Maintenance time.Duration `yaml:"maintenance"`
	Persistence time.Duration `yaml:"persistence"`
}

type GraphConfig struct {
	ViewLimit     int  `yaml:"view_limit"`
	MinEdgeWeight int  `yaml:"min_edge_weight"`
	NER           bool `yaml:"ner"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-haiku-4-5-20251001",
			MaxTokens: 2048,
			Timeout:   60 * time.Second,
		},
		Search: SearchConfig{
			CacheTTL: 30 * time.Minute,
			Delay:    500 * time.Millisecond,
			Timeout:  15 * time.Second,
		},
		Feed: FeedConfig{
			Watch: true,
		},
		Schedule: ScheduleConfig{
			Extraction:  2 * time.Minute,
			Enrichment:  10 * time.Minute,
			Maintenance: 30 * time.Minute,
			Persistence: 10 * time.Minute,
		},
		Graph: GraphConfig{
			ViewLimit:     100,
			MinEdgeWeight: 1,
			NER:           true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath returns the default config file path: ~/.constellation/config.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".constellation", "config.yaml"), nil
}

// Load reads .env (if present), then the YAML file at path (missing file is fine),
// then applies environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CONSTELLATION_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CONSTELLATION_FEED_DIR"); v != "" {
		c.Feed.Dir = v
	}
	if v := os.Getenv("CONSTELLATION_SEARCH_URL"); v != "" {
		c.Search.URL = v
	}
	if v := os.Getenv("CONSTELLATION_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	// An explicit key in the environment picks its provider unless the file chose one with a key.
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.Provider = "anthropic"
		c.LLM.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.Provider = "openai"
		c.LLM.APIKey = key
		if c.LLM.Model == Default().LLM.Model {
			c.LLM.Model = "gpt-4o-mini"
		}
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "openai", "ollama", "claude-cli", "":
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.LLM.Provider)
	}
	intervals := map[string]time.Duration{
		"schedule.extraction":  c.Schedule.Extraction,
		"schedule.enrichment":  c.Schedule.Enrichment,
		"schedule.maintenance": c.Schedule.Maintenance,
		"schedule.persistence": c.Schedule.Persistence,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
