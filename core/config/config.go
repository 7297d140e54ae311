// Package config loads and watches the service configuration: defaults
// first, an optional YAML file layered on top, then environment
// variables for the secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/azzcolabs/concierge/core/llm"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Chat      ChatConfig      `yaml:"chat"`
	Models    []ModelConfig   `yaml:"models"`
	Providers ProvidersConfig `yaml:"providers"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Notes     NotesConfig     `yaml:"notes"`
	Geo       GeoConfig       `yaml:"geo"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type ChatConfig struct {
	HistoryWindow  int           `yaml:"history_window"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	TopP           float64       `yaml:"top_p"`
	TopK           int           `yaml:"top_k"`
	Timeout        time.Duration `yaml:"timeout"`
	PersonaTable   string        `yaml:"persona_table"`
	PromptLibrary  string        `yaml:"prompt_library"`
	KeywordWeight  float64       `yaml:"keyword_weight"`
	ContinuityBias float64       `yaml:"continuity_bias"`
}

type ModelConfig struct {
	Model    string `yaml:"model"`
	Provider string `yaml:"provider"`
	RPM      int    `yaml:"rpm"`
	RPD      int    `yaml:"rpd"`
	Priority int    `yaml:"priority"`
}

type ProvidersConfig struct {
	Default   string         `yaml:"default"`
	Google    ProviderConfig `yaml:"google"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
}

type ProviderConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type AnalyticsConfig struct {
	Path        string `yaml:"path"`
	QueueBuffer int    `yaml:"queue_buffer"`
}

type NotesConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WriteToken string `yaml:"write_token"`
}

type GeoConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
}

// Default returns the production configuration before any file or
// environment overlay.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Chat: ChatConfig{
			HistoryWindow:  5,
			MaxTokens:      500,
			Temperature:    0.7,
			TopP:           0.9,
			TopK:           40,
			Timeout:        30 * time.Second,
			KeywordWeight:  1.0,
			ContinuityBias: 0.5,
		},
		Models: []ModelConfig{
			{Model: "gemini-2.5-flash", Provider: "google", RPM: 15, RPD: 500, Priority: 1},
			{Model: "gemini-2.5-flash-lite", Provider: "google", RPM: 30, RPD: 1500, Priority: 2},
		},
		Providers: ProvidersConfig{
			Default: "google",
		},
		Analytics: AnalyticsConfig{
			Path:        "concierge.db",
			QueueBuffer: 256,
		},
		Notes: NotesConfig{
			Enabled: true,
		},
		Geo: GeoConfig{
			Enabled: true,
		},
	}
}

// Load builds the configuration: defaults, then path (when non-empty),
// then the environment. A missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv pulls the secrets and the timeout from the environment.
// Environment values win over the file.
func (c *Config) applyEnv() {
	if key := firstEnv("GOOGLE_AI_API_KEY", "GEMINI_API_KEY"); key != "" {
		c.Providers.Google.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Providers.Anthropic.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Providers.OpenAI.APIKey = key
	}
	if token := os.Getenv("NOTES_API_TOKEN"); token != "" {
		c.Notes.WriteToken = token
	}
	if raw := os.Getenv("NOTES_API_ENABLED"); raw != "" {
		c.Notes.Enabled = raw == "true"
	}
	if raw := os.Getenv("AI_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			c.Chat.Timeout = d
		}
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server addr is required")
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("config: at least one model is required")
	}
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.Model == "" || m.Provider == "" {
			return fmt.Errorf("config: model entries need both model and provider")
		}
		if seen[m.Model] {
			return fmt.Errorf("config: duplicate model %s", m.Model)
		}
		seen[m.Model] = true
		if m.RPM <= 0 || m.RPD <= 0 {
			return fmt.Errorf("config: model %s needs positive rpm and rpd", m.Model)
		}
	}
	if c.Chat.HistoryWindow < 0 {
		return fmt.Errorf("config: history window cannot be negative")
	}
	return nil
}

// ModelLimits converts the model entries to rate-limiter registrations.
func (c *Config) ModelLimits() []llm.ModelLimits {
	out := make([]llm.ModelLimits, 0, len(c.Models))
	for _, m := range c.Models {
		out = append(out, llm.ModelLimits{
			Model:    m.Model,
			Provider: m.Provider,
			RPM:      m.RPM,
			RPD:      m.RPD,
			Priority: m.Priority,
		})
	}
	return out
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
