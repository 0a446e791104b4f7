// Package config loads and hot-reloads KICKAI's YAML configuration: the
// team routing table (bot tokens and chat IDs per team), the LLM backend
// selection, and the invite/agent-deadline tunables from §6.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// TeamConfig is one row of the team routing table: a team's two bot
// identities and the two chats they serve (§2, §6).
type TeamConfig struct {
	TeamID             string `yaml:"team_id"`
	Name               string `yaml:"name"`
	BotMainToken       string `yaml:"bot_main_token"`
	BotLeadershipToken string `yaml:"bot_leadership_token"`
	MainChatID         int64  `yaml:"main_chat_id"`
	LeadershipChatID   int64  `yaml:"leadership_chat_id"`
	Disabled           bool   `yaml:"disabled"`
}

// LLMConfig selects the provider-neutral genkit backend (§4.6, §6).
// OpenAICompatibleProvider/BaseURL only apply when Provider is
// "openai_compatible" — KICKAI's local/self-hosted adapter, typically
// pointed at an Ollama endpoint.
type LLMConfig struct {
	Provider    string  `yaml:"llm_provider"`
	Model       string  `yaml:"llm_model"`
	Temperature float64 `yaml:"llm_temperature"`

	OpenAICompatibleProvider string `yaml:"openai_compatible_provider"`
	OpenAICompatibleBaseURL  string `yaml:"openai_compatible_base_url"`
}

// ProviderConfig is one LLM provider's credentials/endpoint overrides.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// TelemetryConfig selects the OpenTelemetry exporter for per-update
// tracing. Mirrors internal/otel.Config's shape so main can copy it
// across without config depending on the otel package.
type TelemetryConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Exporter       string  `yaml:"exporter"`
	Endpoint       string  `yaml:"endpoint"`
	ServiceName    string  `yaml:"service_name"`
	SampleRate     float64 `yaml:"sample_rate"`
	MetricsEnabled *bool   `yaml:"metrics_enabled,omitempty"`
}

// Config is the root of config.yaml.
type Config struct {
	HomeDir string `yaml:"-"`

	DefaultTeamID string       `yaml:"default_team_id"`
	Teams         []TeamConfig `yaml:"teams"`

	LLM LLMConfig `yaml:"llm"`

	InviteSecretKey   string `yaml:"invite_secret_key"`
	InviteTTLHours    int    `yaml:"invite_ttl_hours"`
	InviteBaseURL     string `yaml:"invite_base_url"`
	AgentDeadlineSecs int    `yaml:"agent_deadline_seconds"`
	LogLevel          string `yaml:"log_level"`

	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Providers holds per-provider API keys, env vars override.
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// InviteTTL returns the configured invite lifetime, defaulting to the
// spec's 72h (§4.8).
func (c Config) InviteTTL() time.Duration {
	if c.InviteTTLHours <= 0 {
		return 72 * time.Hour
	}
	return time.Duration(c.InviteTTLHours) * time.Hour
}

// AgentDeadline returns the configured per-update wall-clock deadline,
// defaulting to the spec's 30s (§4.5, §5).
func (c Config) AgentDeadline() time.Duration {
	if c.AgentDeadlineSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.AgentDeadlineSecs) * time.Second
}

// LLMProviderAPIKey returns the API key for the given provider, env vars
// taking precedence over config.yaml.
func (c Config) LLMProviderAPIKey(provider string) string {
	envMap := map[string]string{
		"google":     "GOOGLE_API_KEY",
		"anthropic":  "ANTHROPIC_API_KEY",
		"openai":     "OPENAI_API_KEY",
		"openrouter": "OPENROUTER_API_KEY",
	}
	if envVar, ok := envMap[provider]; ok {
		if v := os.Getenv(envVar); v != "" {
			return v
		}
	}
	if c.Providers != nil {
		if p, ok := c.Providers[provider]; ok && p.APIKey != "" {
			return p.APIKey
		}
	}
	return ""
}

// TeamByID looks up a team by ID. Disabled teams are still returned — the
// fleet manager decides whether to skip connecting them.
func (c Config) TeamByID(teamID string) (TeamConfig, bool) {
	for _, t := range c.Teams {
		if t.TeamID == teamID {
			return t, true
		}
	}
	return TeamConfig{}, false
}

// HomeDir resolves the KICKAI home directory: KICKAI_HOME env override,
// else ~/.kickai.
func HomeDir() string {
	if override := os.Getenv("KICKAI_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".kickai")
}

// ConfigPath returns config.yaml's path within homeDir.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

func defaultConfig() Config {
	return Config{
		LogLevel:          "info",
		InviteTTLHours:    72,
		InviteBaseURL:     "https://kickai.example/redeem",
		AgentDeadlineSecs: 30,
		LLM: LLMConfig{
			Provider:    "google",
			Temperature: 0.3,
		},
	}
}

// Load reads config.yaml from the KICKAI home directory, applies env
// overrides, and validates the team table. A missing config.yaml is not
// itself an error — Load returns defaults with an empty team table, and
// the caller's fail-fast startup guard (no teams configured) is expected
// to report SystemCritical.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create kickai home: %w", err)
	}

	cfg, err := loadFile(cfg, ConfigPath(cfg.HomeDir))
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFrom re-parses config.yaml from an explicit path, used by the
// fsnotify watcher on hot-reload (§6: the team table may change without a
// process restart).
func LoadFrom(path string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = filepath.Dir(path)
	return loadFile(cfg, path)
}

func loadFile(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// validate rejects configs that would leave the fleet or invite service in
// an inconsistent state: duplicate team IDs, or an enabled team missing a
// bot token.
func validate(cfg Config) error {
	seen := make(map[string]bool, len(cfg.Teams))
	for _, t := range cfg.Teams {
		if t.TeamID == "" {
			return fmt.Errorf("config: team entry missing team_id")
		}
		if seen[t.TeamID] {
			return fmt.Errorf("config: duplicate team_id %q", t.TeamID)
		}
		seen[t.TeamID] = true
		if !t.Disabled && (t.BotMainToken == "" || t.BotLeadershipToken == "") {
			return fmt.Errorf("config: team %q is missing a bot token", t.TeamID)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("KICKAI_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("KICKAI_LLM_PROVIDER"); raw != "" {
		cfg.LLM.Provider = raw
	}
	if raw := os.Getenv("KICKAI_LLM_MODEL"); raw != "" {
		cfg.LLM.Model = raw
	}
	if raw := os.Getenv("KICKAI_INVITE_SECRET_KEY"); raw != "" {
		cfg.InviteSecretKey = raw
	}
	if raw := os.Getenv("KICKAI_AGENT_DEADLINE_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.AgentDeadlineSecs = v
		}
	}
}
