package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kickai/kickai/internal/config"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}
	return path
}

func TestLoadFromDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "default_team_id: team-1\n")
	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.InviteTTL().Hours() != 72 {
		t.Fatalf("expected default invite TTL of 72h, got %v", cfg.InviteTTL())
	}
	if cfg.AgentDeadline().Seconds() != 30 {
		t.Fatalf("expected default agent deadline of 30s, got %v", cfg.AgentDeadline())
	}
	if cfg.LLM.Provider != "google" {
		t.Fatalf("expected default provider google, got %s", cfg.LLM.Provider)
	}
}

func TestLoadFromRejectsDuplicateTeamID(t *testing.T) {
	dir := t.TempDir()
	body := `
teams:
  - team_id: team-1
    bot_main_token: a
    bot_leadership_token: b
  - team_id: team-1
    bot_main_token: c
    bot_leadership_token: d
`
	path := writeConfig(t, dir, body)
	if _, err := config.LoadFrom(path); err == nil {
		t.Fatalf("expected duplicate team_id to be rejected")
	}
}

func TestLoadFromRejectsMissingBotToken(t *testing.T) {
	dir := t.TempDir()
	body := `
teams:
  - team_id: team-1
    bot_main_token: a
`
	path := writeConfig(t, dir, body)
	if _, err := config.LoadFrom(path); err == nil {
		t.Fatalf("expected missing bot_leadership_token to be rejected")
	}
}

func TestLoadFromAllowsDisabledTeamWithoutTokens(t *testing.T) {
	dir := t.TempDir()
	body := `
teams:
  - team_id: team-1
    disabled: true
`
	path := writeConfig(t, dir, body)
	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	team, ok := cfg.TeamByID("team-1")
	if !ok || !team.Disabled {
		t.Fatalf("expected disabled team-1 to load, got %+v ok=%v", team, ok)
	}
}

func TestEnvOverrideWins(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "log_level: info\n")
	t.Setenv("KICKAI_LOG_LEVEL", "debug")
	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected env override to win, got %s", cfg.LogLevel)
	}
}
