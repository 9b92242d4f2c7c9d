package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.DataDir != "data" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.DefaultModel != "gemini-2.5-flash" {
		t.Errorf("DefaultModel = %q", cfg.DefaultModel)
	}
	if cfg.FetchTimeout != 15*time.Second {
		t.Errorf("FetchTimeout = %v", cfg.FetchTimeout)
	}
	if cfg.TaskTimeout != 5*time.Minute {
		t.Errorf("TaskTimeout = %v", cfg.TaskTimeout)
	}
	if cfg.SummaryLanguage != "auto" {
		t.Errorf("SummaryLanguage = %q", cfg.SummaryLanguage)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("DEFAULT_MODEL", "Groq: llama-3.3-70b-versatile")
	t.Setenv("FETCH_TIMEOUT", "30s")
	t.Setenv("TASK_TIMEOUT", "garbage")

	cfg := Load()

	if cfg.TelegramToken != "tok" {
		t.Errorf("TelegramToken = %q", cfg.TelegramToken)
	}
	if cfg.DefaultModel != "Groq: llama-3.3-70b-versatile" {
		t.Errorf("DefaultModel = %q", cfg.DefaultModel)
	}
	if cfg.FetchTimeout != 30*time.Second {
		t.Errorf("FetchTimeout = %v", cfg.FetchTimeout)
	}
	// Unparseable durations keep the default.
	if cfg.TaskTimeout != 5*time.Minute {
		t.Errorf("TaskTimeout = %v", cfg.TaskTimeout)
	}
}

func TestLoad_YAMLOverlayThenEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "summaryLanguage: Russian\nserverPort: \"9090\"\nbotPassword: filepw\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("LINKBRIEF_CONFIG", path)
	t.Setenv("BOT_PASSWORD", "envpw")

	cfg := Load()

	if cfg.SummaryLanguage != "Russian" {
		t.Errorf("SummaryLanguage = %q, want YAML value", cfg.SummaryLanguage)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q", cfg.ServerPort)
	}
	if cfg.BotPassword != "envpw" {
		t.Errorf("BotPassword = %q, env should beat YAML", cfg.BotPassword)
	}
	// Untouched keys keep their defaults.
	if cfg.DefaultPrompt != "one_paragraph_summary" {
		t.Errorf("DefaultPrompt = %q", cfg.DefaultPrompt)
	}
}

func TestLoad_MissingYAMLFileFallsBack(t *testing.T) {
	t.Setenv("LINKBRIEF_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	cfg := Load()
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want default", cfg.ServerPort)
	}
}
