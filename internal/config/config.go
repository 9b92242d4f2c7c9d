package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const configPathEnv = "LINKBRIEF_CONFIG"

type Config struct {
	TelegramToken    string        `yaml:"telegramToken"`
	BotPassword      string        `yaml:"botPassword"`
	GeminiAPIKey     string        `yaml:"geminiApiKey"`
	GroqAPIKey       string        `yaml:"groqApiKey"`
	OpenRouterAPIKey string        `yaml:"openRouterApiKey"`
	BrowserEndpoint  string        `yaml:"browserEndpoint"`
	DataDir          string        `yaml:"dataDir"`
	PromptsDir       string        `yaml:"promptsDir"`
	SummaryLanguage  string        `yaml:"summaryLanguage"`
	DefaultModel     string        `yaml:"defaultModel"`
	DefaultPrompt    string        `yaml:"defaultPrompt"`
	ServerPort       string        `yaml:"serverPort"`
	FetchTimeout     time.Duration `yaml:"fetchTimeout"`
	TaskTimeout      time.Duration `yaml:"taskTimeout"`
	LogLevel         string        `yaml:"logLevel"`
}

// Load builds the configuration from defaults, an optional YAML file pointed
// at by LINKBRIEF_CONFIG, and finally environment variable overrides.
func Load() *Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		DataDir:         "data",
		PromptsDir:      "prompts",
		SummaryLanguage: "auto",
		DefaultModel:    "gemini-2.5-flash",
		DefaultPrompt:   "one_paragraph_summary",
		ServerPort:      "8080",
		FetchTimeout:    15 * time.Second,
		TaskTimeout:     5 * time.Minute,
		LogLevel:        "info",
	}
}

func (c *Config) applyEnvOverrides() {
	c.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramToken)
	c.BotPassword = getEnv("BOT_PASSWORD", c.BotPassword)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GroqAPIKey = getEnv("GROQ_API_KEY", c.GroqAPIKey)
	c.OpenRouterAPIKey = getEnv("OPENROUTER_API_KEY", c.OpenRouterAPIKey)
	c.BrowserEndpoint = getEnv("BROWSER_ENDPOINT", c.BrowserEndpoint)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.PromptsDir = getEnv("PROMPTS_DIR", c.PromptsDir)
	c.SummaryLanguage = getEnv("SUMMARY_LANGUAGE", c.SummaryLanguage)
	c.DefaultModel = getEnv("DEFAULT_MODEL", c.DefaultModel)
	c.DefaultPrompt = getEnv("DEFAULT_PROMPT", c.DefaultPrompt)
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.FetchTimeout = getEnvAsDuration("FETCH_TIMEOUT", c.FetchTimeout)
	c.TaskTimeout = getEnvAsDuration("TASK_TIMEOUT", c.TaskTimeout)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
