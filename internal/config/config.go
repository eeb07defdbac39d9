package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token          string  `yaml:"token"`
	OperatorChatID int64   `yaml:"operator_chat_id"`
	AdminIDs       []int64 `yaml:"admin_ids"`
	Workers        int     `yaml:"workers"` // polling workers
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	OpenAIKey       string `yaml:"openai_key"`
	GeminiKey       string `yaml:"gemini_key"`
	GeminiURL       string `yaml:"gemini_url"`
	Model           string `yaml:"model"`
	SystemPrompt    string `yaml:"system_prompt"`
	MaxHistory      int    `yaml:"max_history"`      // messages pulled from the store
	ContextTokens   int    `yaml:"context_tokens"`   // token budget for the context window
	WhisperLanguage string `yaml:"whisper_language"` // empty = autodetect
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent generation calls
}

type BridgeConfig struct {
	URL      string        `yaml:"url"`
	StoreDir string        `yaml:"store_dir"` // bridge media store, for the fallback heuristic
	Timeout  time.Duration `yaml:"timeout"`
}

type AuditConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
}

type IngestConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchWindow  time.Duration `yaml:"batch_window"`
	DedupSize    int           `yaml:"dedup_size"`
	FetchLimit   int           `yaml:"fetch_limit"`
}

type WebConfig struct {
	Port int `yaml:"port"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Audit    AuditConfig    `yaml:"audit"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Web      WebConfig      `yaml:"web"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Bot.Token == "" {
		return nil, errors.New("bot.token is required")
	}
	if cfg.Bot.OperatorChatID == 0 {
		return nil, errors.New("bot.operator_chat_id is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Bridge.URL == "" {
		return nil, errors.New("bridge.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 4
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gpt-4o-mini"
	}
	if cfg.AI.MaxHistory <= 0 {
		cfg.AI.MaxHistory = 10
	}
	if cfg.AI.ContextTokens <= 0 {
		cfg.AI.ContextTokens = 3000
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 4
	}
	if cfg.Bridge.Timeout <= 0 {
		cfg.Bridge.Timeout = 12 * time.Second
	}
	if cfg.Ingest.PollInterval <= 0 {
		cfg.Ingest.PollInterval = 2 * time.Second
	}
	if cfg.Ingest.BatchWindow <= 0 {
		cfg.Ingest.BatchWindow = 20 * time.Minute
	}
	if cfg.Ingest.DedupSize <= 0 {
		cfg.Ingest.DedupSize = 1000
	}
	if cfg.Ingest.FetchLimit <= 0 {
		cfg.Ingest.FetchLimit = 200
	}
	if cfg.Audit.SheetName == "" {
		cfg.Audit.SheetName = "Messages"
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8090
	}
}
