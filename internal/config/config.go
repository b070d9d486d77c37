package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	DSN           string `yaml:"dsn"`
	MigrationsDir string `yaml:"migrationsDir"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// UpstreamConfig describes the appraisal-district search API.
type UpstreamConfig struct {
	BaseURL          string `yaml:"baseURL"`
	Year             int    `yaml:"year"`
	PageSizes        []int  `yaml:"pageSizes"`
	RequestTimeoutMs int    `yaml:"requestTimeoutMs"`
	MaxPages         int    `yaml:"maxPages"`
}

// TokenConfig controls bearer-token acquisition and refresh. The portal
// issues tokens that expire after roughly five minutes, so the refresh
// interval must stay comfortably below that.
type TokenConfig struct {
	PortalURL        string  `yaml:"portalURL"`
	StorageKey       string  `yaml:"storageKey"`
	RefreshMs        int     `yaml:"refreshMs"`
	JitterPct        float64 `yaml:"jitterPct"`
	AcquireTimeoutMs int     `yaml:"acquireTimeoutMs"`
}

type WorkerConfig struct {
	Workers       int `yaml:"workers"`
	MaxAttempts   int `yaml:"maxAttempts"`
	BackoffBaseMs int `yaml:"backoffBaseMs"`
	JobTimeoutMs  int `yaml:"jobTimeoutMs"`
}

// GateConfig controls the per-term enqueue gate.
type GateConfig struct {
	MinSpacingMs int `yaml:"minSpacingMs"`
	EntryTTLMs   int `yaml:"entryTTLMs"`
}

type SchedulerConfig struct {
	Enabled        bool `yaml:"enabled"`
	ScanIntervalMs int  `yaml:"scanIntervalMs"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type GoogleLLMConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type LLMConfig struct {
	DefaultProvider string          `yaml:"defaultProvider"`
	TimeoutMs       int             `yaml:"timeoutMs"`
	OpenAI          OpenAIConfig    `yaml:"openai"`
	Anthropic       AnthropicConfig `yaml:"anthropic"`
	Google          GoogleLLMConfig `yaml:"google"`
}

type RateLimitConfig struct {
	DefaultPerMinute int `yaml:"defaultPerMinute"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Token     TokenConfig     `yaml:"token"`
	Worker    WorkerConfig    `yaml:"worker"`
	Gate      GateConfig      `yaml:"gate"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	LLM       LLMConfig       `yaml:"llm"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	cfg.applyDefaults()
	return &cfg
}

// applyDefaults fills in zero-valued options so the rest of the code
// never has to guard against missing configuration.
func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MigrationsDir == "" {
		cfg.Database.MigrationsDir = "db/migrations"
	}
	if cfg.Upstream.Year == 0 {
		cfg.Upstream.Year = time.Now().Year()
	}
	if len(cfg.Upstream.PageSizes) == 0 {
		cfg.Upstream.PageSizes = []int{1000, 500, 100, 50}
	}
	if cfg.Upstream.RequestTimeoutMs <= 0 {
		cfg.Upstream.RequestTimeoutMs = 30000
	}
	if cfg.Upstream.MaxPages <= 0 {
		cfg.Upstream.MaxPages = 100
	}
	if cfg.Token.StorageKey == "" {
		cfg.Token.StorageKey = "bearerToken"
	}
	if cfg.Token.RefreshMs <= 0 {
		cfg.Token.RefreshMs = 270000
	}
	if cfg.Token.JitterPct <= 0 {
		cfg.Token.JitterPct = 0.1
	}
	if cfg.Token.AcquireTimeoutMs <= 0 {
		cfg.Token.AcquireTimeoutMs = 60000
	}
	if cfg.Worker.Workers <= 0 {
		cfg.Worker.Workers = 2
	}
	if cfg.Worker.MaxAttempts <= 0 {
		cfg.Worker.MaxAttempts = 3
	}
	if cfg.Worker.BackoffBaseMs <= 0 {
		cfg.Worker.BackoffBaseMs = 2000
	}
	if cfg.Worker.JobTimeoutMs <= 0 {
		cfg.Worker.JobTimeoutMs = 1800000
	}
	if cfg.Gate.MinSpacingMs <= 0 {
		cfg.Gate.MinSpacingMs = 5000
	}
	if cfg.Gate.EntryTTLMs <= 0 {
		cfg.Gate.EntryTTLMs = 600000
	}
	if cfg.Scheduler.ScanIntervalMs <= 0 {
		cfg.Scheduler.ScanIntervalMs = 60000
	}
	if cfg.LLM.TimeoutMs <= 0 {
		cfg.LLM.TimeoutMs = 15000
	}
}

// Validate performs basic sanity checks on the loaded configuration.
// It focuses on the upstream and LLM sections so that obviously
// misconfigured deployments fail fast at startup rather than during
// the first job.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Upstream.BaseURL) == "" {
		return errors.New("upstream.baseURL must be set")
	}
	for i, size := range cfg.Upstream.PageSizes {
		if size <= 0 {
			return fmt.Errorf("upstream.pageSizes[%d] must be positive", i)
		}
		if i > 0 && size >= cfg.Upstream.PageSizes[i-1] {
			return errors.New("upstream.pageSizes must be strictly descending")
		}
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return errors.New("database.dsn must be set")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr must be set")
	}

	// The translator tolerates a missing LLM (it falls back to text
	// search), but a half-configured provider is a deployment mistake.
	provider := strings.TrimSpace(cfg.LLM.DefaultProvider)
	switch provider {
	case "":
		// No provider; translator runs fallback-only.
	case "openai":
		if cfg.LLM.OpenAI.APIKey == "" || cfg.LLM.OpenAI.Model == "" {
			return errors.New("openai llm provider is not fully configured")
		}
	case "anthropic":
		if cfg.LLM.Anthropic.APIKey == "" || cfg.LLM.Anthropic.Model == "" {
			return errors.New("anthropic llm provider is not fully configured")
		}
	case "google":
		if cfg.LLM.Google.APIKey == "" || cfg.LLM.Google.Model == "" {
			return errors.New("google llm provider is not fully configured")
		}
	default:
		return fmt.Errorf("unsupported llm.defaultProvider: %s", provider)
	}

	return nil
}
