package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"apiKey"`
}

type RateLimitConfig struct {
	Enabled          bool `yaml:"enabled"`
	DefaultPerMinute int  `yaml:"defaultPerMinute"`
}

// ScraperConfig carries the per-URL defaults a job inherits when its own
// settings map does not override them.
type ScraperConfig struct {
	UserAgent         string `yaml:"userAgent"`
	URLTimeoutSeconds int    `yaml:"urlTimeoutSeconds"`
	DelayMinMs        int    `yaml:"delayMinMs"`
	DelayMaxMs        int    `yaml:"delayMaxMs"`
	RespectRobots     bool   `yaml:"respectRobots"`
	IncludeMarkdown   bool   `yaml:"includeMarkdown"`
	StoreRawHTML      bool   `yaml:"storeRawHTML"`
}

type CascadeFallbackConfig struct {
	StatusCodes        []int    `yaml:"statusCodes"`
	ErrorPatterns      []string `yaml:"errorPatterns"`
	PoisonPills        []string `yaml:"poisonPills"`
	EmptyContent       bool     `yaml:"emptyContent"`
	MinContentLength   int      `yaml:"minContentLength"`
	JavascriptRequired bool     `yaml:"javascriptRequired"`
}

// CascadeConfig is the application-wide base; per-job settings overlay it.
// Enabled is a pointer so that an omitted key means "on" rather than "off".
type CascadeConfig struct {
	Enabled     *bool                 `yaml:"enabled"`
	Order       []string              `yaml:"order"`
	MaxAttempts int                   `yaml:"maxAttempts"`
	FallbackOn  CascadeFallbackConfig `yaml:"fallbackOn"`
}

// IsEnabled treats an absent enabled key as true.
func (c CascadeConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type BrowserConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BrowserURL string `yaml:"browserURL"`
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

type GoogleVisionConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type VisionConfig struct {
	Enabled         bool               `yaml:"enabled"`
	DefaultProvider string             `yaml:"defaultProvider"`
	OpenAI          OpenAIConfig       `yaml:"openai"`
	Anthropic       AnthropicConfig    `yaml:"anthropic"`
	Google          GoogleVisionConfig `yaml:"google"`
}

type BreakerConfig struct {
	FailureThreshold       int `yaml:"failureThreshold"`
	RecoveryTimeoutSeconds int `yaml:"recoveryTimeoutSeconds"`
	HalfOpenMaxCalls       int `yaml:"halfOpenMaxCalls"`
}

type LogsConfig struct {
	BufferSize      int `yaml:"bufferSize"`
	EvictionSeconds int `yaml:"evictionSeconds"`
}

// RetentionConfig controls TTL-like deletion of old jobs so that the
// database does not grow without bound over time.
type RetentionConfig struct {
	Enabled                bool `yaml:"enabled"`
	CompletedTTLHours      int  `yaml:"completedTTLHours"`
	CleanupIntervalMinutes int  `yaml:"cleanupIntervalMinutes"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Cascade   CascadeConfig   `yaml:"cascade"`
	Browser   BrowserConfig   `yaml:"browser"`
	Vision    VisionConfig    `yaml:"vision"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Logs      LogsConfig      `yaml:"logs"`
	Retention RetentionConfig `yaml:"retention"`
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

// applyDefaults fills zero values so the rest of the code never has to
// re-check them. Booleans stay as decoded; see config.example.yaml.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.RateLimit.DefaultPerMinute == 0 {
		c.RateLimit.DefaultPerMinute = 120
	}
	if c.Scraper.UserAgent == "" {
		c.Scraper.UserAgent = "scrapeforge/1.0"
	}
	if c.Scraper.URLTimeoutSeconds == 0 {
		c.Scraper.URLTimeoutSeconds = 30
	}
	if c.Scraper.DelayMinMs == 0 {
		c.Scraper.DelayMinMs = 1000
	}
	if c.Scraper.DelayMaxMs == 0 {
		c.Scraper.DelayMaxMs = 3000
	}
	if len(c.Cascade.Order) == 0 {
		c.Cascade.Order = []string{"http", "collector", "browser"}
	}
	if c.Cascade.MaxAttempts == 0 {
		c.Cascade.MaxAttempts = 3
	}
	if len(c.Cascade.FallbackOn.StatusCodes) == 0 {
		c.Cascade.FallbackOn.StatusCodes = []int{403, 429, 503}
	}
	if len(c.Cascade.FallbackOn.PoisonPills) == 0 {
		c.Cascade.FallbackOn.PoisonPills = []string{"anti_bot", "rate_limited"}
	}
	if c.Cascade.FallbackOn.MinContentLength == 0 {
		c.Cascade.FallbackOn.MinContentLength = 500
	}
	if c.Logs.BufferSize == 0 {
		c.Logs.BufferSize = 1000
	}
	if c.Logs.EvictionSeconds == 0 {
		c.Logs.EvictionSeconds = 300
	}
	if c.Retention.CompletedTTLHours == 0 {
		c.Retention.CompletedTTLHours = 720
	}
	if c.Retention.CleanupIntervalMinutes == 0 {
		c.Retention.CleanupIntervalMinutes = 60
	}
}
