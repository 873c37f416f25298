package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Quota     QuotaConfig     `yaml:"quota" mapstructure:"quota"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Task      TaskConfig      `yaml:"task" mapstructure:"task"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// OpenAIConfig holds OpenAI API settings for the monitoring channel.
// An empty Key disables the channel.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
	// RPS caps outgoing requests per second. Zero disables the limiter.
	RPS float64 `yaml:"rps" mapstructure:"rps"`
}

// GeminiConfig holds Gemini API settings for the monitoring channel.
// An empty Key disables the channel.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
	// RPS caps outgoing requests per second. Zero disables the limiter.
	RPS float64 `yaml:"rps" mapstructure:"rps"`
}

// AnthropicConfig holds Anthropic API settings for site summarization.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// QuotaConfig configures the quota gate.
type QuotaConfig struct {
	// Enforce switches the gate from the always-permit policy to plan limits.
	Enforce         bool `yaml:"enforce" mapstructure:"enforce"`
	Prompts         int  `yaml:"prompts" mapstructure:"prompts"`
	Companies       int  `yaml:"companies" mapstructure:"companies"`
	Recommendations int  `yaml:"recommendations" mapstructure:"recommendations"`
	LLMCalls        int  `yaml:"llm_calls" mapstructure:"llm_calls"`
}

// SchedulerConfig configures the refresh scheduler.
type SchedulerConfig struct {
	ClaimBatchSize int `yaml:"claim_batch_size" mapstructure:"claim_batch_size"`
	// ClaimLeaseSecs is the age after which an uncleared claim marker is
	// considered abandoned and becomes reclaimable.
	ClaimLeaseSecs int `yaml:"claim_lease_secs" mapstructure:"claim_lease_secs"`
	// CronSpec is the in-process cadence used by serve; external crons use
	// the trigger endpoint instead.
	CronSpec   string `yaml:"cron_spec" mapstructure:"cron_spec"`
	CronSecret string `yaml:"cron_secret" mapstructure:"cron_secret"`
}

// ClaimLease returns the lease duration for claim markers.
func (c SchedulerConfig) ClaimLease() time.Duration {
	return time.Duration(c.ClaimLeaseSecs) * time.Second
}

// FetchConfig configures the website fetch state machine.
type FetchConfig struct {
	Attempts     int `yaml:"attempts" mapstructure:"attempts"`
	RetryDelayMS int `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	TimeoutSecs  int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RetryDelay returns the inter-attempt delay.
func (c FetchConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// TaskConfig configures the task dispatcher.
type TaskConfig struct {
	// Mode selects how dispatched jobs execute: "inline" or "queue".
	Mode       string `yaml:"mode" mapstructure:"mode"`
	Workers    int    `yaml:"workers" mapstructure:"workers"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
	PollSecs   int    `yaml:"poll_secs" mapstructure:"poll_secs"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int    `yaml:"port" mapstructure:"port"`
	CORSOrigins string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROMPTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secrets default to empty so env-only values bind without a
	// config file present.
	v.SetDefault("store.database_url", "")
	v.SetDefault("openai.key", "")
	v.SetDefault("gemini.key", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("scheduler.cron_secret", "")
	v.SetDefault("server.cors_origins", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-search-preview")
	v.SetDefault("openai.rps", 2.0)
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.rps", 2.0)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("quota.enforce", false)
	v.SetDefault("quota.prompts", 25)
	v.SetDefault("quota.companies", 3)
	v.SetDefault("quota.recommendations", 50)
	v.SetDefault("quota.llm_calls", 1000)
	v.SetDefault("scheduler.claim_batch_size", 500)
	v.SetDefault("scheduler.claim_lease_secs", 3600)
	v.SetDefault("scheduler.cron_spec", "* * * * *")
	v.SetDefault("fetch.attempts", 3)
	v.SetDefault("fetch.retry_delay_ms", 1000)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("task.mode", "queue")
	v.SetDefault("task.workers", 4)
	v.SetDefault("task.max_retries", 5)
	v.SetDefault("task.poll_secs", 2)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
