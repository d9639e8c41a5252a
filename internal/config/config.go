package config

import (
	"fmt"
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
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Retrieval RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Populate  PopulateConfig  `yaml:"populate" mapstructure:"populate"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the policy page store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LLMConfig selects and configures the language model.
type LLMConfig struct {
	Provider     string          `yaml:"provider" mapstructure:"provider"`
	Model        string          `yaml:"model" mapstructure:"model"`
	MaxTokens    int             `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature  float64         `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs  int             `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLMins int             `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
	RatePerSec   float64         `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst        int             `yaml:"burst" mapstructure:"burst"`
	Anthropic    AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI       OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// RetryConfig configures retries of model calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter           float64 `yaml:"jitter" mapstructure:"jitter"`
}

// CircuitConfig configures the model circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// RetrievalConfig controls how policy context is assembled for a question.
type RetrievalConfig struct {
	SnippetMode        bool `yaml:"snippet_mode" mapstructure:"snippet_mode"`
	TopK               int  `yaml:"top_k" mapstructure:"top_k"`
	PerDoc             int  `yaml:"per_doc" mapstructure:"per_doc"`
	MaxSnippetChars    int  `yaml:"max_snippet_chars" mapstructure:"max_snippet_chars"`
	MaxContextChars    int  `yaml:"max_context_chars" mapstructure:"max_context_chars"`
	PromptContextChars int  `yaml:"prompt_context_chars" mapstructure:"prompt_context_chars"`
}

// AuditConfig configures question fan-out.
type AuditConfig struct {
	Workers             int  `yaml:"workers" mapstructure:"workers"`
	QuestionTimeoutSecs int  `yaml:"question_timeout_secs" mapstructure:"question_timeout_secs"`
	BatchTimeoutSecs    int  `yaml:"batch_timeout_secs" mapstructure:"batch_timeout_secs"`
	PersistRuns         bool `yaml:"persist_runs" mapstructure:"persist_runs"`
}

// QuestionTimeout returns the per-question deadline.
func (a AuditConfig) QuestionTimeout() time.Duration {
	return time.Duration(a.QuestionTimeoutSecs) * time.Second
}

// BatchTimeout returns the whole-document deadline.
func (a AuditConfig) BatchTimeout() time.Duration {
	return time.Duration(a.BatchTimeoutSecs) * time.Second
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_key" mapstructure:"mistral_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// PopulateConfig configures loading policy documents into the store.
type PopulateConfig struct {
	PolicyDir      string   `yaml:"policy_dir" mapstructure:"policy_dir"`
	FTPSources     []string `yaml:"ftp_sources" mapstructure:"ftp_sources"`
	FTPTimeoutSecs int      `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
}

// ServerConfig configures the upload server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("AUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys without a meaningful default are still registered so
	// that AutomaticEnv can bind them during Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "policies.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout_secs", 60)
	v.SetDefault("llm.cache_ttl_mins", 60)
	v.SetDefault("llm.rate_per_sec", 4.0)
	v.SetDefault("llm.burst", 8)
	v.SetDefault("llm.anthropic.key", "")
	v.SetDefault("llm.anthropic.base_url", "")
	v.SetDefault("llm.openai.key", "")
	v.SetDefault("llm.openai.base_url", "")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("retrieval.snippet_mode", true)
	v.SetDefault("retrieval.top_k", 7)
	v.SetDefault("retrieval.per_doc", 3)
	v.SetDefault("retrieval.max_snippet_chars", 800)
	v.SetDefault("retrieval.max_context_chars", 18000)
	v.SetDefault("retrieval.prompt_context_chars", 12000)
	v.SetDefault("audit.workers", 8)
	v.SetDefault("audit.question_timeout_secs", 45)
	v.SetDefault("audit.batch_timeout_secs", 600)
	v.SetDefault("audit.persist_runs", true)
	v.SetDefault("ocr.provider", "native")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_key", "")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("populate.policy_dir", "policy_documents")
	v.SetDefault("populate.ftp_sources", []string{})
	v.SetDefault("populate.ftp_timeout_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks that the settings required by the given mode are present
// and within bounds. Modes: "audit", "serve", "ping", "populate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "audit", "serve", "ping":
		errs = append(errs, c.validateLLM()...)
		if mode != "ping" {
			errs = append(errs, c.validateAudit()...)
			errs = append(errs, c.validateOCR()...)
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "populate":
		errs = append(errs, c.validateOCR()...)
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateLLM() []string {
	var errs []string
	switch c.LLM.Provider {
	case "anthropic":
		if c.LLM.Anthropic.Key == "" {
			errs = append(errs, "llm.anthropic.key is required")
		}
	case "openai":
		if c.LLM.OpenAI.Key == "" {
			errs = append(errs, "llm.openai.key is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, "llm.model is required")
	}
	return errs
}

func (c *Config) validateAudit() []string {
	var errs []string
	if c.Audit.Workers < 1 || c.Audit.Workers > 64 {
		errs = append(errs, "audit.workers must be between 1 and 64")
	}
	if c.Audit.QuestionTimeoutSecs <= 0 {
		errs = append(errs, "audit.question_timeout_secs must be > 0")
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, "retrieval.top_k must be > 0")
	}
	if c.Retrieval.MaxContextChars <= 0 || c.Retrieval.PromptContextChars <= 0 {
		errs = append(errs, "retrieval context limits must be > 0")
	}
	return errs
}

func (c *Config) validateOCR() []string {
	switch c.OCR.Provider {
	case "native", "pdftotext", "":
		return nil
	case "mistral":
		if c.OCR.MistralKey == "" {
			return []string{"ocr.mistral_key is required"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("ocr.provider %q is not supported", c.OCR.Provider)}
	}
}

// Redacted returns a copy of the config with secrets masked, for display.
func (c *Config) Redacted() Config {
	out := *c
	out.LLM.Anthropic.Key = mask(out.LLM.Anthropic.Key)
	out.LLM.OpenAI.Key = mask(out.LLM.OpenAI.Key)
	out.OCR.MistralKey = mask(out.OCR.MistralKey)
	if out.Store.Driver == "postgres" {
		out.Store.DatabaseURL = mask(out.Store.DatabaseURL)
	}
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
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
