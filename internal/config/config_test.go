package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "policies.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.LLM.Model)
	assert.Equal(t, 1024, cfg.LLM.MaxTokens)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.True(t, cfg.Retrieval.SnippetMode)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
	assert.Equal(t, 3, cfg.Retrieval.PerDoc)
	assert.Equal(t, 800, cfg.Retrieval.MaxSnippetChars)
	assert.Equal(t, 18000, cfg.Retrieval.MaxContextChars)
	assert.Equal(t, 12000, cfg.Retrieval.PromptContextChars)
	assert.Equal(t, 8, cfg.Audit.Workers)
	assert.Equal(t, 45*time.Second, cfg.Audit.QuestionTimeout())
	assert.Equal(t, 10*time.Minute, cfg.Audit.BatchTimeout())
	assert.True(t, cfg.Audit.PersistRuns)
	assert.Equal(t, "native", cfg.OCR.Provider)
	assert.Equal(t, "policy_documents", cfg.Populate.PolicyDir)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/policies
llm:
  provider: openai
  model: gpt-4o-mini
retrieval:
  snippet_mode: false
  top_k: 5
audit:
  workers: 4
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/policies", cfg.Store.DatabaseURL)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.False(t, cfg.Retrieval.SnippetMode)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 4, cfg.Audit.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 18000, cfg.Retrieval.MaxContextChars)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("AUDIT_STORE_DRIVER", "sqlite")
	t.Setenv("AUDIT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvBindsSecrets(t *testing.T) {
	chdirTemp(t)

	t.Setenv("AUDIT_LLM_ANTHROPIC_KEY", "sk-ant-test")
	t.Setenv("AUDIT_AUDIT_WORKERS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", cfg.LLM.Anthropic.Key)
	assert.Equal(t, 2, cfg.Audit.Workers)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "policies.db"
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.Model = "claude-haiku-4-5-20251001"
	cfg.LLM.Anthropic.Key = "sk-ant-key"
	cfg.Audit.Workers = 8
	cfg.Audit.QuestionTimeoutSecs = 45
	cfg.Retrieval.TopK = 7
	cfg.Retrieval.MaxContextChars = 18000
	cfg.Retrieval.PromptContextChars = 12000
	cfg.OCR.Provider = "native"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateAudit_AllPresent(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("audit"))
	assert.NoError(t, cfg.Validate("serve"))
	assert.NoError(t, cfg.Validate("ping"))
}

func TestValidateAudit_MissingKey(t *testing.T) {
	cfg := validDefaults()
	cfg.LLM.Anthropic.Key = ""

	err := cfg.Validate("audit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.anthropic.key is required")
}

func TestValidateAudit_OpenAIKey(t *testing.T) {
	cfg := validDefaults()
	cfg.LLM.Provider = "openai"

	err := cfg.Validate("audit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.openai.key is required")

	cfg.LLM.OpenAI.Key = "sk-test"
	assert.NoError(t, cfg.Validate("audit"))
}

func TestValidateAudit_UnknownProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.LLM.Provider = "gemini"

	err := cfg.Validate("audit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `llm.provider "gemini" is not supported`)
}

func TestValidateWorkerBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Audit.Workers = 0
	err := cfg.Validate("audit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit.workers must be between 1 and 64")

	cfg.Audit.Workers = 65
	assert.Error(t, cfg.Validate("audit"))

	cfg.Audit.Workers = 64
	assert.NoError(t, cfg.Validate("audit"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidatePopulate_NoModelNeeded(t *testing.T) {
	cfg := validDefaults()
	cfg.LLM.Anthropic.Key = ""

	assert.NoError(t, cfg.Validate("populate"))
}

func TestValidatePopulate_MistralNeedsKey(t *testing.T) {
	cfg := validDefaults()
	cfg.OCR.Provider = "mistral"

	err := cfg.Validate("populate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocr.mistral_key is required")
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mongo"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("populate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mongo" is not supported`)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestRedacted(t *testing.T) {
	cfg := validDefaults()
	cfg.OCR.MistralKey = "mistral-secret"
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://user:pw@host/db"

	out := cfg.Redacted()
	assert.Equal(t, "********", out.LLM.Anthropic.Key)
	assert.Equal(t, "", out.LLM.OpenAI.Key)
	assert.Equal(t, "********", out.OCR.MistralKey)
	assert.Equal(t, "********", out.Store.DatabaseURL)

	// Original untouched.
	assert.Equal(t, "sk-ant-key", cfg.LLM.Anthropic.Key)
}
