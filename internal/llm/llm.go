// Package llm adapts language model providers to a single prompt-in,
// text-out call and layers caching, rate limiting, retries and a circuit
// breaker on top.
package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-audit/internal/config"
	"github.com/sells-group/policy-audit/internal/resilience"
)

// Client sends one prompt and returns the model's text reply.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options are the generation parameters shared by providers.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// OptionsFrom extracts generation Options from cfg.
func OptionsFrom(cfg config.LLMConfig) Options {
	return Options{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     time.Duration(cfg.TimeoutSecs) * time.Second,
	}
}

// NewProvider returns the bare provider client named by cfg.LLM.Provider.
func NewProvider(cfg *config.Config) (Client, error) {
	opts := OptionsFrom(cfg.LLM)
	switch cfg.LLM.Provider {
	case "anthropic":
		return NewAnthropic(cfg.LLM.Anthropic.Key, cfg.LLM.Anthropic.BaseURL, opts), nil
	case "openai":
		return NewOpenAI(cfg.LLM.OpenAI.Key, cfg.LLM.OpenAI.BaseURL, opts), nil
	default:
		return nil, eris.Errorf("llm: unsupported provider %q", cfg.LLM.Provider)
	}
}

// New builds the production client: provider, then rate limit, retry and
// circuit breaker, then the response cache.
func New(cfg *config.Config) (Client, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	policy := resilience.NewPolicy(cfg.Retry)
	policy.OnRetry = resilience.LogRetries("llm." + cfg.LLM.Provider)

	var c Client = NewResilient(provider, ResilientOptions{
		RatePerSec: cfg.LLM.RatePerSec,
		Burst:      cfg.LLM.Burst,
		Policy:     policy,
		Breaker:    resilience.NewBreaker("llm."+cfg.LLM.Provider, cfg.Circuit),
	})

	if ttl := time.Duration(cfg.LLM.CacheTTLMins) * time.Minute; ttl > 0 {
		c = NewCached(c, cfg.LLM.Model, ttl)
	}
	return c, nil
}
