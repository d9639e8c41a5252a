package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Cached memoizes non-empty replies by model and prompt. Prompts are
// deterministic per question and context, so repeated audits of the same
// document against an unchanged corpus skip the model.
type Cached struct {
	next  Client
	model string
	cache *cache.Cache
}

// NewCached wraps next with an in-memory cache whose entries expire after ttl.
func NewCached(next Client, model string, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		model: model,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *Cached) Generate(ctx context.Context, prompt string) (string, error) {
	key := c.key(prompt)
	if v, ok := c.cache.Get(key); ok {
		zap.L().Debug("llm: cache hit", zap.String("key", key[:12]))
		return v.(string), nil
	}

	out, err := c.next.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) != "" {
		c.cache.SetDefault(key, out)
	}
	return out, nil
}

// Len returns the number of cached replies, including expired ones not
// yet evicted.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}

func (c *Cached) key(prompt string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}
