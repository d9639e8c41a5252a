package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/policy-audit/internal/resilience"
)

// ResilientOptions configures Resilient.
type ResilientOptions struct {
	// RatePerSec caps outbound calls; 0 disables limiting.
	RatePerSec float64
	Burst      int
	Policy     resilience.Policy
	// Breaker may be nil to disable circuit breaking.
	Breaker *resilience.Breaker
}

// Resilient guards a Client with a rate limiter, a retry policy and a
// circuit breaker. Each attempt waits for a rate token and passes through
// the breaker.
type Resilient struct {
	next    Client
	limiter *rate.Limiter
	policy  resilience.Policy
	breaker *resilience.Breaker
}

// NewResilient wraps next.
func NewResilient(next Client, opts ResilientOptions) *Resilient {
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Resilient{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		policy:  opts.Policy,
		breaker: opts.Breaker,
	}
}

func (r *Resilient) Generate(ctx context.Context, prompt string) (string, error) {
	return resilience.Do(ctx, r.policy, func(ctx context.Context) (string, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "llm: rate limit wait")
		}
		if r.breaker == nil {
			return r.next.Generate(ctx, prompt)
		}
		return resilience.Call(ctx, r.breaker, func(ctx context.Context) (string, error) {
			return r.next.Generate(ctx, prompt)
		})
	})
}
