package evaluator

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedClient caps the query rate of an inner client.
type RateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// RateLimited wraps inner with a token bucket of qps and burst. A qps <= 0
// returns inner unchanged.
func RateLimited(inner Client, qps float64, burst int) Client {
	if qps <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{inner: inner, limiter: rate.NewLimiter(rate.Limit(qps), burst)}
}

// Query waits for a token, then delegates.
func (c *RateLimitedClient) Query(ctx context.Context, claim string, t Template, model string) (Sample, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			// Wait refuses up front when the next token lands after the deadline.
			return Sample{}, fmt.Errorf("rate limit wait: %w: %v", context.DeadlineExceeded, err)
		}
		return Sample{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return c.inner.Query(ctx, claim, t, model)
}
