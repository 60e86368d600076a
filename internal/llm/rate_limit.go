package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter caps the request rate against a provider API.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter creates a rate limiter with the specified requests per second
// and burst capacity.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Wait blocks until the request can proceed or the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
