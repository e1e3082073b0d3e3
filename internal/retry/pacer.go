package retry

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a fixed minimum spacing between successive calls to one
// API. A zero spacing never waits.
type Pacer struct {
	limiter *rate.Limiter
	spacing time.Duration
}

// NewPacer returns a pacer that lets one call through every spacing.
func NewPacer(spacing time.Duration) *Pacer {
	limit := rate.Inf
	if spacing > 0 {
		limit = rate.Every(spacing)
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		spacing: spacing,
	}
}

// Wait blocks until the next call may start or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// Spacing returns the configured spacing.
func (p *Pacer) Spacing() time.Duration {
	if p == nil {
		return 0
	}
	return p.spacing
}
