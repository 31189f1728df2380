package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/rogers-f/deliberate/internal/metrics"
)

// Throttled wraps a Client with a token-bucket limiter so concurrent
// sessions sharing one provider stay under its request rate.
type Throttled struct {
	Client
	limiter *rate.Limiter
	metrics *metrics.Recorder
}

// NewThrottled allows rps requests per second with the given burst. A
// non-positive rps returns inner unchanged.
func NewThrottled(inner Client, rps float64, burst int, m *metrics.Recorder) Client {
	if rps <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{Client: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst), metrics: m}
}

// Complete waits for a token, then delegates.
func (t *Throttled) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, callError(t.Provider(), err)
	}
	t.metrics.ObserveThrottle(t.Provider(), time.Since(start))
	return t.Client.Complete(ctx, req)
}
