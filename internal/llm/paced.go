package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// PacedClient spaces calls to the wrapped client at least delay apart.
type PacedClient struct {
	next    Client
	limiter *rate.Limiter
}

// WithPacing wraps client so consecutive calls are at least delay apart.
// A non-positive delay returns client unchanged.
func WithPacing(client Client, delay time.Duration) Client {
	if delay <= 0 {
		return client
	}
	return &PacedClient{
		next:    client,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
	}
}

// ChatCompletion waits for the pacing window, then delegates.
func (p *PacedClient) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.next.ChatCompletion(ctx, req)
}
