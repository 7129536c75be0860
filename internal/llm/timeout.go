package llm

import (
	"context"
	"time"

	"github.com/era-ai/era/pkg/types"
)

type timeoutClient struct {
	client  Client
	timeout time.Duration
}

// WithTimeout bounds every Chat call on client by d. A zero d returns client.
func WithTimeout(client Client, d time.Duration) Client {
	if d <= 0 {
		return client
	}
	return &timeoutClient{client: client, timeout: d}
}

func (c *timeoutClient) Chat(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Chat(ctx, req)
}
