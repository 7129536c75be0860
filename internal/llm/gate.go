package llm

import (
	"context"
	"sync/atomic"

	"github.com/era-ai/era/pkg/types"
)

// DefaultMaxConcurrent is the default number of model calls allowed in flight.
const DefaultMaxConcurrent = 10

// Gate is a counting semaphore shared by every model call in the process.
type Gate struct {
	slots    chan struct{}
	inFlight atomic.Int64
}

// NewGate creates a Gate admitting up to n concurrent calls.
func NewGate(n int) *Gate {
	if n <= 0 {
		n = DefaultMaxConcurrent
	}
	return &Gate{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		g.inFlight.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	<-g.slots
}

// Capacity returns the gate size.
func (g *Gate) Capacity() int {
	return cap(g.slots)
}

// InFlight returns the number of calls currently holding a slot.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

type gatedClient struct {
	client Client
	gate   *Gate
}

// Gated wraps client so every Chat call holds a gate slot for its duration.
func Gated(client Client, gate *Gate) Client {
	return &gatedClient{client: client, gate: gate}
}

func (c *gatedClient) Chat(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.gate.Release()

	return c.client.Chat(ctx, req)
}
