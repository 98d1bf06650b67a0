package llm

import (
	"context"
	"sync"
)

// StaticClient is a scripted Client for tests. Each call pops the next
// queued response; when the queue is exhausted the last response repeats.
// Set Err to make every call fail.
type StaticClient struct {
	mu        sync.Mutex
	responses []string
	index     int
	Err       error

	// Calls records every message slice passed in, for assertions.
	Calls [][]Message
}

// NewStaticClient creates a client that replays responses in order.
func NewStaticClient(responses ...string) *StaticClient {
	return &StaticClient{responses: responses}
}

// Completion implements Client.
func (c *StaticClient) Completion(_ context.Context, messages []Message, _ Options) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, CloneMessages(messages))
	if c.Err != nil {
		return "", c.Err
	}
	if len(c.responses) == 0 {
		return "", ErrEmptyResponse
	}
	resp := c.responses[min(c.index, len(c.responses)-1)]
	c.index++
	return resp, nil
}

// StructuredCompletion implements Client.
func (c *StaticClient) StructuredCompletion(ctx context.Context, messages []Message, target any, opts Options) error {
	raw, err := c.Completion(ctx, messages, opts)
	if err != nil {
		return err
	}
	return DecodeJSON(raw, target)
}

// CallCount returns how many completion calls were made.
func (c *StaticClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}
