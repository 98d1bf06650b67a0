// Package llm defines the boundary the council core uses to talk to a
// language model. The core consumes only this interface; provider
// adapters live outside the core.
package llm

import (
	"context"
	"errors"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message sent to or received from the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options tunes a single completion call. Zero values mean "provider default".
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// ErrEmptyResponse is returned when the provider answers with no content.
var ErrEmptyResponse = errors.New("llm: empty response")

// Client is the minimal completion surface the core requires.
//
// Implementations must not mutate the caller's message slice: callers reuse
// their conversation history across calls, so any system-prompt injection or
// truncation has to happen on a copy.
type Client interface {
	// Completion sends messages and returns the assistant's text.
	Completion(ctx context.Context, messages []Message, opts Options) (string, error)

	// StructuredCompletion sends messages with JSON mode forced and decodes
	// the response into target, which must be a pointer to a struct with
	// json tags.
	StructuredCompletion(ctx context.Context, messages []Message, target any, opts Options) error
}

// CloneMessages returns a copy of messages safe for local mutation.
func CloneMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}
