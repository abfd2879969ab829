// Package llm provides an abstraction for the upstream chat completion API.
package llm

import "context"

// LLMClient defines the interface for upstream completion calls.
type LLMClient interface {
	// CreateChatCompletion sends a chat completion request (non-streaming).
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// Ensure Client implements LLMClient interface.
var _ LLMClient = (*Client)(nil)
