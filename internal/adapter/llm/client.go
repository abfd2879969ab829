package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrMalformedResponse is returned when a successful response body
// cannot be decoded into a completion.
var ErrMalformedResponse = errors.New("malformed completion response")

// CompletionsPath is the upstream endpoint path.
const CompletionsPath = "/v1/chat/completions"

// Client is the upstream chat completion client.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a new upstream client.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ChatCompletionRequest represents the upstream chat completion request.
// UserID and ConversationID let the upstream keep per-conversation context.
type ChatCompletionRequest struct {
	Model          string        `json:"model,omitempty"`
	Messages       []ChatMessage `json:"messages"`
	Stream         bool          `json:"stream"`
	UserID         string        `json:"userId,omitempty"`
	ConversationID string        `json:"conversationId,omitempty"`
}

// ChatMessage represents a chat message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse represents the upstream chat completion response.
type ChatCompletionResponse struct {
	ID      string   `json:"id,omitempty"`
	Object  string   `json:"object,omitempty"`
	Created int64    `json:"created,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice represents a completion choice. Message content is a pointer so
// a missing field can be told apart from an empty reply.
type Choice struct {
	Index        int           `json:"index"`
	Message      *ReplyMessage `json:"message,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// ReplyMessage is the assistant message inside a choice.
type ReplyMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// APIError represents the error details.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("LLM API error [%d]: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status suggests a transient failure.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Reply extracts choices[0].message.content.
func (r *ChatCompletionResponse) Reply() (string, error) {
	if len(r.Choices) == 0 {
		return "", fmt.Errorf("missing choices[0]: %w", ErrMalformedResponse)
	}
	msg := r.Choices[0].Message
	if msg == nil {
		return "", fmt.Errorf("missing choices[0].message: %w", ErrMalformedResponse)
	}
	if msg.Content == nil {
		return "", fmt.Errorf("missing choices[0].message.content: %w", ErrMalformedResponse)
	}
	return *msg.Content, nil
}

// NewUserRequest builds the single-turn request for a conversation. The
// conversation id doubles as the upstream user id.
func NewUserRequest(conversationID, content string) *ChatCompletionRequest {
	return &ChatCompletionRequest{
		Messages:       []ChatMessage{{Role: "user", Content: content}},
		UserID:         conversationID,
		ConversationID: conversationID,
	}
}

// CreateChatCompletion sends a chat completion request (non-streaming).
func (c *Client) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	req.Stream = false
	if req.Model == "" {
		req.Model = c.model
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+CompletionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return nil, &StatusError{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type),
			}
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return &result, nil
}

// setHeaders sets common request headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
