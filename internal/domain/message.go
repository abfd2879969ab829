package domain

import "time"

// Message represents a single entry in a session's message log.
// Sender is bookkeeping only and is never serialized.
type Message struct {
	ID        string      `json:"messageId"`
	SessionID string      `json:"sessionId"`
	Type      MessageType `json:"messageType"`
	Content   string      `json:"content"`
	SendTime  time.Time   `json:"sendTime"`
	Sender    Sender      `json:"-"`
}

// MessagePage is one page of a session's history, newest first.
type MessagePage struct {
	Total    int       `json:"total"`
	PageSize int       `json:"pageSize"`
	Current  int       `json:"current"`
	Records  []Message `json:"records"`
}

// StreamEvent is a frame pushed to live feed subscribers.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	SessionID string          `json:"sessionId"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Message   *Message        `json:"message,omitempty"`
}
