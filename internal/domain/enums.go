// Package domain defines the core domain models for the session relay.
package domain

import "fmt"

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusOpen  SessionStatus = "open"
	SessionStatusEnded SessionStatus = "ended"
)

// MessageType is the closed set of message payload kinds.
type MessageType int

const (
	MessageTypeText MessageType = iota
	MessageTypeImage
	MessageTypeFile
	MessageTypeRichText
	MessageTypeVoice
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	return t >= MessageTypeText && t <= MessageTypeVoice
}

func (t MessageType) String() string {
	switch t {
	case MessageTypeText:
		return "text"
	case MessageTypeImage:
		return "image"
	case MessageTypeFile:
		return "file"
	case MessageTypeRichText:
		return "rich_text"
	case MessageTypeVoice:
		return "voice"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Sender marks who produced a message. Internal only.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// StreamEventType represents the type of a live feed frame.
type StreamEventType string

const (
	StreamEventMessage      StreamEventType = "message"
	StreamEventSessionEnded StreamEventType = "session_ended"
)
