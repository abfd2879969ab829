package domain

import "time"

// SessionMetadata holds the optional free-form fields supplied at creation.
type SessionMetadata struct {
	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	ConsultType   string `json:"consultType,omitempty"`
	HealthInfoURL string `json:"healthInfoUrl,omitempty"`
}

// Session represents a conversation between a user and the AI backend.
type Session struct {
	ID string `json:"sessionId"`
	SessionMetadata
	CreateTime time.Time     `json:"createTime"`
	Status     SessionStatus `json:"status"`
	EndTime    *time.Time    `json:"endTime,omitempty"`
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	if s.EndTime != nil {
		t := *s.EndTime
		s.EndTime = &t
	}
	return s
}

// Ended reports whether the session has been ended.
func (s Session) Ended() bool {
	return s.Status == SessionStatusEnded
}
