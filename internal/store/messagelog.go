package store

import (
	"fmt"
	"slices"

	"github.com/xiaot623/gogo/sessionrelay/internal/domain"
)

// MessageLog is the append-only message history of one session.
// It is not safe for concurrent use; MemoryStore guards it with the
// owning session's lock.
type MessageLog struct {
	messages []domain.Message
	index    map[string]int
}

// NewMessageLog creates an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{index: make(map[string]int)}
}

// Len returns the number of messages in the log.
func (l *MessageLog) Len() int {
	return len(l.messages)
}

// Contains reports whether a message with id is already logged.
func (l *MessageLog) Contains(id string) bool {
	_, ok := l.index[id]
	return ok
}

// Append adds msg at the tail of the log.
func (l *MessageLog) Append(msg domain.Message) error {
	if l.Contains(msg.ID) {
		return fmt.Errorf("message %q: %w", msg.ID, domain.ErrDuplicateMessageID)
	}
	l.index[msg.ID] = len(l.messages)
	l.messages = append(l.messages, msg)
	return nil
}

// Messages returns a copy of the log in physical (arrival) order.
func (l *MessageLog) Messages() []domain.Message {
	return slices.Clone(l.messages)
}

// Page returns one page of the log ordered by send time, newest first.
// Equal send times keep the most recently appended message first. When
// startID names a message in the view, only messages strictly after it
// are considered; an unknown startID leaves the view unfiltered.
func (l *MessageLog) Page(startID string, pageNum, pageSize int) domain.MessagePage {
	view := make([]int, len(l.messages))
	for i := range view {
		view[i] = len(l.messages) - 1 - i
	}
	slices.SortStableFunc(view, func(a, b int) int {
		return l.messages[b].SendTime.Compare(l.messages[a].SendTime)
	})

	if startID != "" {
		if pos := slices.IndexFunc(view, func(i int) bool { return l.messages[i].ID == startID }); pos >= 0 {
			view = view[pos+1:]
		}
	}

	page := domain.MessagePage{
		Total:    len(view),
		PageSize: pageSize,
		Current:  pageNum,
		Records:  []domain.Message{},
	}

	// Bound pageNum before multiplying so huge values cannot wrap around.
	if pageNum < 1 || pageSize < 1 || pageNum-1 > (len(view)-1)/pageSize {
		return page
	}
	start := (pageNum - 1) * pageSize
	if start >= len(view) {
		return page
	}
	end := min(start+pageSize, len(view))
	for _, i := range view[start:end] {
		page.Records = append(page.Records, l.messages[i])
	}
	return page
}
