// Package store holds live session state: sessions and their message logs.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/xiaot623/gogo/sessionrelay/internal/domain"
)

// maxIDAttempts bounds AppendGenerated's search for an unused id.
const maxIDAttempts = 16

// SessionLocks serialize work on one session above the store. Turn keeps
// each user message and its reply adjacent; End pairs the status read
// with the transition.
type SessionLocks struct {
	Turn sync.Mutex
	End  sync.Mutex
}

// entry is one session plus its log. mu serializes every mutation of
// both, which makes the pair a single unit.
type entry struct {
	mu      sync.Mutex
	session domain.Session
	log     *MessageLog
	locks   SessionLocks
}

// MemoryStore is the in-process session store. Callers only ever get
// copies of sessions and messages.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

func (s *MemoryStore) lookup(sessionID string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %q: %w", sessionID, domain.ErrSessionNotFound)
	}
	return e, nil
}

// Locks returns the caller-side locks of an existing session. They live
// as long as the session does.
func (s *MemoryStore) Locks(sessionID string) (*SessionLocks, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return &e.locks, nil
}

// Create inserts a new open session with an empty log.
func (s *MemoryStore) Create(sessionID string, meta domain.SessionMetadata) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; exists {
		return domain.Session{}, fmt.Errorf("session %q: %w", sessionID, domain.ErrSessionExists)
	}

	e := &entry{
		session: domain.Session{
			ID:              sessionID,
			SessionMetadata: meta,
			CreateTime:      s.now(),
			Status:          domain.SessionStatusOpen,
		},
		log: NewMessageLog(),
	}
	s.sessions[sessionID] = e
	return e.session.Clone(), nil
}

// Get returns a copy of the session.
func (s *MemoryStore) Get(sessionID string) (domain.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

// End marks the session ended and stamps its end time. Ending an already
// ended session stamps the end time again.
func (s *MemoryStore) End(sessionID string) (domain.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.now()
	e.session.Status = domain.SessionStatusEnded
	e.session.EndTime = &now
	return e.session.Clone(), nil
}

// Append adds msg to the session's log.
func (s *MemoryStore) Append(sessionID string, msg domain.Message) error {
	e, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.log.Append(msg)
}

// AppendGenerated assigns msg an id from newID that is unused in the
// session's log and appends it, all under the session lock.
func (s *MemoryStore) AppendGenerated(sessionID string, msg domain.Message, newID func() (string, error)) (domain.Message, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return domain.Message{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := newID()
		if err != nil {
			return domain.Message{}, fmt.Errorf("failed to generate message id: %w", err)
		}
		if e.log.Contains(id) {
			continue
		}
		msg.ID = id
		if err := e.log.Append(msg); err != nil {
			return domain.Message{}, err
		}
		return msg, nil
	}
	return domain.Message{}, fmt.Errorf("no unused message id after %d attempts: %w", maxIDAttempts, domain.ErrDuplicateMessageID)
}

// Page returns one page of the session's history, newest first.
func (s *MemoryStore) Page(sessionID, startID string, pageNum, pageSize int) (domain.MessagePage, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return domain.MessagePage{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.log.Page(startID, pageNum, pageSize), nil
}

// Snapshot returns the session and its full log in arrival order.
func (s *MemoryStore) Snapshot(sessionID string) (domain.Session, []domain.Message, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return domain.Session{}, nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), e.log.Messages(), nil
}

// Len returns the number of sessions held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
