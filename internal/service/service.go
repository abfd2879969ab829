// Package service implements the session operations on top of the store,
// the completion relay, the send policy and the live feed.
package service

import (
	"context"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/sessionrelay/internal/domain"
	"github.com/xiaot623/gogo/sessionrelay/internal/metrics"
	"github.com/xiaot623/gogo/sessionrelay/internal/store"
	"github.com/xiaot623/gogo/sessionrelay/policy"
)

// aiMessageIDLength is the length of generated AI message ids.
const aiMessageIDLength = 8

// Relayer produces the AI reply for a user message. It never fails;
// upstream problems come back as reply text.
type Relayer interface {
	Complete(ctx context.Context, conversationID, userText string) string
}

// PolicyEvaluator decides whether a send is admitted.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, input policy.Input) (string, error)
}

// Archiver persists transcripts of ended sessions.
type Archiver interface {
	ArchiveSession(ctx context.Context, session domain.Session, messages []domain.Message) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetMessages(ctx context.Context, sessionID string) ([]domain.Message, error)
}

// Publisher pushes events to live feed subscribers without blocking.
type Publisher interface {
	Publish(event domain.StreamEvent)
}

type Service struct {
	store     *store.MemoryStore
	relay     Relayer
	policy    PolicyEvaluator
	archive   Archiver
	publisher Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	newID func() (string, error)
	now   func() time.Time
}

// New creates the service. policyEngine, archive and publisher are
// optional and may be nil, as may m.
func New(st *store.MemoryStore, relay Relayer, policyEngine PolicyEvaluator, archive Archiver, publisher Publisher, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		store:     st,
		relay:     relay,
		policy:    policyEngine,
		archive:   archive,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With().Str("component", "service").Logger(),
		newID:     func() (string, error) { return gonanoid.New(aiMessageIDLength) },
		now:       time.Now,
	}
}

func (s *Service) publish(event domain.StreamEvent) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event)
}

// SessionCount returns the number of live sessions.
func (s *Service) SessionCount() int {
	return s.store.Len()
}
