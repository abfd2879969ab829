package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/xiaot623/gogo/sessionrelay/internal/domain"
)

// CreateSessionInput is the payload for CreateSession.
type CreateSessionInput struct {
	SessionID string
	domain.SessionMetadata
}

// CreateSession opens a new session with the caller's id.
func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (*domain.Session, error) {
	if in.SessionID == "" {
		return nil, domain.NewValidationError("sessionId", "is required")
	}

	session, err := s.store.Create(in.SessionID, in.SessionMetadata)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.metrics.SessionCreated()
	s.logger.Info().Str("session_id", session.ID).Str("consult_type", session.ConsultType).Msg("Session created")
	return &session, nil
}

// GetSession returns the session's current state.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.store.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// EndSession marks the session ended, archives its transcript when an
// archive is configured and notifies live feed subscribers. Ending an
// ended session stamps a new end time and archives again.
func (s *Service) EndSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	locks, err := s.store.Locks(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	locks.End.Lock()
	before, err := s.store.Get(sessionID)
	if err != nil {
		locks.End.Unlock()
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	session, err := s.store.End(sessionID)
	locks.End.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}

	s.metrics.SessionEnded(!before.Ended())
	s.logger.Info().Str("session_id", sessionID).Bool("repeat", before.Ended()).Msg("Session ended")

	s.archiveSession(context.WithoutCancel(ctx), sessionID)

	s.publish(domain.StreamEvent{
		Type:      domain.StreamEventSessionEnded,
		SessionID: sessionID,
		Ts:        session.EndTime.UnixMilli(),
	})
	return &session, nil
}

// archiveSession writes the transcript. Failures are logged only; the
// live session has already ended.
func (s *Service) archiveSession(ctx context.Context, sessionID string) {
	if s.archive == nil {
		return
	}
	session, messages, err := s.store.Snapshot(sessionID)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to snapshot session for archive")
		return
	}
	if err := s.archive.ArchiveSession(ctx, session, messages); err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to archive session")
		return
	}
	s.logger.Debug().Str("session_id", sessionID).Int("messages", len(messages)).Msg("Session archived")
}

// ErrArchiveDisabled is returned by GetArchivedTranscript when no
// archive is configured.
var ErrArchiveDisabled = errors.New("transcript archive disabled")

// ArchivedTranscript is an ended session as it was archived.
type ArchivedTranscript struct {
	Session  domain.Session   `json:"session"`
	Messages []domain.Message `json:"messages"`
}

// GetArchivedTranscript reads a transcript back from the archive.
func (s *Service) GetArchivedTranscript(ctx context.Context, sessionID string) (*ArchivedTranscript, error) {
	if s.archive == nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveDisabled, domain.ErrSessionNotFound)
	}
	session, err := s.archive.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get archived session: %w", err)
	}
	messages, err := s.archive.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get archived messages: %w", err)
	}
	return &ArchivedTranscript{Session: *session, Messages: messages}, nil
}
