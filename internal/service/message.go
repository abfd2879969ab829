package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xiaot623/gogo/sessionrelay/internal/domain"
	"github.com/xiaot623/gogo/sessionrelay/policy"
)

// MaxPageSize bounds QueryMessages page sizes.
const MaxPageSize = 100

// SendMessageInput is a user message to post. A nil SendTime means the
// time of receipt.
type SendMessageInput struct {
	SessionID string
	MessageID string
	Type      domain.MessageType
	Content   string
	SendTime  *time.Time
}

// SendMessageResult holds the stored user message and the AI reply.
type SendMessageResult struct {
	UserMessage domain.Message
	AIMessage   domain.Message
}

// SendMessage appends the user message, relays it upstream and appends
// the reply. Upstream failures do not fail the call; the reply text then
// describes the failure. If the reply cannot be appended the user message
// stays in the log.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageResult, error) {
	if err := validateSend(in); err != nil {
		return nil, err
	}

	locks, err := s.store.Locks(in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	locks.Turn.Lock()
	defer locks.Turn.Unlock()

	session, err := s.store.Get(in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	if err := s.admit(ctx, session, in); err != nil {
		return nil, err
	}

	sendTime := s.now()
	if in.SendTime != nil {
		sendTime = *in.SendTime
	}
	userMsg := domain.Message{
		ID:        in.MessageID,
		SessionID: in.SessionID,
		Type:      in.Type,
		Content:   in.Content,
		SendTime:  sendTime,
		Sender:    domain.SenderUser,
	}
	if err := s.store.Append(in.SessionID, userMsg); err != nil {
		return nil, fmt.Errorf("failed to append user message: %w", err)
	}
	s.metrics.MessageAppended(string(domain.SenderUser))
	s.publishMessage(userMsg)

	// The reply is part of the ledger even if the caller goes away.
	reply := s.relay.Complete(context.WithoutCancel(ctx), in.SessionID, in.Content)

	aiMsg, err := s.store.AppendGenerated(in.SessionID, domain.Message{
		SessionID: in.SessionID,
		Type:      domain.MessageTypeText,
		Content:   reply,
		SendTime:  s.now(),
		Sender:    domain.SenderAI,
	}, s.newID)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", in.SessionID).Str("message_id", in.MessageID).Msg("Failed to append AI reply")
		return nil, fmt.Errorf("failed to append AI message: %w", err)
	}
	s.metrics.MessageAppended(string(domain.SenderAI))
	s.publishMessage(aiMsg)

	s.logger.Debug().
		Str("session_id", in.SessionID).
		Str("user_message_id", userMsg.ID).
		Str("ai_message_id", aiMsg.ID).
		Msg("Message exchanged")

	return &SendMessageResult{UserMessage: userMsg, AIMessage: aiMsg}, nil
}

func validateSend(in SendMessageInput) error {
	if in.SessionID == "" {
		return domain.NewValidationError("sessionId", "is required")
	}
	if in.MessageID == "" {
		return domain.NewValidationError("messageId", "is required")
	}
	if !in.Type.Valid() {
		return domain.NewValidationError("messageType", fmt.Sprintf("unsupported value %d", int(in.Type)))
	}
	return nil
}

// admit runs the send policy. Evaluation failures deny.
func (s *Service) admit(ctx context.Context, session domain.Session, in SendMessageInput) error {
	if s.policy == nil {
		return nil
	}
	decision, err := s.policy.Evaluate(ctx, policy.Input{
		Operation:     "send_message",
		SessionID:     session.ID,
		SessionStatus: string(session.Status),
		MessageType:   int(in.Type),
		ContentLength: len(in.Content),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", session.ID).Msg("Send policy evaluation failed")
		return fmt.Errorf("%w: %v", domain.ErrPolicyDenied, err)
	}
	if decision != policy.DecisionAllow {
		s.logger.Info().Str("session_id", session.ID).Str("decision", decision).Msg("Send rejected by policy")
		return fmt.Errorf("session %q: %w", session.ID, domain.ErrPolicyDenied)
	}
	return nil
}

func (s *Service) publishMessage(msg domain.Message) {
	s.publish(domain.StreamEvent{
		Type:      domain.StreamEventMessage,
		SessionID: msg.SessionID,
		Ts:        s.now().UnixMilli(),
		Message:   &msg,
	})
}

// QueryMessagesInput selects one page of history. An empty StartMessageID
// starts from the newest message.
type QueryMessagesInput struct {
	SessionID      string
	StartMessageID string
	PageNum        int
	PageSize       int
}

// QueryMessages returns one page of the session's history, newest first.
func (s *Service) QueryMessages(ctx context.Context, in QueryMessagesInput) (*domain.MessagePage, error) {
	if in.SessionID == "" {
		return nil, domain.NewValidationError("sessionId", "is required")
	}
	if in.PageNum < 1 {
		return nil, domain.NewValidationError("pageNum", "must be at least 1")
	}
	if in.PageSize < 1 || in.PageSize > MaxPageSize {
		return nil, domain.NewValidationError("pageSize", fmt.Sprintf("must be between 1 and %d", MaxPageSize))
	}

	page, err := s.store.Page(in.SessionID, in.StartMessageID, in.PageNum, in.PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return &page, nil
}
