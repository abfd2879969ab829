// Package relay forwards user text to the upstream completion service and
// folds every failure into plain reply text.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/sessionrelay/internal/adapter/llm"
	"github.com/xiaot623/gogo/sessionrelay/internal/metrics"
)

// Fallback reply prefixes.
const (
	UnavailablePrefix = "service unavailable: "
	ParseErrorPrefix  = "response parse error: "
)

// MaxRetries caps Config.MaxRetries.
const MaxRetries = 10

// Config controls timeouts and retries.
type Config struct {
	// Timeout bounds each upstream attempt.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after an unavailable
	// failure. Zero means a single attempt.
	MaxRetries int
	// Backoff is the base delay before the first retry; it doubles per
	// retry and gets up to the same amount again as jitter.
	Backoff time.Duration
}

// Relay is the completion relay.
type Relay struct {
	client  llm.LLMClient
	cfg     Config
	metrics *metrics.Metrics
	logger  zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a relay. m may be nil.
func New(client llm.LLMClient, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Relay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.MaxRetries = max(0, min(cfg.MaxRetries, MaxRetries))
	return &Relay{
		client:  client,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("component", "relay").Logger(),
		sleep:   sleepContext,
	}
}

// Complete asks the upstream for a reply to userText within the
// conversation. It never fails: transport problems yield
// "service unavailable: <cause>" and unusable bodies yield
// "response parse error: <cause>".
func (r *Relay) Complete(ctx context.Context, conversationID, userText string) string {
	start := time.Now()

	var (
		reply string
		err   error
	)
	for attempt := 0; ; attempt++ {
		reply, err = r.attempt(ctx, conversationID, userText)
		if err == nil || attempt >= r.cfg.MaxRetries || !retryable(err) {
			break
		}

		delay := r.backoff(attempt)
		r.logger.Info().
			Str("conversation_id", conversationID).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("Retrying upstream completion")
		r.metrics.RelayRetried()
		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			break
		}
	}

	elapsed := time.Since(start)
	if err == nil {
		r.metrics.ObserveRelay(metrics.OutcomeOK, elapsed)
		return reply
	}

	if errors.Is(err, llm.ErrMalformedResponse) {
		r.metrics.ObserveRelay(metrics.OutcomeParseError, elapsed)
		r.logger.Warn().Str("conversation_id", conversationID).Err(err).Msg("Upstream response unparseable")
		return ParseErrorPrefix + err.Error()
	}

	r.metrics.ObserveRelay(metrics.OutcomeUnavailable, elapsed)
	r.logger.Warn().Str("conversation_id", conversationID).Err(err).Msg("Upstream unavailable")
	return UnavailablePrefix + err.Error()
}

func (r *Relay) attempt(ctx context.Context, conversationID, userText string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(attemptCtx, llm.NewUserRequest(conversationID, userText))
	if err != nil {
		return "", err
	}
	return resp.Reply()
}

func (r *Relay) backoff(attempt int) time.Duration {
	if r.cfg.Backoff <= 0 {
		return 0
	}
	d := r.cfg.Backoff << min(attempt, MaxRetries)
	return d + rand.N(r.cfg.Backoff+1)
}

// retryable reports whether err is a transient unavailability. Parse
// errors and client-side 4xx responses are final.
func retryable(err error) bool {
	if errors.Is(err, llm.ErrMalformedResponse) {
		return false
	}
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
