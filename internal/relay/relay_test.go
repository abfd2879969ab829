package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/gogo/sessionrelay/internal/adapter/llm"
	"github.com/xiaot623/gogo/sessionrelay/internal/metrics"
)

func newTestRelay(t *testing.T, handler http.HandlerFunc, cfg Config) (*Relay, *metrics.Metrics) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	m := metrics.NewMetrics()
	r := New(llm.NewClient(server.URL, "", "", cfg.Timeout), cfg, m, zerolog.Nop())
	r.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return r, m
}

func TestCompleteSuccess(t *testing.T) {
	r, m := newTestRelay(t, func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"hi there"}}]}`)
	}, Config{Timeout: time.Second})

	assert.Equal(t, "hi there", r.Complete(context.Background(), "s1", "hello"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayRequestsTotal.WithLabelValues(metrics.OutcomeOK)))
}

func TestCompleteTimeoutFallsBack(t *testing.T) {
	r, m := newTestRelay(t, func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-req.Context().Done():
		case <-time.After(time.Second):
		}
	}, Config{Timeout: 30 * time.Millisecond})

	start := time.Now()
	reply := r.Complete(context.Background(), "s1", "hello")

	assert.True(t, strings.HasPrefix(reply, UnavailablePrefix), reply)
	assert.Contains(t, reply, "unavailable")
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayRequestsTotal.WithLabelValues(metrics.OutcomeUnavailable)))
}

func TestCompleteConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	r := New(llm.NewClient(url, "", "", time.Second), Config{Timeout: time.Second}, nil, zerolog.Nop())
	reply := r.Complete(context.Background(), "s1", "hello")
	assert.True(t, strings.HasPrefix(reply, UnavailablePrefix), reply)
}

func TestCompleteNonSuccessStatus(t *testing.T) {
	r, _ := newTestRelay(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}, Config{Timeout: time.Second})

	reply := r.Complete(context.Background(), "s1", "hello")
	assert.Equal(t, UnavailablePrefix+"LLM API error [500]: boom", reply)
}

func TestCompleteParseErrors(t *testing.T) {
	bodies := map[string]string{
		"not json":        `<html>oops</html>`,
		"missing choices": `{"id":"x"}`,
		"missing content": `{"choices":[{"message":{"role":"assistant"}}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			r, m := newTestRelay(t, func(w http.ResponseWriter, req *http.Request) {
				fmt.Fprint(w, body)
			}, Config{Timeout: time.Second, MaxRetries: 3})

			reply := r.Complete(context.Background(), "s1", "hello")
			assert.True(t, strings.HasPrefix(reply, ParseErrorPrefix), reply)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayRequestsTotal.WithLabelValues(metrics.OutcomeParseError)))
			assert.Equal(t, 0.0, testutil.ToFloat64(m.RelayRetriesTotal))
		})
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	r, m := newTestRelay(t, func(w http.ResponseWriter, req *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"third time lucky"}}]}`)
	}, Config{Timeout: time.Second, MaxRetries: 2, Backoff: time.Millisecond})

	assert.Equal(t, "third time lucky", r.Complete(context.Background(), "s1", "hello"))
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RelayRetriesTotal))
}

func TestCompleteRetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	r, _ := newTestRelay(t, func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, Config{Timeout: time.Second, MaxRetries: 1})

	reply := r.Complete(context.Background(), "s1", "hello")
	assert.True(t, strings.HasPrefix(reply, UnavailablePrefix), reply)
	assert.EqualValues(t, 2, calls.Load())
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	r, _ := newTestRelay(t, func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}, Config{Timeout: time.Second, MaxRetries: 3})

	r.Complete(context.Background(), "s1", "hello")
	assert.EqualValues(t, 1, calls.Load())
}

func TestCompleteSingleAttemptByDefault(t *testing.T) {
	var calls atomic.Int32
	r, _ := newTestRelay(t, func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, Config{Timeout: time.Second})

	r.Complete(context.Background(), "s1", "hello")
	assert.EqualValues(t, 1, calls.Load())
}

func TestBackoffGrowsWithJitter(t *testing.T) {
	r := New(llm.NewMockClient(), Config{Backoff: 100 * time.Millisecond}, nil, zerolog.Nop())

	for attempt := 0; attempt < 3; attempt++ {
		floor := 100 * time.Millisecond << attempt
		d := r.backoff(attempt)
		assert.GreaterOrEqual(t, d, floor)
		assert.LessOrEqual(t, d, floor+100*time.Millisecond)
	}
}

func TestRetriesAreCapped(t *testing.T) {
	var calls atomic.Int32
	r, _ := newTestRelay(t, func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, Config{Timeout: time.Second, MaxRetries: 1000})

	r.Complete(context.Background(), "s1", "hello")
	assert.EqualValues(t, MaxRetries+1, calls.Load())

	b := New(llm.NewMockClient(), Config{Backoff: time.Millisecond}, nil, zerolog.Nop())
	d := b.backoff(63)
	assert.GreaterOrEqual(t, d, time.Millisecond<<MaxRetries)
	assert.LessOrEqual(t, d, time.Millisecond<<MaxRetries+time.Millisecond)
}
