package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// FakeUpstream is a completion endpoint that records the requests it sees.
type FakeUpstream struct {
	*httptest.Server

	mu       sync.Mutex
	requests []map[string]interface{}
}

// NewFakeUpstream answers every completion with reply after delay.
func NewFakeUpstream(t *testing.T, reply string, delay time.Duration) *FakeUpstream {
	t.Helper()

	f := &FakeUpstream{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.requests = append(f.requests, body)
		f.mu.Unlock()

		if delay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []interface{}{
				map[string]interface{}{
					"index":         0,
					"message":       map[string]interface{}{"role": "assistant", "content": reply},
					"finish_reason": "stop",
				},
			},
		})
	}))
	t.Cleanup(f.Close)

	return f
}

// Requests returns the decoded request bodies received so far.
func (f *FakeUpstream) Requests() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.requests...)
}
