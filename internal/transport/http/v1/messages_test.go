package v1

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	h := newTestHandler(t)
	createSession(t, h, "s1")

	rec, resp := do(t, h, http.MethodPost, "/api/ai/sessions/s1/messages",
		`{"sessionId":"s1","messageId":"m1","content":"hello","messageType":0,"sendTime":"2024-05-01T10:00:00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)

	data := dataMap(t, resp)
	assert.Equal(t, "m1", data["userMessageId"])
	ai := data["aiMessage"].(map[string]interface{})
	assert.Equal(t, "re: hello", ai["content"])
	assert.Equal(t, "s1", ai["sessionId"])
	assert.EqualValues(t, 0, ai["messageType"])
	assert.Len(t, ai["messageId"], 8)
	assert.NotContains(t, ai, "sender")
}

func TestSendMessageErrors(t *testing.T) {
	h := newTestHandler(t)
	createSession(t, h, "s1")

	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"path mismatch", "/api/ai/sessions/s1/messages", `{"sessionId":"s2","messageId":"m1","content":"x"}`, http.StatusBadRequest},
		{"missing session", "/api/ai/sessions/s9/messages", `{"sessionId":"s9","messageId":"m1","content":"x"}`, http.StatusNotFound},
		{"bad type", "/api/ai/sessions/s1/messages", `{"sessionId":"s1","messageId":"m1","content":"x","messageType":9}`, http.StatusBadRequest},
		{"missing content", "/api/ai/sessions/s1/messages", `{"sessionId":"s1","messageId":"m1"}`, http.StatusBadRequest},
		{"bad send time", "/api/ai/sessions/s1/messages", `{"sessionId":"s1","messageId":"m1","content":"x","sendTime":"yesterday"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, resp := do(t, h, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.False(t, resp.Success)
		})
	}

	body := `{"sessionId":"s1","messageId":"dup","content":"x"}`
	rec, _ := do(t, h, http.MethodPost, "/api/ai/sessions/s1/messages", body)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/api/ai/sessions/s1/messages", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestQueryMessages(t *testing.T) {
	h := newTestHandler(t)
	createSession(t, h, "s1")

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		body := fmt.Sprintf(`{"sessionId":"s1","messageId":"m%d","content":"q%d","sendTime":%q}`,
			i, i, base.Add(time.Duration(i)*time.Minute).Format(time.RFC3339))
		rec, _ := do(t, h, http.MethodPost, "/api/ai/sessions/s1/messages", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, resp := do(t, h, http.MethodGet, "/api/ai/sessions/s1/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, resp)
	assert.EqualValues(t, 6, data["total"])
	assert.EqualValues(t, 10, data["pageSize"])
	assert.EqualValues(t, 1, data["current"])
	records := data["records"].([]interface{})
	require.Len(t, records, 6)
	for _, r := range records {
		assert.NotContains(t, r.(map[string]interface{}), "sender")
	}

	rec, resp = do(t, h, http.MethodGet, "/api/ai/sessions/s1/messages?pageNum=2&pageSize=4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data = dataMap(t, resp)
	assert.EqualValues(t, 6, data["total"])
	assert.Len(t, data["records"], 2)

	for _, query := range []string{"pageNum=9", "pageNum=4611686018427387905&pageSize=4"} {
		rec, resp = do(t, h, http.MethodGet, "/api/ai/sessions/s1/messages?"+query, "")
		require.Equal(t, http.StatusOK, rec.Code, query)
		data = dataMap(t, resp)
		assert.EqualValues(t, 6, data["total"], query)
		assert.Equal(t, []interface{}{}, data["records"], query)
	}
}

func TestQueryMessagesValidation(t *testing.T) {
	h := newTestHandler(t)
	createSession(t, h, "s1")

	for _, query := range []string{"pageNum=0", "pageSize=0", "pageSize=101", "pageNum=abc"} {
		t.Run(query, func(t *testing.T) {
			rec, resp := do(t, h, http.MethodGet, "/api/ai/sessions/s1/messages?"+query, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, resp.Success)
		})
	}

	rec, _ := do(t, h, http.MethodGet, "/api/ai/sessions/nope/messages", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
