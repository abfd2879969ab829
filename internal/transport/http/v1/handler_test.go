package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/sessionrelay/internal/domain"
	"github.com/xiaot623/gogo/sessionrelay/internal/hub"
	"github.com/xiaot623/gogo/sessionrelay/internal/service"
	"github.com/xiaot623/gogo/sessionrelay/internal/store"
	"github.com/xiaot623/gogo/sessionrelay/tests/helpers"
)

type echoRelay struct{}

func (echoRelay) Complete(ctx context.Context, conversationID, userText string) string {
	return "re: " + userText
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	h := hub.New(hub.Options{PingInterval: time.Second, WriteTimeout: time.Second}, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	svc := service.New(store.NewMemoryStore(), echoRelay{}, nil, helpers.NewTestArchive(t), h, nil, zerolog.Nop())
	return NewHandler(svc, h, zerolog.Nop())
}

// do runs a request through the registered routes.
func do(t *testing.T, h *Handler, method, target, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp Response
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func dataMap(t *testing.T, resp Response) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return data
}

func createSession(t *testing.T, h *Handler, id string) {
	t.Helper()
	rec, _ := do(t, h, http.MethodPost, "/api/ai/sessions", fmt.Sprintf(`{"sessionId":%q}`, id))
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t)
	createSession(t, h, "s1")

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)
	require.NoError(t, h.Health(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","version":"0.1.0","sessions":1}`, rec.Body.String())
}

func TestFailWithStatusMapping(t *testing.T) {
	h := newTestHandler(t)

	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("x: %w", domain.ErrSessionNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", domain.ErrSessionExists), http.StatusBadRequest},
		{fmt.Errorf("x: %w", domain.ErrDuplicateMessageID), http.StatusConflict},
		{domain.NewValidationError("pageNum", "must be at least 1"), http.StatusBadRequest},
		{fmt.Errorf("x: %w", domain.ErrPolicyDenied), http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			require.NoError(t, h.failWith(c, tc.err))
			assert.Equal(t, tc.status, rec.Code)

			var resp Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			assert.NotEmpty(t, resp.Message)
		})
	}
}
