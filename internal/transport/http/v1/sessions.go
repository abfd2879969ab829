package v1

import (
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/sessionrelay/internal/domain"
	"github.com/xiaot623/gogo/sessionrelay/internal/service"
)

// CreateSessionRequest is the body of POST /api/ai/sessions.
type CreateSessionRequest struct {
	SessionID     string  `json:"sessionId"`
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	ConsultType   *string `json:"consultType"`
	HealthInfoURL *string `json:"healthInfoUrl"`
}

// CreateSessionResponse is the data of a created session.
type CreateSessionResponse struct {
	SessionID  string    `json:"sessionId"`
	CreateTime time.Time `json:"createTime"`
}

// EndSessionResponse is the data of an ended session.
type EndSessionResponse struct {
	SessionID string     `json:"sessionId"`
	EndTime   *time.Time `json:"endTime"`
}

// CreateSession opens a session.
// POST /api/ai/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "failed to read request body")
	}
	var req CreateSessionRequest
	if err := decodeBody(body, createSessionSchema, &req); err != nil {
		return h.failWith(c, err)
	}

	session, err := h.service.CreateSession(c.Request().Context(), service.CreateSessionInput{
		SessionID: req.SessionID,
		SessionMetadata: domain.SessionMetadata{
			Title:         deref(req.Title),
			Description:   deref(req.Description),
			ConsultType:   deref(req.ConsultType),
			HealthInfoURL: deref(req.HealthInfoURL),
		},
	})
	if err != nil {
		return h.failWith(c, err)
	}

	return ok(c, http.StatusCreated, "session created", CreateSessionResponse{
		SessionID:  session.ID,
		CreateTime: session.CreateTime,
	})
}

// GetSession returns a session.
// GET /api/ai/sessions/:sessionId
func (h *Handler) GetSession(c echo.Context) error {
	session, err := h.service.GetSession(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		return h.failWith(c, err)
	}
	return ok(c, http.StatusOK, "query succeeded", session)
}

// EndSession ends a session.
// POST /api/ai/sessions/:sessionId/end
func (h *Handler) EndSession(c echo.Context) error {
	session, err := h.service.EndSession(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		return h.failWith(c, err)
	}
	return ok(c, http.StatusOK, "session ended", EndSessionResponse{
		SessionID: session.ID,
		EndTime:   session.EndTime,
	})
}

// GetArchivedSession returns an ended session's archived transcript.
// GET /api/ai/archive/sessions/:sessionId
func (h *Handler) GetArchivedSession(c echo.Context) error {
	transcript, err := h.service.GetArchivedTranscript(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		return h.failWith(c, err)
	}
	return ok(c, http.StatusOK, "query succeeded", transcript)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
