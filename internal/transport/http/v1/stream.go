package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// StreamSession upgrades to a WebSocket carrying the session's live feed.
// GET /api/ai/sessions/:sessionId/stream
func (h *Handler) StreamSession(c echo.Context) error {
	if h.hub == nil {
		return fail(c, http.StatusNotFound, "live feed disabled")
	}

	session, err := h.service.GetSession(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		return h.failWith(c, err)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already replied.
		h.logger.Warn().Err(err).Str("session_id", session.ID).Msg("Failed to upgrade WebSocket")
		return nil
	}

	h.hub.Serve(h.hub.NewConnection(ws, session.ID))
	return nil
}
