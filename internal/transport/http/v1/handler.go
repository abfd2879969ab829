// Package v1 provides the session API handlers.
package v1

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/sessionrelay/internal/domain"
	"github.com/xiaot623/gogo/sessionrelay/internal/hub"
	"github.com/xiaot623/gogo/sessionrelay/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service  *service.Service
	hub      *hub.Hub
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler creates a new handler. A nil hub disables the live feed.
func NewHandler(svc *service.Service, h *hub.Hub, logger zerolog.Logger) *Handler {
	return &Handler{
		service: svc,
		hub:     h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// CORS is open on the REST routes as well
				return true
			},
		},
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// RegisterRoutes registers the session API with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api/ai")

	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions/:sessionId", h.GetSession)
	api.POST("/sessions/:sessionId/end", h.EndSession)

	api.POST("/sessions/:sessionId/messages", h.SendMessage)
	api.GET("/sessions/:sessionId/messages", h.QueryMessages)

	api.GET("/sessions/:sessionId/stream", h.StreamSession)

	api.GET("/archive/sessions/:sessionId", h.GetArchivedSession)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"version":  "0.1.0",
		"sessions": h.service.SessionCount(),
	})
}

// Response is the envelope of every API response.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func ok(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, Response{Success: true, Message: message, Data: data})
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, Response{Success: false, Message: message})
}

// failWith maps a service error to its status code and envelope.
func (h *Handler) failWith(c echo.Context, err error) error {
	var validationErr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return fail(c, http.StatusNotFound, "session not found")
	case errors.Is(err, domain.ErrSessionExists):
		return fail(c, http.StatusBadRequest, "session already exists")
	case errors.Is(err, domain.ErrDuplicateMessageID):
		return fail(c, http.StatusConflict, "duplicate message id")
	case errors.As(err, &validationErr):
		return fail(c, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, domain.ErrValidation):
		return fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrPolicyDenied):
		return fail(c, http.StatusForbidden, "message rejected by send policy")
	default:
		h.logger.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
		return fail(c, http.StatusInternalServerError, "internal error")
	}
}
