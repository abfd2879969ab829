// Package http provides the HTTP server implementation for the session relay.
package http

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/sessionrelay/internal/hub"
	"github.com/xiaot623/gogo/sessionrelay/internal/metrics"
	"github.com/xiaot623/gogo/sessionrelay/internal/service"
	v1 "github.com/xiaot623/gogo/sessionrelay/internal/transport/http/v1"
)

// NewServer creates and configures the session API server. m may be nil,
// in which case /metrics is not served.
func NewServer(svc *service.Service, h *hub.Hub, m *metrics.Metrics, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc, h, logger)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	return e
}

// requestLogger writes one access log line per request through zerolog.
func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	access := logger.With().Str("component", "access").Logger()
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := access.Info()
			if v.Error != nil || v.Status >= 500 {
				event = access.Error().Err(v.Error)
			}
			event.
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("Request handled")
			return nil
		},
	})
}
