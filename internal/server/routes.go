package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the HTTP surface: the WebSocket upgrade endpoint
// and the small read-only operational endpoints.
func (s *Server) RegisterRoutes() {
	s.E.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "API is running")
	})

	s.E.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	s.E.GET("/ws", s.gateway.Handler())

	s.E.GET("/metrics/cache", func(c echo.Context) error {
		return c.JSON(http.StatusOK, s.collector.Snapshot())
	})
}
