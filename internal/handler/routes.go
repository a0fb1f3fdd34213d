package handler

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nova-relay/internal/config"
	"nova-relay/internal/metrics"
	"nova-relay/internal/middleware"
)

// RegisterRoutes wires all route handlers onto the Echo instance. The relay
// token gate is attached per route so that unknown paths still 404 and the
// health endpoints stay open.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, relay *RelayHandler, health *HealthHandler, m *metrics.Metrics, logger *slog.Logger) {
	gate := middleware.RelayToken(cfg.Relay.Token, logger)

	e.GET("/health", health.Health)
	e.GET("/status", health.Status)
	e.GET("/weather", relay.Weather, gate)
	e.GET("/forecast", relay.Forecast, gate)
	e.GET("/news", relay.News, gate)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
