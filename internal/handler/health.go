package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"nova-relay/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Health reports liveness and which integrations are usable. It never calls
// an upstream and always answers 200.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{
		"ok":                     true,
		"openweather_configured": h.cfg.OpenWeatherConfigured(),
		"news_configured":        h.cfg.NewsConfigured(),
		"auth_enabled":           h.cfg.AuthEnabled(),
	})
}

// Status returns build and upstream information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"ok":              true,
		"version":         string(h.version),
		"openweather_url": h.cfg.OpenWeather.BaseURL,
		"news_url":        h.cfg.News.BaseURL,
	})
}
