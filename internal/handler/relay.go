package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"

	"github.com/labstack/echo/v4"

	"nova-relay/internal/client"
	"nova-relay/internal/model"
	"nova-relay/internal/service"
)

// secretParamPattern matches key query parameters in URLs embedded in error messages.
var secretParamPattern = regexp.MustCompile(`(?i)((?:appid|apiKey)=)[^&\s"]+`)

// RelayHandler serves the weather, forecast and news endpoints.
type RelayHandler struct {
	service *service.RelayService
	logger  *slog.Logger
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(svc *service.RelayService, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		service: svc,
		logger:  logger.With("component", "relay_handler"),
	}
}

// Weather relays GET /weather?city&units.
func (h *RelayHandler) Weather(c echo.Context) error {
	q, err := bindWeatherQuery(c)
	if err != nil {
		return h.mapError(c, err)
	}
	resp, err := h.service.Weather(c.Request().Context(), q)
	if err != nil {
		return h.mapError(c, err)
	}
	return writeUpstream(c, resp)
}

// Forecast relays GET /forecast?city&units.
func (h *RelayHandler) Forecast(c echo.Context) error {
	q, err := bindWeatherQuery(c)
	if err != nil {
		return h.mapError(c, err)
	}
	resp, err := h.service.Forecast(c.Request().Context(), q)
	if err != nil {
		return h.mapError(c, err)
	}
	return writeUpstream(c, resp)
}

// News relays GET /news?topic&country&lang&count.
func (h *RelayHandler) News(c echo.Context) error {
	q, err := bindNewsQuery(c)
	if err != nil {
		return h.mapError(c, err)
	}
	resp, err := h.service.News(c.Request().Context(), q)
	if err != nil {
		return h.mapError(c, err)
	}
	return writeUpstream(c, resp)
}

func bindWeatherQuery(c echo.Context) (model.WeatherQuery, error) {
	q := model.WeatherQuery{Units: model.DefaultUnits}
	err := echo.QueryParamsBinder(c).
		MustString("city", &q.City).
		String("units", &q.Units).
		BindError()
	return q, err
}

func bindNewsQuery(c echo.Context) (model.NewsQuery, error) {
	q := model.NewsQuery{
		Country: model.DefaultCountry,
		Lang:    model.DefaultLang,
		Count:   model.DefaultCount,
	}
	err := echo.QueryParamsBinder(c).
		String("topic", &q.Topic).
		String("country", &q.Country).
		String("lang", &q.Lang).
		CustomFunc("count", func(values []string) []error {
			if values[0] == "" {
				return nil
			}
			n, err := parseCount(values[0])
			if err != nil {
				return []error{echo.NewBindingError("count", values[:1], "failed to bind field value to int", err)}
			}
			q.Count = n
			return nil
		}).
		BindError()
	return q, err
}

// parseCount parses a decimal count. Values outside the int range saturate
// instead of failing; the service clamps them afterwards.
func parseCount(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if errors.Is(err, strconv.ErrRange) {
		return n, nil
	}
	return n, err
}

// writeUpstream relays an upstream reply byte for byte.
func writeUpstream(c echo.Context, resp *model.UpstreamResponse) error {
	contentType := resp.ContentType
	if contentType == "" {
		contentType = echo.MIMEApplicationJSON
	}
	return c.Blob(resp.StatusCode, contentType, resp.Body)
}

func (h *RelayHandler) mapError(c echo.Context, err error) error {
	path := c.Request().URL.Path

	var bindErr *echo.BindingError
	if errors.As(err, &bindErr) {
		h.logger.Warn("invalid query", "path", path, "field", bindErr.Field)
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{
			"detail": fmt.Sprintf("invalid query parameter %q: %v", bindErr.Field, bindErr.Message),
		})
	}

	var notConfigured *service.NotConfiguredError
	if errors.As(err, &notConfigured) {
		h.logger.Warn("integration not configured", "path", path, "service", notConfigured.Service)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"detail": notConfigured.Error(),
		})
	}

	var upstreamErr *service.UpstreamError
	if errors.As(err, &upstreamErr) {
		h.logger.Info("relaying upstream error status",
			"path", path,
			"upstream", upstreamErr.Upstream,
			"status", upstreamErr.Response.StatusCode,
		)
		return writeUpstream(c, upstreamErr.Response)
	}

	h.logger.Error("relay error",
		"err", sanitizeError(err),
		"path", path,
	)

	if errors.Is(err, service.ErrInvalidUpstreamBody) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"detail": "upstream returned an invalid JSON body",
		})
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"detail": "upstream request timed out",
		})
	}
	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"detail": "client disconnected",
		})
	}
	if errors.Is(err, client.ErrResponseTooLarge) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"detail": "upstream response too large",
		})
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"detail": "upstream host unreachable",
		})
	}
	var unreachable *service.UnreachableError
	if errors.As(err, &unreachable) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"detail": "upstream connection failed",
		})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"detail": "internal relay error",
	})
}

// sanitizeError redacts API keys from error messages that may contain upstream URLs.
func sanitizeError(err error) string {
	return secretParamPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}
