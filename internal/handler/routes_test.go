package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"nova-relay/internal/client"
	"nova-relay/internal/config"
	"nova-relay/internal/metrics"
	"nova-relay/internal/service"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	cfg := &config.Config{
		Relay:       config.RelayConfig{Token: "tok"},
		OpenWeather: config.OpenWeatherConfig{APIKey: "ow", BaseURL: upstream.URL, WeatherTimeoutSeconds: 5, ForecastTimeoutSeconds: 5},
		News:        config.NewsConfig{APIKey: "nk", BaseURL: upstream.URL, TimeoutSeconds: 5},
		Upstream:    config.UpstreamConfig{IdleConnections: 10},
		Metrics:     config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	svc, err := service.NewRelayServiceForTest(client.NewUpstreamClient(cfg, logger, m), cfg, logger)
	if err != nil {
		t.Fatalf("NewRelayServiceForTest: %v", err)
	}

	e := echo.New()
	RegisterRoutes(e, cfg, NewRelayHandler(svc, logger), NewHealthHandler(cfg, "test"), m, logger)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"GET /health without token", http.MethodGet, "/health", "", http.StatusOK},
		{"GET /status without token", http.MethodGet, "/status", "", http.StatusOK},
		{"GET /metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"GET /weather", http.MethodGet, "/weather?city=Pune", "tok", http.StatusOK},
		{"GET /forecast", http.MethodGet, "/forecast?city=Pune", "tok", http.StatusOK},
		{"GET /news", http.MethodGet, "/news", "tok", http.StatusOK},
		{"GET /weather without token", http.MethodGet, "/weather?city=Pune", "", http.StatusUnauthorized},
		{"POST /weather not allowed", http.MethodPost, "/weather?city=Pune", "tok", http.StatusMethodNotAllowed},
		{"GET /unknown returns 404", http.MethodGet, "/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			if tt.token != "" {
				req.Header.Set("X-Nova-Key", tt.token)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_MetricsDisabled(t *testing.T) {
	cfg := &config.Config{Metrics: config.MetricsConfig{Enabled: false, Path: "/metrics"}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := echo.New()
	RegisterRoutes(e, cfg, NewRelayHandler(nil, logger), NewHealthHandler(cfg, "test"), metrics.New(), logger)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRegisterRoutes_MetricsExposeUpstreamCounters(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	cfg := &config.Config{
		News:     config.NewsConfig{APIKey: "nk", BaseURL: upstream.URL, TimeoutSeconds: 5},
		Upstream: config.UpstreamConfig{IdleConnections: 10},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/internal/metrics"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	svc, err := service.NewRelayServiceForTest(client.NewUpstreamClient(cfg, logger, m), cfg, logger)
	if err != nil {
		t.Fatalf("NewRelayServiceForTest: %v", err)
	}

	e := echo.New()
	RegisterRoutes(e, cfg, NewRelayHandler(svc, logger), NewHealthHandler(cfg, "test"), m, logger)

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/news", http.NoBody))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/internal/metrics", http.NoBody))

	if !strings.Contains(rec.Body.String(), `nova_relay_upstream_responses_total{status_code="200",upstream="news"} 1`) {
		t.Errorf("metrics output missing upstream counter:\n%s", rec.Body.String())
	}
}
