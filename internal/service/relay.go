// Package service implements the relay forwarding logic: key availability
// checks, upstream parameter construction with secret injection, and
// classification of upstream outcomes.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nova-relay/internal/client"
	"nova-relay/internal/config"
	"nova-relay/internal/model"
)

// ErrInvalidUpstreamBody is returned when an upstream answers 200 with a body
// that is not JSON.
var ErrInvalidUpstreamBody = errors.New("upstream returned an invalid JSON body")

// allowedUpstreamHosts restricts which hosts receive the server-held keys.
var allowedUpstreamHosts = map[string]bool{
	"api.openweathermap.org": true,
	"newsapi.org":            true,
}

// Page size bounds accepted by the news provider.
const (
	minPageSize = 1
	maxPageSize = 20
)

// NotConfiguredError reports that an integration has no key on this relay.
type NotConfiguredError struct {
	Service string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("%s is not configured on the relay server", e.Service)
}

// UpstreamError carries a non-200 upstream reply that must be relayed as-is.
type UpstreamError struct {
	Upstream model.Upstream
	Response *model.UpstreamResponse
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Upstream, e.Response.StatusCode)
}

// UnreachableError reports that no upstream response was obtained at all
// (timeout, DNS failure, refused connection, oversized body).
type UnreachableError struct {
	Upstream model.Upstream
	Err      error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%s unreachable: %v", e.Upstream, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// EnsureConfigured fails with a *NotConfiguredError naming serviceName when
// keyValue is empty.
func EnsureConfigured(serviceName, keyValue string) error {
	if keyValue == "" {
		return &NotConfiguredError{Service: serviceName}
	}
	return nil
}

// ClampCount bounds a requested article count to the provider's page size range.
func ClampCount(n int) int {
	return min(max(n, minPageSize), maxPageSize)
}

// WeatherParams builds the OpenWeatherMap query for /weather and /forecast.
func WeatherParams(q model.WeatherQuery, key string) url.Values {
	units := q.Units
	if units == "" {
		units = model.DefaultUnits
	}
	return url.Values{
		"q":     {q.City},
		"units": {units},
		"appid": {key},
	}
}

// NewsParams builds the NewsAPI path and query. A non-empty topic searches
// all articles; otherwise top headlines for the country are requested.
func NewsParams(q model.NewsQuery, key string) (string, url.Values) {
	pageSize := strconv.Itoa(ClampCount(q.Count))

	if q.Topic != "" {
		return "/everything", url.Values{
			"q":        {q.Topic},
			"language": {q.Lang},
			"apiKey":   {key},
			"pageSize": {pageSize},
			"sortBy":   {"publishedAt"},
		}
	}

	country := q.Country
	if country == "" {
		country = model.DefaultCountry
	}
	return "/top-headlines", url.Values{
		"country":  {country},
		"apiKey":   {key},
		"pageSize": {pageSize},
	}
}

// RelayService forwards validated queries to the weather and news providers.
type RelayService struct {
	client     *client.UpstreamClient
	cfg        *config.Config
	logger     *slog.Logger
	weatherURL *url.URL
	newsURL    *url.URL
}

// NewRelayService creates a RelayService. Both base URLs must point at an
// allowlisted provider host.
func NewRelayService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) (*RelayService, error) {
	s, err := NewRelayServiceForTest(c, cfg, logger)
	if err != nil {
		return nil, err
	}
	for _, u := range []*url.URL{s.weatherURL, s.newsURL} {
		if !allowedUpstreamHosts[u.Hostname()] {
			return nil, fmt.Errorf("upstream host %q is not in the allowlist", u.Hostname())
		}
	}
	return s, nil
}

// NewRelayServiceForTest creates a RelayService without host allowlist validation.
// This is intended only for tests that use httptest servers on localhost.
func NewRelayServiceForTest(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) (*RelayService, error) {
	weatherURL, err := url.Parse(cfg.OpenWeather.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse openweather base_url: %w", err)
	}
	newsURL, err := url.Parse(cfg.News.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse news base_url: %w", err)
	}
	return &RelayService{
		client:     c,
		cfg:        cfg,
		logger:     logger.With("component", "relay_service"),
		weatherURL: weatherURL,
		newsURL:    newsURL,
	}, nil
}

// Weather returns current conditions for q.City.
func (s *RelayService) Weather(ctx context.Context, q model.WeatherQuery) (*model.UpstreamResponse, error) {
	return s.openWeather(ctx, "/weather", q, s.cfg.OpenWeather.WeatherTimeout())
}

// Forecast returns the multi-day forecast for q.City.
func (s *RelayService) Forecast(ctx context.Context, q model.WeatherQuery) (*model.UpstreamResponse, error) {
	return s.openWeather(ctx, "/forecast", q, s.cfg.OpenWeather.ForecastTimeout())
}

func (s *RelayService) openWeather(ctx context.Context, path string, q model.WeatherQuery, timeout time.Duration) (*model.UpstreamResponse, error) {
	key := s.cfg.OpenWeather.APIKey
	if err := EnsureConfigured(config.EnvOpenWeatherKey, key); err != nil {
		return nil, err
	}
	target := endpointURL(s.weatherURL, path, WeatherParams(q, key))
	return s.forward(ctx, model.UpstreamOpenWeather, target, timeout)
}

// News returns either a topic search or country headlines, see NewsParams.
func (s *RelayService) News(ctx context.Context, q model.NewsQuery) (*model.UpstreamResponse, error) {
	key := s.cfg.News.APIKey
	if err := EnsureConfigured(config.EnvNewsKey, key); err != nil {
		return nil, err
	}
	path, params := NewsParams(q, key)
	target := endpointURL(s.newsURL, path, params)
	return s.forward(ctx, model.UpstreamNews, target, s.cfg.News.Timeout())
}

func (s *RelayService) forward(ctx context.Context, upstream model.Upstream, target string, timeout time.Duration) (*model.UpstreamResponse, error) {
	resp, err := s.client.Get(ctx, upstream, target, timeout)
	if err != nil {
		return nil, &UnreachableError{Upstream: upstream, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		s.logger.Debug("upstream returned non-OK status",
			"upstream", upstream,
			"status", resp.StatusCode,
		)
		return nil, &UpstreamError{Upstream: upstream, Response: resp}
	}

	if !json.Valid(resp.Body) {
		return nil, fmt.Errorf("%s: %w", upstream, ErrInvalidUpstreamBody)
	}
	return resp, nil
}

func endpointURL(base *url.URL, path string, params url.Values) string {
	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = params.Encode()
	return u.String()
}
