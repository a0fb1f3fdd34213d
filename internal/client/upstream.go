// Package client provides the upstream HTTP client shared by the weather and
// news integrations.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"nova-relay/internal/config"
	"nova-relay/internal/metrics"
	"nova-relay/internal/model"
)

// ErrResponseTooLarge is returned when an upstream body exceeds upstream.max_response_bytes.
var ErrResponseTooLarge = errors.New("upstream response exceeds size limit")

const userAgent = "nova-relay/1.0"

// UpstreamClient issues GET requests against third-party APIs and buffers
// the complete response.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	maxBody    int64
}

// NewUpstreamClient creates an UpstreamClient with connection pooling.
// Deadlines are per call, see Get. The metrics parameter is optional; pass
// nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &UpstreamClient{
		httpClient: &http.Client{Transport: transport},
		logger:     logger.With("component", "upstream_client"),
		metrics:    m,
		maxBody:    cfg.Upstream.MaxResponseBytes,
	}
}

// Get fetches rawURL and returns the full response. The timeout bounds the
// whole exchange, body included, so a response is either complete or an
// error. Non-200 statuses are not errors at this layer.
func (c *UpstreamClient) Get(ctx context.Context, upstream model.Upstream, rawURL string, timeout time.Duration) (*model.UpstreamResponse, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("upstream request",
		"upstream", upstream,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observeFailure(upstream, start, err)
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := c.readBody(resp.Body)
	if err != nil {
		c.observeFailure(upstream, start, err)
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(string(upstream)).Observe(time.Since(start).Seconds())
		c.metrics.UpstreamResponses.WithLabelValues(string(upstream), strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &model.UpstreamResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (c *UpstreamClient) readBody(r io.Reader) ([]byte, error) {
	if c.maxBody <= 0 {
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read upstream body: %w", err)
		}
		return body, nil
	}

	body, err := io.ReadAll(io.LimitReader(r, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("read upstream body: %w (%d bytes)", ErrResponseTooLarge, c.maxBody)
	}
	return body, nil
}

func (c *UpstreamClient) observeFailure(upstream model.Upstream, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(string(upstream)).Observe(time.Since(start).Seconds())
	c.metrics.UpstreamFailures.WithLabelValues(string(upstream), FailureKind(err)).Inc()
}

// FailureKind classifies a transport error into a bounded label:
// timeout, canceled, dns, too_large or connection.
func FailureKind(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.Is(err, ErrResponseTooLarge):
		return "too_large"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "connection"
	}
}
