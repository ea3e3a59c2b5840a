// Package transport performs single requests over HTTP. It does not retry,
// cache or queue; those concerns live in the offline orchestrator.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/resilient-net/pkg/request"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resilient_transport_requests_total",
		Help: "Total upstream requests by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resilient_transport_request_duration_seconds",
		Help:    "Upstream request duration in seconds by method",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resilient_transport_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// Config holds the HTTP transport configuration.
type Config struct {
	// BaseURL is prefixed to request URLs that are not absolute.
	BaseURL string

	// UserAgent is sent unless the request sets its own.
	UserAgent string

	// Timeout bounds a single request.
	Timeout time.Duration

	// MaxBodyBytes caps how much of a response body is read. 0 means 32 MiB.
	MaxBodyBytes int64
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent:    "resilient-net/0.1.0",
		Timeout:      30 * time.Second,
		MaxBodyBytes: 32 << 20,
	}
}

// HTTP sends requests with net/http.
type HTTP struct {
	client *http.Client
	config Config
	logger zerolog.Logger
}

// NewHTTP creates an HTTP transport.
func NewHTTP(cfg Config) *HTTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20
	}
	return &HTTP{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		logger: log.With().Str("component", "transport").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (t *HTTP) SetHTTPClient(client *http.Client) {
	t.client = client
}

// Do performs one request. Responses outside 2xx are returned as
// *StatusError; network problems are returned as the underlying error.
func (t *HTTP) Do(ctx context.Context, req *request.Request) (*request.Response, error) {
	method := string(req.Method)
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	httpReq, err := t.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	t.logger.Debug().
		Str("method", method).
		Str("url", httpReq.URL.String()).
		Msg("Executing upstream request")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(method, "network_error").Inc()
		t.logger.Warn().Err(err).Str("url", httpReq.URL.String()).Msg("Upstream request failed")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.config.MaxBodyBytes+1))
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(method, "network_error").Inc()
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(body)) > t.config.MaxBodyBytes {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(method, "body_too_large").Inc()
		t.logger.Warn().
			Str("url", httpReq.URL.String()).
			Int64("max_body_bytes", t.config.MaxBodyBytes).
			Msg("Upstream response body exceeds limit")
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, t.config.MaxBodyBytes)
	}

	requestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		t.logger.Warn().
			Str("url", httpReq.URL.String()).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream request error")
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    resp.Status,
			Body:       body,
			Headers:    resp.Header.Clone(),
		}
	}

	return &request.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       body,
		Metadata: map[string]string{
			"proto":    resp.Proto,
			"url":      httpReq.URL.String(),
			"duration": time.Since(startTime).String(),
		},
		ReceivedAt: time.Now(),
	}, nil
}

// buildRequest converts req into an *http.Request.
func (t *HTTP) buildRequest(ctx context.Context, req *request.Request) (*http.Request, error) {
	target, err := t.resolveURL(req.URL)
	if err != nil {
		return nil, err
	}

	if len(req.Query) > 0 {
		q := target.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	method := string(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if t.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", t.config.UserAgent)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// resolveURL joins relative URLs onto the configured base URL.
func (t *HTTP) resolveURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse url: %v", ErrInvalidRequest, err)
	}
	if u.IsAbs() {
		return u, nil
	}
	if t.config.BaseURL == "" {
		return nil, fmt.Errorf("%w: relative url %q without base url", ErrInvalidRequest, raw)
	}

	base, err := url.Parse(strings.TrimRight(t.config.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("%w: parse base url: %v", ErrInvalidRequest, err)
	}
	return base.ResolveReference(&url.URL{
		Path:     strings.TrimLeft(u.Path, "/"),
		RawQuery: u.RawQuery,
	}), nil
}
