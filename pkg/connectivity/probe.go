package connectivity

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Prober checks reachability once.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// HTTPProbe sends a request to URL. Any response below 500 counts as
// reachable; 5xx and transport errors count as failures.
type HTTPProbe struct {
	URL    string
	Method string
	Client *http.Client
}

// NewHTTPProbe returns a HEAD probe for url using client, or
// http.DefaultClient when client is nil.
func NewHTTPProbe(url string, client *http.Client) *HTTPProbe {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProbe{URL: url, Method: http.MethodHead, Client: client}
}

// Probe implements Prober.
func (p *HTTPProbe) Probe(ctx context.Context) error {
	method := p.Method
	if method == "" {
		method = http.MethodHead
	}

	req, err := http.NewRequestWithContext(ctx, method, p.URL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("probe %s: status %d", p.URL, resp.StatusCode)
	}
	return nil
}
