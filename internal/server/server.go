// Package server exposes the offline orchestrator over HTTP: a forwarding
// proxy plus health, status and connectivity endpoints.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/resilient-net/pkg/metrics"
	"github.com/Sternrassler/resilient-net/pkg/offline"
	"github.com/Sternrassler/resilient-net/pkg/queue"
	"github.com/Sternrassler/resilient-net/pkg/request"
	"github.com/Sternrassler/resilient-net/pkg/transport"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// DefaultMaxRequestBytes caps proxied request bodies.
const DefaultMaxRequestBytes = 10 << 20

// Orchestrator is the part of offline.Orchestrator the server needs.
type Orchestrator interface {
	Submit(ctx context.Context, req *request.Request, opts ...offline.ExecuteOption) *queue.Handle
	SetOnline(online bool)
	Stats() offline.Stats
}

// Server holds the HTTP handlers.
type Server struct {
	orch            Orchestrator
	logger          zerolog.Logger
	maxRequestBytes int64
}

// New creates a server. maxRequestBytes <= 0 uses DefaultMaxRequestBytes.
func New(orch Orchestrator, logger zerolog.Logger, maxRequestBytes int64) *Server {
	if maxRequestBytes <= 0 {
		maxRequestBytes = DefaultMaxRequestBytes
	}
	return &Server{orch: orch, logger: logger, maxRequestBytes: maxRequestBytes}
}

// Router returns the chi router with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/status", s.status)
	r.Put("/connectivity", s.setConnectivity)
	r.HandleFunc("/proxy/*", s.proxy)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.orch.Stats())
}

type connectivityRequest struct {
	Online *bool `json:"online"`
}

func (s *Server) setConnectivity(w http.ResponseWriter, r *http.Request) {
	var body connectivityRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<10)).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Online == nil {
		s.writeError(w, http.StatusBadRequest, `field "online" is required`)
		return
	}

	s.orch.SetOnline(*body.Online)
	s.writeJSON(w, http.StatusOK, s.orch.Stats())
}

type queuedResponse struct {
	Queued bool   `json:"queued"`
	ID     string `json:"id"`
}

// proxy forwards /proxy/<path> to the upstream through the orchestrator.
func (s *Server) proxy(w http.ResponseWriter, r *http.Request) {
	method, ok := request.ParseMethod(r.Method)
	if !ok {
		s.writeError(w, http.StatusMethodNotAllowed, "method not supported")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxRequestBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	req := request.New(method, "/"+chi.URLParam(r, "*"))
	if len(body) > 0 {
		req.WithBody(body)
	}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			req.WithQuery(k, vs[0])
		}
	}
	for k, vs := range r.Header {
		if hopByHop[http.CanonicalHeaderKey(k)] || len(vs) == 0 {
			continue
		}
		req.WithHeader(k, vs[0])
	}

	h := s.orch.Submit(r.Context(), req)
	if !h.IsResolved() {
		s.writeJSON(w, http.StatusAccepted, queuedResponse{Queued: true, ID: h.ID()})
		return
	}

	resp, err := h.Result()
	if err != nil {
		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) {
			copyHeaders(w.Header(), statusErr.Headers)
			w.WriteHeader(statusErr.StatusCode)
			_, _ = w.Write(statusErr.Body)
			return
		}
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Proxy request failed")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	copyHeaders(w.Header(), resp.Headers)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Host":                true,
	"Content-Length":      true,
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		if hopByHop[k] {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
