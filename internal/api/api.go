// Package api serves the timeturner HTTP surface: status and control
// endpoints under /api, a websocket event feed, Prometheus metrics and
// the health probes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/studioclock/timeturner/internal/clocksync"
	"github.com/studioclock/timeturner/internal/config"
	"github.com/studioclock/timeturner/internal/health"
	"github.com/studioclock/timeturner/internal/logbuf"
	"github.com/studioclock/timeturner/internal/observe"
	"github.com/studioclock/timeturner/internal/pipeline"
)

// shutdownTimeout bounds the drain of in-flight requests on Run exit.
const shutdownTimeout = 10 * time.Second

// Options collects the server's collaborators. Consumer is required;
// everything else has a working default.
type Options struct {
	// Addr is the TCP listen address, e.g. ":8080".
	Addr string

	// Consumer answers status, sync and nudge requests.
	Consumer *pipeline.Consumer

	// Logs backs /api/logs. Nil disables the endpoint.
	Logs *logbuf.Buffer

	// Health serves /healthz and /readyz. Nil registers none.
	Health *health.Handler

	// Metrics wires the HTTP middleware. Nil selects the default set.
	Metrics *observe.Metrics

	// Config returns the currently active configuration for /api/config.
	// A function because hot reload swaps it underneath the server.
	Config func() *config.Config

	// TLS enables HTTPS when non-nil.
	TLS *config.TLSConfig
}

// Server is the timeturner HTTP API.
type Server struct {
	opts Options
	hub  *hub
}

// New builds a server from opts.
func New(opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}
	return &Server{opts: opts, hub: newHub()}
}

// Broadcast pushes one snapshot to every connected event subscriber.
// Wire it as the pipeline's notify callback.
func (s *Server) Broadcast(snap pipeline.Snapshot) { s.hub.broadcast(snap) }

// Handler assembles the route table wrapped in the tracing middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/sync", s.handleSync)
	mux.HandleFunc("POST /api/nudge", s.handleNudge)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	if s.opts.Config != nil {
		mux.HandleFunc("GET /api/config", s.handleConfig)
	}
	if s.opts.Logs != nil {
		mux.HandleFunc("GET /api/logs", s.handleLogs)
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.opts.Health != nil {
		s.opts.Health.Register(mux)
	}

	return observe.Middleware(s.opts.Metrics)(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if s.opts.TLS != nil {
			errCh <- srv.ListenAndServeTLS(s.opts.TLS.CertFile, s.opts.TLS.KeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("api listening", "addr", s.opts.Addr, "tls", s.opts.TLS != nil)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Consumer.Snapshot())
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.opts.Consumer.RequestSync(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			http.Error(w, "sync request timed out", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	switch {
	case !res.Allowed:
		status = http.StatusConflict
	case res.Error != "":
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

func (s *Server) handleNudge(w http.ResponseWriter, r *http.Request) {
	var shift clocksync.Shift
	if err := json.NewDecoder(r.Body).Decode(&shift); err != nil {
		http.Error(w, "invalid shift body", http.StatusBadRequest)
		return
	}
	if !s.opts.Consumer.Nudge(shift) {
		http.Error(w, "consumer not accepting nudges", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleConfig serves the active configuration as YAML, the same shape
// the config file uses.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	out, err := yaml.Marshal(s.opts.Config())
	if err != nil {
		http.Error(w, "marshal config: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := s.opts.Logs.Entries()
	if q := r.URL.Query().Get("n"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			http.Error(w, "n must be a non-negative integer", http.StatusBadRequest)
			return
		}
		if n < len(entries) {
			entries = entries[len(entries)-n:]
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

// writeJSON encodes v with the given status code. On encoding failure it
// falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
