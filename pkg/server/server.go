// Package server exposes the build pipeline over HTTP: a streaming trigger
// endpoint and read-only artifact downloads.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	apkcontext "github.com/apkforge/apkforge/pkg/context"
	"github.com/apkforge/apkforge/pkg/interfaces"
	"github.com/apkforge/apkforge/pkg/logger"
	"github.com/apkforge/apkforge/pkg/pipeline"
	"github.com/apkforge/apkforge/pkg/types"
)

// BuildRunner is the slice of the pipeline controller the server needs
type BuildRunner interface {
	Run(ctx context.Context, req types.BuildRequest, pub interfaces.Publisher, origin pipeline.Origin) (*types.BuildArtifact, error)
}

// Config holds the HTTP server settings
type Config struct {
	ListenAddr   string
	PublicDir    string
	PublicPrefix string
}

// withDefaults fills zero-valued config fields
func (c Config) withDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.PublicDir == "" {
		c.PublicDir = "public"
	}
	if c.PublicPrefix == "" {
		c.PublicPrefix = "/downloads/"
	}
	return c
}

// Server serves the trigger API and the publish directory
type Server struct {
	config     Config
	builds     BuildRunner
	logger     logger.Logger
	httpServer *http.Server
}

// New creates a server around a pipeline controller
func New(cfg Config, builds BuildRunner, log logger.Logger) *Server {
	s := &Server{
		config: cfg.withDefaults(),
		builds: builds,
		logger: log,
	}
	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: s.Handler(),
	}
	return s
}

// Handler builds the route mux
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/build", s.handleBuild)
	mux.HandleFunc("/api/build/ws", s.handleBuildWS)
	mux.Handle(s.config.PublicPrefix,
		http.StripPrefix(s.config.PublicPrefix, http.FileServer(http.Dir(s.config.PublicDir))))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

// Start runs the server until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Info("Listening", logger.WithField("addr", s.config.ListenAddr))
		}
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// handleBuild triggers a pipeline run and streams its events back as
// newline-delimited JSON until the session reaches a terminal state. The
// caller only reads after the request; no further input is expected.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		// Input errors never start a session
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := apkcontext.Enrich(r.Context(), "build", r.Header.Get("X-Request-ID"))

	pub := &ndjsonPublisher{w: w, flusher: flusher}
	_, err := s.builds.Run(ctx, req, pub, s.origin(r))
	if s.logger != nil {
		fields := tracingLogFields(ctx)
		if err != nil {
			s.logger.Error("Build failed", append(fields, logger.WithField("error", err))...)
		} else {
			s.logger.Info("Build finished", fields...)
		}
	}
}

// tracingLogFields converts the request's tracing values into logger fields
func tracingLogFields(ctx context.Context) []logger.Field {
	tracing := apkcontext.TracingFields(ctx)
	fields := make([]logger.Field, 0, len(tracing))
	for key, value := range tracing {
		fields = append(fields, logger.WithField(key, value))
	}
	return fields
}

// origin derives the externally visible scheme and host, preferring the
// forwarded headers set by a fronting proxy.
func (s *Server) origin(r *http.Request) pipeline.Origin {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return pipeline.Origin{Scheme: scheme, Host: host}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ndjsonPublisher pushes events as one JSON object per line over a chunked
// response, flushing after every event.
type ndjsonPublisher struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	closed  bool
}

// Publish implements interfaces.Publisher
func (p *ndjsonPublisher) Publish(event types.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("publisher closed")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := p.w.Write(append(data, '\n')); err != nil {
		return err
	}
	p.flusher.Flush()
	return nil
}

// Close implements interfaces.Publisher. The response stream itself ends
// when the handler returns.
func (p *ndjsonPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
