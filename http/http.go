// Package http exposes the chat orchestrator, session history and document
// rendering over HTTP. Streaming responses use server-sent events.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fwojciec/medic"
	"github.com/fwojciec/medic/agent"
	"github.com/fwojciec/medic/prometheus"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// maxBodyBytes bounds JSON and multipart bodies. Images are base64
	// encoded in JSON bodies so the limit sits above the raw image cap.
	maxBodyBytes = 32 << 20

	defaultHistoryLimit = 50
)

// Server routes HTTP requests to the orchestrator, the session store and
// the document renderers. It implements http.Handler.
type Server struct {
	router   chi.Router
	chat     *agent.Orchestrator
	store    medic.SessionStore
	html     medic.Renderer
	pdf      medic.Renderer
	observer *prometheus.Observer
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a [Server].
type Option func(*Server)

// WithStore mounts the sessions API.
func WithStore(s medic.SessionStore) Option {
	return func(srv *Server) { srv.store = s }
}

// WithHTMLRenderer mounts POST /artifacts/to-html.
func WithHTMLRenderer(r medic.Renderer) Option {
	return func(srv *Server) { srv.html = r }
}

// WithPDFRenderer mounts POST /artifacts/generate-pdf.
func WithPDFRenderer(r medic.Renderer) Option {
	return func(srv *Server) { srv.pdf = r }
}

// WithObserver instruments every route and mounts GET /metrics.
func WithObserver(o *prometheus.Observer) Option {
	return func(srv *Server) { srv.observer = o }
}

// WithLogger sets the access and error logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(srv *Server) { srv.now = now }
}

// New creates a [Server] serving chat through o.
func New(o *agent.Orchestrator, opts ...Option) *Server {
	s := &Server{
		chat:   o,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	if s.observer != nil {
		r.Use(s.observer.Instrument)
		r.Method(http.MethodGet, "/metrics", s.observer.Handler())
	}

	r.Get("/healthz", s.handleHealth)
	r.Post("/chat", s.handleChat(false))
	r.Post("/chat/with-tools", s.handleChat(true))
	r.Post("/chat/stream", s.handleChatStream)

	if s.store != nil {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/{patientID}", s.handleListSessions)
			r.Get("/{sessionID}/history", s.handleHistory)
			r.Post("/{sessionID}/close", s.handleSetStatus(medic.SessionClosed))
			r.Delete("/{sessionID}", s.handleSetStatus(medic.SessionArchived))
		})
	}
	if s.html != nil {
		r.Post("/artifacts/to-html", s.handleArtifactHTML)
	}
	if s.pdf != nil {
		r.Post("/artifacts/generate-pdf", s.handleArtifactPDF)
	}
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// logRequests writes one access log line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", s.now().Sub(start),
		)
	})
}

// statusCode maps a domain error to an HTTP status.
func statusCode(err error) int {
	switch {
	case errors.Is(err, medic.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, medic.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, medic.ErrUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// errorMessage returns the user-visible text for err. Only validation and
// lookup failures expose their cause.
func errorMessage(err error) string {
	if errors.Is(err, medic.ErrValidation) || errors.Is(err, medic.ErrSessionNotFound) {
		return err.Error()
	}
	return medic.Apology
}

// writeError writes {"error","disclaimer"} with the status mapped from err.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	s.writeJSON(w, code, map[string]string{
		"error":      errorMessage(err),
		"disclaimer": medic.Disclaimer,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, medic.Apology, http.StatusInternalServerError)
		return
	}
	s.writeBody(w, code, "application/json", data)
}

func (s *Server) writeBody(w http.ResponseWriter, code int, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("write response", "error", err)
	}
}
