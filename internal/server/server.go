// Package server exposes the pipeline over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/law-makers/linkmeta/internal/host"
	"github.com/law-makers/linkmeta/internal/monitoring"
	"github.com/law-makers/linkmeta/internal/pipeline"
	"github.com/law-makers/linkmeta/internal/reqctx"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// maxBody caps request bodies
const maxBody = 1 << 20

// Options configure the HTTP bridge
type Options struct {
	// Token, when set, is required as a Bearer token on /v1 routes
	Token string

	// RequestsPerSecond limits /v1 traffic; zero disables the limit
	RequestsPerSecond float64
	Burst             int
}

// Server routes API requests to the pipeline
type Server struct {
	pipeline *pipeline.Pipeline
	schemas  host.SchemaStore
	metrics  *monitoring.Metrics
	opts     Options
	router   *mux.Router
}

// New builds the router
func New(p *pipeline.Pipeline, schemas host.SchemaStore, m *monitoring.Metrics, opts Options) *Server {
	s := &Server{pipeline: p, schemas: schemas, metrics: m, opts: opts}

	r := mux.NewRouter()
	r.Use(logRequests)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	if opts.Token != "" {
		api.Use(requireToken(opts.Token))
	}
	if opts.RequestsPerSecond > 0 {
		api.Use(rateLimit(opts.RequestsPerSecond, opts.Burst))
	}
	api.HandleFunc("/extract", s.handleExtract).Methods(http.MethodPost)
	api.HandleFunc("/import", s.handleImport).Methods(http.MethodPost)
	api.HandleFunc("/clip", s.handleClip).Methods(http.MethodPost)
	api.HandleFunc("/blocks/{id}/extract", s.handleBlockExtract).Methods(http.MethodPost)
	api.HandleFunc("/rules", s.handleRules).Methods(http.MethodGet)
	api.HandleFunc("/tags", s.handleTags).Methods(http.MethodGet)
	api.HandleFunc("/tags/{name}", s.handleTag).Methods(http.MethodGet)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP bridge listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down HTTP bridge")
		return srv.Shutdown(shutdownCtx)
	}
}

type extractRequest struct {
	URL        string `json:"url"`
	Target     string `json:"target,omitempty"`
	Browser    bool   `json:"browser,omitempty"`
	SkipAssets bool   `json:"skip_assets,omitempty"`
}

func (r extractRequest) options() pipeline.Options {
	return pipeline.Options{Browser: r.Browser, SkipAssets: r.SkipAssets}
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"rules":   s.pipeline.Rules().Len(),
		"browser": s.pipeline.HasBrowser(),
	})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !decode(w, r, &req) {
		return
	}
	ext, err := s.pipeline.Extract(r.Context(), req.URL, req.options())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ext)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !decode(w, r, &req) {
		return
	}
	ext, err := s.pipeline.Import(r.Context(), req.URL, req.Target, req.options())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ext)
}

func (s *Server) handleClip(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !decode(w, r, &req) {
		return
	}
	clip, err := s.pipeline.Clip(r.Context(), req.URL, req.options())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clip)
}

func (s *Server) handleBlockExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	ext, err := s.pipeline.ApplyToBlock(r.Context(), mux.Vars(r)["id"], req.options())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ext)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Rules().Rules())
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.schemas.ListTags(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (s *Server) handleTag(w http.ResponseWriter, r *http.Request) {
	schema, err := s.schemas.GetTagSchema(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error(), Code: string(engine.ErrCodeValidation)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error(), Code: string(engine.CodeOf(err))}
	var re *reqctx.RequestError
	if errors.As(err, &re) {
		resp.RequestID = re.RequestID
	}
	writeJSON(w, statusFor(err), resp)
}

// statusFor maps pipeline errors onto HTTP status codes
func statusFor(err error) int {
	if errors.Is(err, host.ErrNotFound) {
		return http.StatusNotFound
	}
	switch engine.CodeOf(err) {
	case engine.ErrCodeValidation:
		return http.StatusBadRequest
	case engine.ErrCodeNoRule, engine.ErrCodeScript:
		return http.StatusUnprocessableEntity
	case engine.ErrCodeFetch:
		return http.StatusBadGateway
	case engine.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case engine.ErrCodeBrowserCrash:
		return http.StatusServiceUnavailable
	case engine.ErrCodeSchemaSync:
		if errors.Is(err, host.ErrSchemaConflict) {
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("HTTP request")
	})
}

func requireToken(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimit(rps float64, burst int) mux.MiddlewareFunc {
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
