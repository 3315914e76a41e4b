// Package httpapi exposes tutoring sessions over HTTP and a websocket.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/tutor/internal/config"
	"github.com/ent0n29/tutor/internal/mode"
	"github.com/ent0n29/tutor/internal/observability"
	"github.com/ent0n29/tutor/internal/session"
	"github.com/ent0n29/tutor/internal/transcript"
	"github.com/ent0n29/tutor/internal/tutor"
)

// Providers names the backends selected at startup, for health output.
type Providers struct {
	Model      string `json:"model"`
	Speech     string `json:"speech"`
	Transcript string `json:"transcript"`
}

type Options struct {
	Config      config.Config
	Sessions    *session.Manager
	Transcripts transcript.Sink
	// Speech backs the preview endpoint; nil disables it.
	Speech    tutor.Synthesizer
	Metrics   *observability.Metrics
	Stages    *observability.StageWindow
	Providers Providers
}

type Server struct {
	cfg         config.Config
	sessions    *session.Manager
	transcripts transcript.Sink
	speech      tutor.Synthesizer
	metrics     *observability.Metrics
	stages      *observability.StageWindow
	providers   Providers
	upgrader    websocket.Upgrader
}

func New(opts Options) *Server {
	cfg := opts.Config
	return &Server{
		cfg:         cfg,
		sessions:    opts.Sessions,
		transcripts: opts.Transcripts,
		speech:      opts.Speech,
		metrics:     opts.Metrics,
		stages:      opts.Stages,
		providers:   opts.Providers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/modes", s.handleListModes)

	r.Route("/v1/tutor/session", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/ws", s.handleSessionWS)
		r.Post("/{id}/end", s.handleEndSession)
		r.Put("/{id}/mode", s.handleSetMode)
		r.Post("/{id}/submit", s.handleSubmit)
		r.Get("/{id}/history", s.handleHistory)
		r.Get("/{id}/transcript", s.handleTranscript)
	})
	r.Post("/v1/tts/preview", s.handlePreviewTTS)

	return r
}

// requestLogger logs one line per request with the chi request id attached
// to the context logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.WithRequestID(r.Context(), chiMiddleware.GetReqID(r.Context()))
		r = r.WithContext(ctx)
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		observability.LoggerFromContext(ctx).Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"providers":       s.providers,
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if err := mode.ValidateTemplates(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "config_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"providers": s.providers,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}
	m := mode.Default()
	if strings.TrimSpace(req.Mode) != "" {
		parsed, err := mode.Parse(req.Mode, req.Option)
		if err != nil {
			respondError(w, http.StatusBadRequest, "unknown_mode", err.Error())
			return
		}
		m = parsed
	}

	info := s.sessions.Create(req.UserID, m)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		Info:            info,
		InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessions.End(chi.URLParam(r, "id"))
	if err != nil {
		respondTutorError(w, err)
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, info)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
