package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/tutor/internal/history"
	"github.com/ent0n29/tutor/internal/mode"
	"github.com/ent0n29/tutor/internal/observability"
	"github.com/ent0n29/tutor/internal/prompt"
	"github.com/ent0n29/tutor/internal/reliability"
	"github.com/ent0n29/tutor/internal/session"
	"github.com/ent0n29/tutor/internal/transcript"
	"github.com/ent0n29/tutor/internal/tutor"
)

type modeRequest struct {
	Mode   string `json:"mode"`
	Option string `json:"option"`
}

type submitRequest struct {
	Question string `json:"question"`
	Mode     string `json:"mode"`
	Option   string `json:"option"`
}

type submitResponse struct {
	SessionID   string `json:"session_id"`
	Mode        string `json:"mode"`
	Option      string `json:"option,omitempty"`
	Reply       string `json:"reply"`
	Review      string `json:"review,omitempty"`
	HasReview   bool   `json:"has_review"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`
	AudioError  string `json:"audio_error,omitempty"`
}

type modeResponse struct {
	SessionID      string `json:"session_id"`
	Mode           string `json:"mode"`
	Option         string `json:"option,omitempty"`
	HistoryCleared bool   `json:"history_cleared"`
}

type historyResponse struct {
	SessionID string         `json:"session_id"`
	Mode      string         `json:"mode"`
	Option    string         `json:"option,omitempty"`
	Limit     int            `json:"limit"`
	Turns     []history.Turn `json:"turns"`
}

type modeCatalogEntry struct {
	Mode         string   `json:"mode"`
	Options      []string `json:"options,omitempty"`
	SplitsReview bool     `json:"splits_review"`
	Speaks       bool     `json:"speaks"`
}

// modeCatalog groups mode.All() by kind, keeping display order.
func modeCatalog() []modeCatalogEntry {
	var out []modeCatalogEntry
	index := map[mode.Kind]int{}
	for _, m := range mode.All() {
		i, ok := index[m.Kind]
		if !ok {
			index[m.Kind] = len(out)
			out = append(out, modeCatalogEntry{
				Mode:         string(m.Kind),
				SplitsReview: m.SplitsReview(),
				Speaks:       m.Speaks(),
			})
			i = len(out) - 1
		}
		if opt := m.Option(); opt != "" {
			out[i].Options = append(out[i].Options, opt)
		}
	}
	return out
}

func (s *Server) handleListModes(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"default": mode.Default(),
		"modes":   modeCatalog(),
	})
}

// resolveMode parses kind/option, falling back to current when kind is empty.
func resolveMode(kind, option string, current mode.Mode) (mode.Mode, error) {
	if strings.TrimSpace(kind) == "" {
		return current, nil
	}
	return mode.Parse(kind, option)
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.sessions.Tutor(id)
	if err != nil {
		respondTutorError(w, err)
		return
	}
	var req modeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	m, err := mode.Parse(req.Mode, req.Option)
	if err != nil {
		respondTutorError(w, err)
		return
	}
	changed, err := t.SetMode(m)
	if err != nil {
		respondTutorError(w, err)
		return
	}
	if changed {
		s.metrics.SessionEvents.WithLabelValues("mode_changed").Inc()
	}
	respondJSON(w, http.StatusOK, modeResponse{
		SessionID:      id,
		Mode:           string(m.Kind),
		Option:         m.Option(),
		HistoryCleared: changed,
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.sessions.Tutor(id)
	if err != nil {
		respondTutorError(w, err)
		return
	}
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondTutorError(w, tutor.ErrEmptyInput)
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	m, err := resolveMode(req.Mode, req.Option, t.Mode())
	if err != nil {
		respondTutorError(w, err)
		return
	}

	res, err := s.submit(r.Context(), id, t, req.Question, m)
	if err != nil {
		respondTutorError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSubmitResponse(id, res))
}

// submit runs one cycle and updates the registry's activity counters.
func (s *Server) submit(ctx context.Context, id string, t *tutor.Session, question string, m mode.Mode, opts ...tutor.SubmitOption) (tutor.Result, error) {
	before := t.Mode()
	res, err := t.Submit(ctx, question, m, opts...)
	if t.Mode() != before {
		s.metrics.SessionEvents.WithLabelValues("mode_changed").Inc()
	}
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("submit failed", "session_id", id, "mode", m.String(), "error", err)
		return tutor.Result{}, err
	}
	s.sessions.MarkSubmitted(id)
	return res, nil
}

func newSubmitResponse(id string, res tutor.Result) submitResponse {
	out := submitResponse{
		SessionID: id,
		Mode:      string(res.Mode.Kind),
		Option:    res.Mode.Option(),
		Reply:     res.Reply,
		Review:    res.Review,
		HasReview: res.HasReview,
	}
	if len(res.Audio) > 0 {
		out.AudioBase64 = base64.StdEncoding.EncodeToString(res.Audio)
		out.AudioFormat = "wav"
	}
	if res.AudioErr != nil {
		out.AudioError = res.AudioErr.Error()
	}
	return out
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.sessions.Tutor(id)
	if err != nil {
		respondTutorError(w, err)
		return
	}
	m := t.Mode()
	turns := t.History()
	if turns == nil {
		turns = []history.Turn{}
	}
	respondJSON(w, http.StatusOK, historyResponse{
		SessionID: id,
		Mode:      string(m.Kind),
		Option:    m.Option(),
		Limit:     s.cfg.HistoryTurns,
		Turns:     turns,
	})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Get(id); err != nil {
		respondTutorError(w, err)
		return
	}
	if s.transcripts == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "transcript sink not configured")
		return
	}
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	records, err := s.transcripts.Recent(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "transcript_unavailable", err.Error())
		return
	}
	if records == nil {
		records = []transcript.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"records":    records,
	})
}

// errorStatus maps tutor, mode and registry errors to an HTTP status and a
// stable error code.
func errorStatus(err error) (status int, code string, retryable bool) {
	var modelErr *tutor.ModelError
	switch {
	case errors.Is(err, tutor.ErrEmptyInput):
		return http.StatusBadRequest, "empty_input", false
	case errors.Is(err, mode.ErrUnknownMode):
		return http.StatusBadRequest, "unknown_mode", false
	case errors.Is(err, tutor.ErrBusy):
		return http.StatusConflict, "busy", true
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "session_not_found", false
	case errors.Is(err, session.ErrEnded):
		return http.StatusGone, "session_ended", false
	case errors.Is(err, prompt.ErrMissingPlaceholder):
		return http.StatusInternalServerError, "config_error", false
	case errors.As(err, &modelErr):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, "model_timeout", true
		}
		_, retryable := reliability.Classify(modelErr.Err)
		return http.StatusBadGateway, "model_error", retryable
	case errors.Is(err, context.Canceled):
		return 499, "canceled", false
	default:
		return http.StatusInternalServerError, "internal_error", false
	}
}

func respondTutorError(w http.ResponseWriter, err error) {
	status, code, retryable := errorStatus(err)
	respondJSON(w, status, errorResponse{Error: err.Error(), Code: code, Retryable: retryable})
}
