package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/tutor/internal/audio"
)

const defaultPreviewText = "Hello! Shall we practise some English together?"

type previewTTSRequest struct {
	Text string `json:"text"`
}

func (s *Server) handlePreviewTTS(w http.ResponseWriter, r *http.Request) {
	if s.speech == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "speech synthesis is disabled")
		return
	}
	var req previewTTSRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		text = defaultPreviewText
	}
	if len([]rune(text)) > 500 {
		respondError(w, http.StatusBadRequest, "text_too_long", "preview text is limited to 500 characters")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	started := time.Now()
	wav, err := s.speech.Synthesize(ctx, text)
	if err == nil {
		_, err = audio.Inspect(wav)
	}
	if err != nil {
		s.metrics.ProviderErrors.WithLabelValues(s.providers.Speech, "preview_failed").Inc()
		respondError(w, http.StatusBadGateway, "tts_preview_failed", err.Error())
		return
	}
	s.metrics.ObserveSynthesisLatency(time.Since(started))

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}
