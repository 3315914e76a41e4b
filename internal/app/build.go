// Package app wires configuration into a running tutor service.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ent0n29/tutor/internal/config"
	"github.com/ent0n29/tutor/internal/httpapi"
	"github.com/ent0n29/tutor/internal/llm"
	"github.com/ent0n29/tutor/internal/mode"
	"github.com/ent0n29/tutor/internal/observability"
	"github.com/ent0n29/tutor/internal/session"
	"github.com/ent0n29/tutor/internal/speech"
	"github.com/ent0n29/tutor/internal/transcript"
	"github.com/ent0n29/tutor/internal/tutor"
)

const (
	janitorInterval = 5 * time.Second
	stageWindowSize = 512
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Sessions  *session.Manager
	Metrics   *observability.Metrics
	Stages    *observability.StageWindow
	Providers httpapi.Providers

	// NewTutor builds a standalone tutor session wired to the same backends,
	// for hosts that drive a single learner directly.
	NewTutor func(id string, m mode.Mode) *tutor.Session

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

// Build validates the prompt templates, selects backends and assembles the
// HTTP server. The janitor runs until ctx is done.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	if err := mode.ValidateTemplates(); err != nil {
		return nil, fmt.Errorf("prompt templates: %w", err)
	}
	logger := observability.Logger()

	model, modelName, err := llm.NewGenerator(llm.Config{
		Mode:        cfg.ModelProvider,
		APIKey:      cfg.ModelAPIKey,
		BaseURL:     cfg.ModelBaseURL,
		Model:       cfg.ModelName,
		Temperature: float32(cfg.ModelTemperature),
		MaxTokens:   cfg.ModelMaxTokens,
		HTTPURL:     cfg.ModelHTTPURL,
		Timeout:     cfg.ModelTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("model backend init failed: %w", err)
	}

	synth, speechName, err := speech.NewSynthesizer(speech.Config{
		Mode:                cfg.SpeechProvider,
		Timeout:             cfg.SpeechTimeout,
		DeepgramAPIKey:      cfg.DeepgramAPIKey,
		DeepgramBaseURL:     cfg.DeepgramBaseURL,
		DeepgramModel:       cfg.DeepgramModel,
		DeepgramEncoding:    cfg.DeepgramEncoding,
		ElevenLabsAPIKey:    cfg.ElevenLabsAPIKey,
		ElevenLabsWSBaseURL: cfg.ElevenLabsWSBaseURL,
		ElevenLabsVoiceID:   cfg.ElevenLabsVoiceID,
		ElevenLabsModelID:   cfg.ElevenLabsModelID,
	})
	if err != nil {
		return nil, fmt.Errorf("speech backend init failed: %w", err)
	}
	// Keep a nil interface when synthesis is off so sessions run text-only.
	var speaker tutor.Synthesizer
	if synth != nil {
		speaker = synth
	}

	sink, sinkName, err := transcript.NewSink(ctx, cfg.TranscriptURL)
	if err != nil {
		return nil, fmt.Errorf("transcript sink init failed: %w", err)
	}
	recorder := transcript.NewRecorder(sink)

	providers := httpapi.Providers{Model: modelName, Speech: speechName, Transcript: sinkName}
	logger.Info("backends selected", "model", modelName, "speech", speechName, "transcript", sinkName)

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	stages := observability.NewStageWindow(stageWindowSize)
	observer := &submitObserver{
		metrics:        metrics,
		stages:         stages,
		modelProvider:  modelName,
		speechProvider: speechName,
	}

	newTutor := func(id string, m mode.Mode) *tutor.Session {
		return tutor.NewSession(tutor.Options{
			ID:           id,
			Mode:         m,
			HistoryLimit: cfg.HistoryTurns,
			Model:        model,
			Speech:       speaker,
			Recorder:     recorder,
			Observer:     observer,
			Logger:       logger,
		})
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout, newTutor)
	sessions.SetExpireHook(func(info session.Info) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
		logger.Info("session expired", "session_id", info.ID, "submits", info.SubmitCount)
	})
	sessions.StartJanitor(ctx, janitorInterval)

	api := httpapi.New(httpapi.Options{
		Config:      cfg,
		Sessions:    sessions,
		Transcripts: sink,
		Speech:      speaker,
		Metrics:     metrics,
		Stages:      stages,
		Providers:   providers,
	})

	cleanup := func() error {
		if err := sink.Close(); err != nil {
			return fmt.Errorf("close transcript sink: %w", err)
		}
		return nil
	}

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Sessions:  sessions,
		Metrics:   metrics,
		Stages:    stages,
		Providers: providers,
		NewTutor:  newTutor,
		Cleanup:   cleanup,
	}, nil
}
