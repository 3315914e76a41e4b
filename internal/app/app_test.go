package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/tutor/internal/config"
	"github.com/ent0n29/tutor/internal/mode"
	"github.com/ent0n29/tutor/internal/observability"
	"github.com/ent0n29/tutor/internal/reliability"
	"github.com/ent0n29/tutor/internal/tutor"
)

func TestSubmitObserverRecordsOutcomes(t *testing.T) {
	metrics := observability.NewMetrics("test_observer")
	stages := observability.NewStageWindow(16)
	o := &submitObserver{metrics: metrics, stages: stages, modelProvider: "openai", speechProvider: "deepgram"}

	o.SubmitFinished(tutor.Report{
		Mode:        mode.Conversation(mode.StyleFormal),
		Outcome:     tutor.OutcomeOK,
		Compose:     time.Millisecond,
		Model:       800 * time.Millisecond,
		Synthesis:   300 * time.Millisecond,
		Synthesized: true,
		AudioErr:    &tutor.SynthesisError{Err: &reliability.StatusError{Provider: "deepgram", Status: 503}},
		Total:       1200 * time.Millisecond,
	})
	o.SubmitFinished(tutor.Report{
		Mode:     mode.Grammar(mode.LevelBeginner),
		Outcome:  tutor.OutcomeModelError,
		Model:    50 * time.Millisecond,
		ModelErr: context.DeadlineExceeded,
	})

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`test_observer_submits_total{mode="conversation",outcome="ok"} 1`,
		`test_observer_submits_total{mode="grammar",outcome="model_error"} 1`,
		`test_observer_provider_errors_total{code="timeout",provider="openai"} 1`,
		`test_observer_provider_errors_total{code="http_503",provider="deepgram"} 1`,
		`test_observer_model_latency_ms_count{mode="conversation"} 1`,
		`test_observer_synthesis_latency_ms_count 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}

	snap := stages.Snapshot()
	samples := map[string]int{}
	for _, st := range snap.Stages {
		samples[st.Stage] = st.Samples
	}
	if samples[observability.StageModel] != 2 || samples[observability.StageSynthesis] != 1 || samples[observability.StageTotal] != 1 {
		t.Fatalf("stage samples = %v", samples)
	}
	indicators := map[string]int{}
	for _, ind := range snap.Indicators {
		indicators[ind.Name] = ind.Count
	}
	if indicators["model_failed"] != 1 || indicators["synthesis_failed"] != 1 {
		t.Fatalf("indicators = %v", indicators)
	}
}

func TestBuildServesHealth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := Build(ctx, config.Config{
		MetricsNamespace:         "test_build",
		HistoryTurns:             10,
		ModelProvider:            "mock",
		SpeechProvider:           "none",
		SessionInactivityTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()
	if res.Providers.Model != "mock" || res.Providers.Speech != "none" || res.Providers.Transcript != "memory" {
		t.Fatalf("Providers = %+v", res.Providers)
	}

	rec := httptest.NewRecorder()
	res.API.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"speech":"none"`) {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body.String())
	}

	s := res.NewTutor("direct", mode.Default())
	out, err := s.Submit(ctx, "How are you today?", mode.Default())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if out.Reply == "" || len(out.Audio) != 0 {
		t.Fatalf("Submit() = %+v, want text-only reply", out)
	}
}

func TestBuildRejectsUnknownProviders(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []config.Config{
		{ModelProvider: "crystal-ball"},
		{ModelProvider: "mock", SpeechProvider: "kazoo"},
		{ModelProvider: "mock", SpeechProvider: "none", TranscriptURL: "mysql://x"},
	} {
		if _, err := Build(ctx, cfg); err == nil {
			t.Fatalf("Build(%+v) should fail", cfg)
		} else if errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected cancellation: %v", err)
		}
	}
}
