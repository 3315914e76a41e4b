package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := NewStageWindow(8)
	w.Observe(StageModel, 500*time.Millisecond)
	w.Observe(StageModel, 700*time.Millisecond)
	w.Observe(StageModel, 900*time.Millisecond)
	w.Observe("", time.Second)
	w.Observe(StageModel, -time.Second)
	w.ObserveIndicator("review_missing")
	w.ObserveIndicator("review_missing")
	w.ObserveIndicator("  ")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageModel || s.Samples != 3 {
		t.Fatalf("stage = %+v", s)
	}
	if s.LastMS != 900 || s.P50MS != 700 || s.AvgMS != 700 {
		t.Fatalf("stats = %+v", s)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 4000 {
		t.Fatalf("TargetP95MS = %.2f, want 4000", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Name != "review_missing" || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v", snap.Indicators)
	}
}

func TestStageWindowWrapsAndResets(t *testing.T) {
	w := NewStageWindow(2)
	for _, ms := range []int{10, 20, 30} {
		w.Observe(StageCompose, time.Duration(ms)*time.Millisecond)
	}
	s := w.Snapshot().Stages[0]
	if s.Samples != 2 || s.P50MS != 25 || s.LastMS != 30 {
		t.Fatalf("stats after wrap = %+v", s)
	}
	w.Reset()
	if got := w.Snapshot(); len(got.Stages) != 0 || len(got.Indicators) != 0 {
		t.Fatalf("Snapshot() after Reset = %+v", got)
	}
}

func TestMetricsHandlerExposesInstruments(t *testing.T) {
	m := NewMetrics("tutor_test")
	m.Submits.WithLabelValues("conversation/formal", "ok").Inc()
	m.ObserveModelLatency("conversation/formal", 1200*time.Millisecond)
	m.ObserveSynthesisLatency(300 * time.Millisecond)
	m.ActiveSessions.Set(2)

	// A second instance must not collide with the first.
	_ = NewMetrics("tutor_test")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`tutor_test_submits_total{mode="conversation/formal",outcome="ok"} 1`,
		`tutor_test_active_sessions 2`,
		`tutor_test_model_latency_ms_count{mode="conversation/formal"} 1`,
		`tutor_test_synthesis_latency_ms_count 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestLoggerFromContextAddsRequestID(t *testing.T) {
	prev := Logger()
	defer SetLogger(prev)

	var buf bytes.Buffer
	SetLogger(NewLogger(&buf, "debug"))
	ctx := WithRequestID(context.Background(), "req-42")
	LoggerFromContext(ctx).Info("hello")
	WithFields("session_id", "s1").Debug("fields")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2: %q", len(lines), buf.String())
	}
	var first, second map[string]any
	_ = json.Unmarshal([]byte(lines[0]), &first)
	_ = json.Unmarshal([]byte(lines[1]), &second)
	if first["request_id"] != "req-42" {
		t.Fatalf("first line = %v", first)
	}
	if second["session_id"] != "s1" || second["level"] != "DEBUG" {
		t.Fatalf("second line = %v", second)
	}
	if RequestID(context.Background()) != "" {
		t.Fatalf("RequestID() on empty context should be empty")
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "warn")
	l.Info("dropped")
	l.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("output = %q", buf.String())
	}
}
