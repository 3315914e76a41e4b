package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/tutor/internal/audio"
	"github.com/ent0n29/tutor/internal/config"
	"github.com/ent0n29/tutor/internal/mode"
	"github.com/ent0n29/tutor/internal/observability"
	"github.com/ent0n29/tutor/internal/protocol"
	"github.com/ent0n29/tutor/internal/session"
	"github.com/ent0n29/tutor/internal/transcript"
	"github.com/ent0n29/tutor/internal/tutor"
)

type scriptedModel struct {
	mu    sync.Mutex
	reply string
	err   error
}

func (m *scriptedModel) Generate(ctx context.Context, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.reply, m.err
}

func (m *scriptedModel) set(reply string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply, m.err = reply, err
}

type wavSpeech struct{}

func (wavSpeech) Synthesize(_ context.Context, _ string) ([]byte, error) {
	return audio.EncodeWAVPCM16LE(make([]byte, 32), 16000)
}

type testEnv struct {
	ts       *httptest.Server
	sessions *session.Manager
	sink     *transcript.InMemorySink
	model    *scriptedModel
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Config{SessionInactivityTimeout: 2 * time.Minute, HistoryTurns: 10}
	model := &scriptedModel{reply: "Good morning to you.\nReview: Nicely phrased."}
	sink := transcript.NewInMemorySink(0)
	recorder := transcript.NewRecorder(sink)
	sessions := session.NewManager(cfg.SessionInactivityTimeout, func(id string, m mode.Mode) *tutor.Session {
		return tutor.NewSession(tutor.Options{ID: id, Mode: m, Model: model, Speech: wavSpeech{}, Recorder: recorder})
	})
	srv := New(Options{
		Config:      cfg,
		Sessions:    sessions,
		Transcripts: sink,
		Speech:      wavSpeech{},
		Metrics:     observability.NewMetrics("test_httpapi"),
		Stages:      observability.NewStageWindow(16),
		Providers:   Providers{Model: "scripted", Speech: "wav", Transcript: "memory"},
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, sessions: sessions, sink: sink, model: model}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer res.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func (e *testEnv) createSession(t *testing.T, body any) string {
	t.Helper()
	res, out := e.do(t, http.MethodPost, "/v1/tutor/session", body)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d (%v)", res.StatusCode, http.StatusCreated, out)
	}
	id, _ := out["session_id"].(string)
	if id == "" {
		t.Fatalf("missing session_id in create response: %+v", out)
	}
	return id
}

func TestCreateAndEndSession(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, map[string]string{"user_id": "user-1", "mode": "grammar", "option": "intermediate"})

	info, err := env.sessions.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if info.Mode != mode.Grammar(mode.LevelIntermediate) {
		t.Fatalf("Mode = %v, want grammar/intermediate", info.Mode)
	}

	res, _ := env.do(t, http.MethodPost, "/v1/tutor/session/"+id+"/end", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	res, out := env.do(t, http.MethodPost, "/v1/tutor/session/"+id+"/submit", map[string]string{"question": "hi"})
	if res.StatusCode != http.StatusGone || out["code"] != "session_ended" {
		t.Fatalf("submit after end = %d %v, want 410 session_ended", res.StatusCode, out)
	}
}

func TestCreateSessionDefaultsAndRejectsUnknownMode(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, nil)
	info, _ := env.sessions.Get(id)
	if info.Mode != mode.Default() || info.UserID != "anonymous" {
		t.Fatalf("defaults = %+v", info)
	}

	res, out := env.do(t, http.MethodPost, "/v1/tutor/session", map[string]string{"mode": "poetry"})
	if res.StatusCode != http.StatusBadRequest || out["code"] != "unknown_mode" {
		t.Fatalf("status = %d %v, want 400 unknown_mode", res.StatusCode, out)
	}
}

func TestSubmitConversationReturnsReplyReviewAndAudio(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, map[string]string{"mode": "conversation", "option": "casual"})

	res, out := env.do(t, http.MethodPost, "/v1/tutor/session/"+id+"/submit", map[string]string{"question": "Good morning!"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status = %d (%v)", res.StatusCode, out)
	}
	if out["reply"] != "Good morning to you." {
		t.Fatalf("reply = %q", out["reply"])
	}
	if out["review"] != "Review: Nicely phrased." || out["has_review"] != true {
		t.Fatalf("review = %q has_review = %v", out["review"], out["has_review"])
	}
	if out["mode"] != "conversation" || out["option"] != "casual" {
		t.Fatalf("mode = %v/%v", out["mode"], out["option"])
	}
	raw, err := base64.StdEncoding.DecodeString(out["audio_base64"].(string))
	if err != nil {
		t.Fatalf("decode audio: %v", err)
	}
	if _, err := audio.Inspect(raw); err != nil || out["audio_format"] != "wav" {
		t.Fatalf("audio invalid: %v format=%v", err, out["audio_format"])
	}

	_, hist := env.do(t, http.MethodGet, "/v1/tutor/session/"+id+"/history", nil)
	turns, _ := hist["turns"].([]any)
	if len(turns) != 2 {
		t.Fatalf("history turns = %d, want 2 (%v)", len(turns), hist)
	}
	assistant := turns[1].(map[string]any)
	if assistant["speaker"] != "Assistant" || !strings.Contains(assistant["text"].(string), "Review:") {
		t.Fatalf("assistant turn should keep the raw response: %v", assistant)
	}

	_, tr := env.do(t, http.MethodGet, "/v1/tutor/session/"+id+"/transcript?limit=5", nil)
	records, _ := tr["records"].([]any)
	if len(records) != 1 {
		t.Fatalf("transcript records = %d, want 1", len(records))
	}
}

func TestSubmitVocabularyIsTextOnly(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, map[string]string{"mode": "vocabulary"})
	env.model.set("Ephemeral: lasting a very short time.\nReview: not split here", nil)

	_, out := env.do(t, http.MethodPost, "/v1/tutor/session/"+id+"/submit", map[string]string{"question": "ephemeral"})
	if out["reply"] != "Ephemeral: lasting a very short time.\nReview: not split here" {
		t.Fatalf("reply = %q", out["reply"])
	}
	if _, ok := out["audio_base64"]; ok {
		t.Fatalf("vocabulary reply should carry no audio: %v", out)
	}
	if out["has_review"] != false {
		t.Fatalf("has_review = %v, want false", out["has_review"])
	}
}

func TestSubmitErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, nil)

	cases := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"blank question", "/v1/tutor/session/" + id + "/submit", map[string]string{"question": "  "}, http.StatusBadRequest, "empty_input"},
		{"empty body", "/v1/tutor/session/" + id + "/submit", nil, http.StatusBadRequest, "empty_input"},
		{"unknown option", "/v1/tutor/session/" + id + "/submit", map[string]string{"question": "hi", "mode": "grammar", "option": "wizard"}, http.StatusBadRequest, "unknown_mode"},
		{"missing session", "/v1/tutor/session/nope/submit", map[string]string{"question": "hi"}, http.StatusNotFound, "session_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, out := env.do(t, http.MethodPost, tc.path, tc.body)
			if res.StatusCode != tc.status || out["code"] != tc.code {
				t.Fatalf("status = %d code = %v, want %d %s", res.StatusCode, out["code"], tc.status, tc.code)
			}
		})
	}

	env.model.set("", errors.New("upstream exploded"))
	res, out := env.do(t, http.MethodPost, "/v1/tutor/session/"+id+"/submit", map[string]string{"question": "hi"})
	if res.StatusCode != http.StatusBadGateway || out["code"] != "model_error" {
		t.Fatalf("model failure = %d %v, want 502 model_error", res.StatusCode, out)
	}
}

func TestSetModeClearsHistory(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, nil)
	env.do(t, http.MethodPost, "/v1/tutor/session/"+id+"/submit", map[string]string{"question": "Hello"})

	res, out := env.do(t, http.MethodPut, "/v1/tutor/session/"+id+"/mode", map[string]string{"mode": "grammar", "option": "beginner"})
	if res.StatusCode != http.StatusOK || out["history_cleared"] != true {
		t.Fatalf("set mode = %d %v", res.StatusCode, out)
	}
	_, hist := env.do(t, http.MethodGet, "/v1/tutor/session/"+id+"/history", nil)
	if turns, _ := hist["turns"].([]any); len(turns) != 0 {
		t.Fatalf("history after mode change = %v", turns)
	}

	_, out = env.do(t, http.MethodPut, "/v1/tutor/session/"+id+"/mode", map[string]string{"mode": "grammar", "option": "beginner"})
	if out["history_cleared"] != false {
		t.Fatalf("same mode should not clear: %v", out)
	}
}

func TestListModes(t *testing.T) {
	env := newTestEnv(t)
	res, out := env.do(t, http.MethodGet, "/v1/modes", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	modes, _ := out["modes"].([]any)
	if len(modes) != 3 {
		t.Fatalf("modes = %v, want 3 kinds", modes)
	}
	grammar := modes[2].(map[string]any)
	if grammar["mode"] != "grammar" || len(grammar["options"].([]any)) != 3 || grammar["speaks"] != false {
		t.Fatalf("grammar entry = %v", grammar)
	}
}

func TestHealthReadyAndPerf(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz", "/v1/perf/latency"} {
		res, out := env.do(t, http.MethodGet, path, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d (%v)", path, res.StatusCode, out)
		}
	}
	res, err := http.Get(env.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), "test_httpapi_active_sessions") {
		t.Fatalf("metrics output missing active_sessions")
	}
}

func TestPreviewTTS(t *testing.T) {
	env := newTestEnv(t)
	res, err := http.Post(env.ts.URL+"/v1/tts/preview", "application/json", strings.NewReader(`{"text":"Hello there"}`))
	if err != nil {
		t.Fatalf("POST preview error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK || res.Header.Get("Content-Type") != "audio/wav" {
		t.Fatalf("preview = %d %s", res.StatusCode, res.Header.Get("Content-Type"))
	}
	body, _ := io.ReadAll(res.Body)
	if _, err := audio.Inspect(body); err != nil {
		t.Fatalf("preview body is not WAV: %v", err)
	}
}

func readWS(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestSessionWebsocketSubmit(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, nil)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/tutor/session/ws?session_id=" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if msg := readWS(t, conn); msg["type"] != string(protocol.TypeSessionReady) || msg["mode"] != "conversation" {
		t.Fatalf("first message = %v", msg)
	}

	if err := conn.WriteJSON(protocol.Submit{Type: protocol.TypeSubmit, SessionID: id, RequestID: "r1", Question: "Hi!"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var stages []string
	for {
		msg := readWS(t, conn)
		if msg["type"] == string(protocol.TypeTutorStage) {
			stages = append(stages, msg["stage"].(string))
			continue
		}
		if msg["type"] != string(protocol.TypeTutorReply) {
			t.Fatalf("unexpected message %v", msg)
		}
		if msg["reply"] != "Good morning to you." || msg["request_id"] != "r1" || msg["audio_format"] != "wav" {
			t.Fatalf("reply = %v", msg)
		}
		break
	}
	want := []string{"composing", "awaiting_model", "splitting", "awaiting_synthesis", "idle"}
	if strings.Join(stages, ",") != strings.Join(want, ",") {
		t.Fatalf("stages = %v, want %v", stages, want)
	}

	if err := conn.WriteJSON(protocol.SetMode{Type: protocol.TypeSetMode, SessionID: id, Mode: "vocabulary"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readWS(t, conn); msg["type"] != string(protocol.TypeModeChanged) || msg["history_cleared"] != true {
		t.Fatalf("mode change = %v", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if msg := readWS(t, conn); msg["type"] != string(protocol.TypeErrorEvent) || msg["code"] != "invalid_client_message" {
		t.Fatalf("error event = %v", msg)
	}
}

func TestErrorStatusRetryableModelErrors(t *testing.T) {
	status, code, retryable := errorStatus(&tutor.ModelError{Err: context.DeadlineExceeded})
	if status != http.StatusGatewayTimeout || code != "model_timeout" || !retryable {
		t.Fatalf("errorStatus(deadline) = %d %s %v", status, code, retryable)
	}
	status, code, _ = errorStatus(tutor.ErrBusy)
	if status != http.StatusConflict || code != "busy" {
		t.Fatalf("errorStatus(busy) = %d %s", status, code)
	}
}

func TestPreviewTTSDisabledWithoutSpeech(t *testing.T) {
	srv := New(Options{
		Sessions: session.NewManager(time.Minute, nil),
		Metrics:  observability.NewMetrics("test_preview_off"),
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/tts/preview", strings.NewReader(`{}`))
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotImplemented)
	}
}
