package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ent0n29/tutor/internal/reliability"
)

func TestNewGeneratorAutoFallsBackToMock(t *testing.T) {
	g, name, err := NewGenerator(Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	if name != "mock" {
		t.Fatalf("provider = %q, want mock", name)
	}
	out, err := g.Generate(context.Background(), "Tutor prompt\nHuman: hello")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "I heard you: hello" {
		t.Fatalf("Generate() = %q", out)
	}
}

func TestNewGeneratorModes(t *testing.T) {
	if _, name, err := NewGenerator(Config{Mode: "auto", APIKey: "k"}); err != nil || name != "openai" {
		t.Fatalf("auto with key = (%q, %v), want openai", name, err)
	}
	if _, name, err := NewGenerator(Config{Mode: "auto", HTTPURL: "http://example.test"}); err != nil || name != "http" {
		t.Fatalf("auto with url = (%q, %v), want http", name, err)
	}
	if _, _, err := NewGenerator(Config{Mode: "openai"}); err == nil {
		t.Fatalf("openai without key should fail")
	}
	if _, _, err := NewGenerator(Config{Mode: "http"}); err == nil {
		t.Fatalf("http without url should fail")
	}
	if _, _, err := NewGenerator(Config{Mode: "telepathy"}); err == nil {
		t.Fatalf("unknown mode should fail")
	}
}

func TestMockGeneratorAddsReviewForConversationPrompts(t *testing.T) {
	out, err := NewMockGenerator().Generate(context.Background(), "... put a review of what the user said ...\nHuman: I am go home")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(out, "\nReview: ") {
		t.Fatalf("Generate() = %q, want review section", out)
	}
}

func TestOpenAIGeneratorSendsPromptAsUserMessage(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Namaste!\nReview: good"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator() error = %v", err)
	}
	out, err := g.Generate(context.Background(), "prompt text\nHuman: hi")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "Namaste!\nReview: good" {
		t.Fatalf("Generate() = %q", out)
	}
	if got.Model != DefaultModel {
		t.Fatalf("model = %q, want %q", got.Model, DefaultModel)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "prompt text\nHuman: hi" {
		t.Fatalf("messages = %+v", got.Messages)
	}
}

func TestOpenAIGeneratorMapsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(Config{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator() error = %v", err)
	}
	_, err = g.Generate(context.Background(), "p")
	var statusErr *reliability.StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusTooManyRequests {
		t.Fatalf("Generate() error = %v, want 429 StatusError", err)
	}
}

func TestHTTPGeneratorJSONAndText(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"json", "application/json", `{"text":"hello"}`, "hello"},
		{"plain", "text/plain", "  hi there \n", "hi there"},
		{"sse", "text/event-stream", ": ping\n\ndata: {\"delta\":\"Hel\"}\n\ndata: {\"delta\":\"lo\"}\n\ndata: [DONE]\n", "Hello"},
		{"ndjson", "application/x-ndjson", "{\"delta\":\"Hi\"}\n there\n", "Hi there"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req httpGenerateRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt != "p" {
					t.Errorf("request prompt = %q, err = %v", req.Prompt, err)
				}
				w.Header().Set("Content-Type", tc.contentType)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			out, err := NewHTTPGenerator(srv.URL, 0).Generate(context.Background(), "p")
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if out != tc.want {
				t.Fatalf("Generate() = %q, want %q", out, tc.want)
			}
		})
	}
}

func TestHTTPGeneratorStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPGenerator(srv.URL, 0).Generate(context.Background(), "p")
	code, retryable := reliability.Classify(err)
	if code != "http_503" || !retryable {
		t.Fatalf("Classify() = (%q, %v), want (http_503, true)", code, retryable)
	}
}
