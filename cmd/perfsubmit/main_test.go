package main

import (
	"strings"
	"testing"
	"time"
)

func TestWSURLForSession(t *testing.T) {
	got, err := wsURLForSession("https://tutor.example.com/base/", "abc 1")
	if err != nil {
		t.Fatalf("wsURLForSession() error = %v", err)
	}
	want := "wss://tutor.example.com/base/v1/tutor/session/ws?session_id=abc+1"
	if got != want {
		t.Fatalf("wsURLForSession() = %q, want %q", got, want)
	}
	if _, err := wsURLForSession("ftp://host", "x"); err == nil {
		t.Fatalf("wsURLForSession(ftp) should fail")
	}
}

func TestSplitQuestions(t *testing.T) {
	got, err := splitQuestions(" Hello | | How are you? ")
	if err != nil {
		t.Fatalf("splitQuestions() error = %v", err)
	}
	if len(got) != 2 || got[0] != "Hello" || got[1] != "How are you?" {
		t.Fatalf("splitQuestions() = %q", got)
	}
	if _, err := splitQuestions("|  |"); err == nil {
		t.Fatalf("splitQuestions(blank) should fail")
	}
	if def, _ := splitQuestions(""); len(def) != len(defaultQuestions) {
		t.Fatalf("default questions = %d", len(def))
	}
}

func TestSummarize(t *testing.T) {
	results := []turnResult{
		{latency: 100 * time.Millisecond},
		{latency: 300 * time.Millisecond},
		{latency: 200 * time.Millisecond},
		{failed: true, detail: "model_error"},
	}
	got := summarize(results)
	for _, want := range []string{"turns=4", "failed=1", "p50_ms=200", "max_ms=300"} {
		if !strings.Contains(got, want) {
			t.Fatalf("summarize() = %q, missing %q", got, want)
		}
	}
}

func TestAwaitReplySkipsOtherRequests(t *testing.T) {
	events := make(chan wsEnvelope, 2)
	events <- wsEnvelope{Type: "tutor_reply", RequestID: "other"}
	events <- wsEnvelope{Type: "error_event", RequestID: "mine", Code: "busy"}
	res, err := awaitReply(events, make(chan error), "mine", time.Second)
	if err != nil {
		t.Fatalf("awaitReply() error = %v", err)
	}
	if !res.failed || !strings.HasPrefix(res.detail, "busy") {
		t.Fatalf("awaitReply() = %+v", res)
	}
}
