package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestParseClientMessageSubmit(t *testing.T) {
	raw := []byte(`{"type":"submit","session_id":"s1","request_id":"r1","question":"How are you?","mode":"grammar","option":"beginner"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	submit, ok := msg.(Submit)
	if !ok {
		t.Fatalf("message type = %T, want Submit", msg)
	}
	if submit.SessionID != "s1" || submit.Question != "How are you?" || submit.Mode != "grammar" || submit.Option != "beginner" {
		t.Fatalf("unexpected submit: %+v", submit)
	}
}

func TestParseClientMessageSetModeAndReset(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"set_mode","session_id":"s1","mode":"vocabulary"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if sm, ok := msg.(SetMode); !ok || sm.Mode != "vocabulary" {
		t.Fatalf("message = %#v, want SetMode vocabulary", msg)
	}

	msg, err = ParseClientMessage([]byte(`{"type":"reset","session_id":"s1"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if _, ok := msg.(Reset); !ok {
		t.Fatalf("message type = %T, want Reset", msg)
	}
}

func TestParseClientMessageRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"blank question":  `{"type":"submit","session_id":"s1","question":"   "}`,
		"missing session": `{"type":"submit","question":"hi"}`,
		"missing mode":    `{"type":"set_mode","session_id":"s1"}`,
		"reset session":   `{"type":"reset"}`,
		"not json":        `hello`,
	}
	for name, raw := range cases {
		if _, err := ParseClientMessage([]byte(raw)); err == nil {
			t.Fatalf("%s: ParseClientMessage() error = nil", name)
		}
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestEncodeReplyOmitsEmptyAudio(t *testing.T) {
	out, err := Encode(TutorReply{Type: TypeTutorReply, SessionID: "s1", Mode: "vocabulary", Reply: "Words"})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got := string(out)
	if !strings.Contains(got, `"type":"tutor_reply"`) || strings.Contains(got, "audio_base64") || strings.Contains(got, "review") {
		t.Fatalf("Encode() = %s", got)
	}
}
