package httpapi

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/tutor/internal/mode"
	"github.com/ent0n29/tutor/internal/observability"
	"github.com/ent0n29/tutor/internal/protocol"
	"github.com/ent0n29/tutor/internal/tutor"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsIdleTimeout  = 120 * time.Second
)

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	t, err := s.sessions.Tutor(sessionID)
	if err != nil {
		respondTutorError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	logger := observability.LoggerFromContext(r.Context()).With("session_id", sessionID)
	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				payload, err := protocol.Encode(msg)
				if err != nil {
					logger.Error("encode ws message", "error", err)
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					cancel()
					return
				}
				if mt, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(mt)).Inc()
				}
			}
		}
	}()

	send := func(msg any) {
		select {
		case outbound <- msg:
		case <-ctx.Done():
		}
	}
	sendError := func(requestID, code, source string, retryable bool, detail string) {
		send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			RequestID: requestID,
			Code:      code,
			Source:    source,
			Retryable: retryable,
			Detail:    detail,
		})
	}

	current := t.Mode()
	send(protocol.SessionReady{
		Type:      protocol.TypeSessionReady,
		SessionID: sessionID,
		Mode:      string(current.Kind),
		Option:    current.Option(),
	})

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	})

	var inflight sync.WaitGroup
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			sendError("", "invalid_client_message", "gateway", false, err.Error())
			continue
		}
		if mt, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(mt)).Inc()
		}
		if id := clientSessionID(parsed); id != sessionID {
			sendError("", "session_mismatch", "gateway", false, "message session_id does not match connection")
			continue
		}

		// Re-resolve on every message so an ended session stops accepting work.
		t, err = s.sessions.Tutor(sessionID)
		if err != nil {
			_, code, retryable := errorStatus(err)
			sendError("", code, "gateway", retryable, err.Error())
			continue
		}

		switch msg := parsed.(type) {
		case protocol.Submit:
			inflight.Add(1)
			go func(t *tutor.Session) {
				defer inflight.Done()
				s.runWSSubmit(ctx, t, sessionID, msg, send, sendError)
			}(t)
		case protocol.SetMode:
			m, err := mode.Parse(msg.Mode, msg.Option)
			if err != nil {
				_, code, _ := errorStatus(err)
				sendError("", code, "tutor", false, err.Error())
				continue
			}
			changed, err := t.SetMode(m)
			if err != nil {
				_, code, retryable := errorStatus(err)
				sendError("", code, "tutor", retryable, err.Error())
				continue
			}
			if changed {
				s.metrics.SessionEvents.WithLabelValues("mode_changed").Inc()
			}
			send(protocol.ModeChanged{
				Type:      protocol.TypeModeChanged,
				SessionID: sessionID,
				Mode:      string(m.Kind),
				Option:    m.Option(),
				Cleared:   changed,
			})
		case protocol.Reset:
			t.Reset()
			m := t.Mode()
			send(protocol.ModeChanged{
				Type:      protocol.TypeModeChanged,
				SessionID: sessionID,
				Mode:      string(m.Kind),
				Option:    m.Option(),
				Cleared:   true,
			})
		}
	}

	cancel()
	inflight.Wait()
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

func (s *Server) runWSSubmit(ctx context.Context, t *tutor.Session, sessionID string, msg protocol.Submit, send func(any), sendError func(string, string, string, bool, string)) {
	m, err := resolveMode(msg.Mode, msg.Option, t.Mode())
	if err != nil {
		_, code, _ := errorStatus(err)
		sendError(msg.RequestID, code, "tutor", false, err.Error())
		return
	}
	before := t.Mode()
	res, err := s.submit(ctx, sessionID, t, msg.Question, m, tutor.OnState(func(st tutor.State) {
		send(protocol.TutorStage{
			Type:      protocol.TypeTutorStage,
			SessionID: sessionID,
			RequestID: msg.RequestID,
			Stage:     string(st),
			Progress:  st.Progress(),
		})
	}))
	if before != m && t.Mode() == m {
		send(protocol.ModeChanged{
			Type:      protocol.TypeModeChanged,
			SessionID: sessionID,
			Mode:      string(m.Kind),
			Option:    m.Option(),
			Cleared:   true,
		})
	}
	if err != nil {
		_, code, retryable := errorStatus(err)
		sendError(msg.RequestID, code, "tutor", retryable, err.Error())
		return
	}

	reply := protocol.TutorReply{
		Type:      protocol.TypeTutorReply,
		SessionID: sessionID,
		RequestID: msg.RequestID,
		Mode:      string(res.Mode.Kind),
		Option:    res.Mode.Option(),
		Reply:     res.Reply,
		Review:    res.Review,
	}
	if len(res.Audio) > 0 {
		reply.AudioBase64 = base64.StdEncoding.EncodeToString(res.Audio)
		reply.AudioFormat = "wav"
	}
	if res.AudioErr != nil {
		reply.AudioError = res.AudioErr.Error()
	}
	send(reply)
}

func clientSessionID(v any) string {
	switch m := v.(type) {
	case protocol.Submit:
		return m.SessionID
	case protocol.SetMode:
		return m.SessionID
	case protocol.Reset:
		return m.SessionID
	default:
		return ""
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.Submit:
		return m.Type, true
	case protocol.SetMode:
		return m.Type, true
	case protocol.Reset:
		return m.Type, true
	case protocol.SessionReady:
		return m.Type, true
	case protocol.TutorStage:
		return m.Type, true
	case protocol.TutorReply:
		return m.Type, true
	case protocol.ModeChanged:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
