package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/tutor/internal/protocol"
)

type options struct {
	baseURL        string
	userID         string
	mode           string
	option         string
	turns          int
	startDelay     time.Duration
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	questions      []string
	verbose        bool
}

type createSessionRequest struct {
	UserID string `json:"user_id,omitempty"`
	Mode   string `json:"mode,omitempty"`
	Option string `json:"option,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type wsEnvelope struct {
	Type        string `json:"type"`
	RequestID   string `json:"request_id,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Code        string `json:"code,omitempty"`
	Detail      string `json:"detail,omitempty"`
	Reply       string `json:"reply,omitempty"`
	Review      string `json:"review,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`
	AudioError  string `json:"audio_error,omitempty"`
}

type turnResult struct {
	latency  time.Duration
	failed   bool
	detail   string
	hasAudio bool
}

var defaultQuestions = []string{
	"Good morning! How was your weekend?",
	"I goed to the cinema yesterday with my friends.",
	"What do you think about learning languages with music?",
	"Can you tell me a story about a rainy day?",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfsubmit: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfsubmit: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var questionsRaw string
	var startDelayMS int
	var interTurnMS int
	var turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "tutor base URL")
	flag.StringVar(&cfg.userID, "user-id", "perf-replay", "user_id used for the synthetic session")
	flag.StringVar(&cfg.mode, "mode", "conversation", "tutor mode for the session")
	flag.StringVar(&cfg.option, "option", "", "mode option (style or level)")
	flag.IntVar(&cfg.turns, "turns", 8, "number of submits to replay")
	flag.IntVar(&startDelayMS, "start-delay-ms", 200, "delay before the first submit in milliseconds")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 150, "delay between submits in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 60000, "timeout waiting for tutor_reply per submit in milliseconds")
	flag.StringVar(&questionsRaw, "questions", "", "questions separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if startDelayMS < 0 {
		startDelayMS = 0
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.startDelay = time.Duration(startDelayMS) * time.Millisecond
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	questions, err := splitQuestions(questionsRaw)
	if err != nil {
		return options{}, err
	}
	cfg.questions = questions
	return cfg, nil
}

func splitQuestions(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), defaultQuestions...), nil
	}
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if q := strings.TrimSpace(part); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("questions produced no non-empty entries")
	}
	return out, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 45 * time.Second}
	sessionID, err := createSession(ctx, httpClient, cfg)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = endSession(context.Background(), httpClient, cfg.baseURL, sessionID)
	}()
	if cfg.verbose {
		fmt.Printf("perfsubmit: session=%s mode=%s turns=%d\n", sessionID, cfg.mode, cfg.turns)
	}

	wsURL, err := wsURLForSession(cfg.baseURL, sessionID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	if cfg.startDelay > 0 {
		time.Sleep(cfg.startDelay)
	}

	events := make(chan wsEnvelope, 64)
	readErrCh := make(chan error, 1)
	go readLoop(conn, events, readErrCh)

	results := make([]turnResult, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		question := cfg.questions[i%len(cfg.questions)]
		requestID := "perf-" + strconv.Itoa(i+1)
		started := time.Now()
		if err := conn.WriteJSON(protocol.Submit{
			Type:      protocol.TypeSubmit,
			SessionID: sessionID,
			RequestID: requestID,
			Question:  question,
		}); err != nil {
			return fmt.Errorf("turn %d send submit: %w", i+1, err)
		}
		res, err := awaitReply(events, readErrCh, requestID, cfg.turnTimeout)
		if err != nil {
			return fmt.Errorf("turn %d await tutor_reply: %w", i+1, err)
		}
		res.latency = time.Since(started)
		results = append(results, res)
		if cfg.verbose {
			status := "ok"
			if res.failed {
				status = "error " + res.detail
			}
			fmt.Printf("perfsubmit: turn %d/%d %s latency=%s audio=%t\n", i+1, cfg.turns, status, res.latency.Round(time.Millisecond), res.hasAudio)
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	fmt.Println(summarize(results))
	return nil
}

func createSession(ctx context.Context, client *http.Client, cfg options) (string, error) {
	payload, err := json.Marshal(createSessionRequest{UserID: cfg.userID, Mode: cfg.mode, Option: cfg.option})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v1/tutor/session", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out createSessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return out.SessionID, nil
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/tutor/session/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/tutor/session/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, events chan<- wsEnvelope, readErrCh chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case string(protocol.TypeTutorReply), string(protocol.TypeErrorEvent):
			events <- env
		}
	}
}

// awaitReply waits for the reply or error carrying requestID.
func awaitReply(events <-chan wsEnvelope, readErrCh <-chan error, requestID string, timeout time.Duration) (turnResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case env := <-events:
			if env.RequestID != requestID {
				continue
			}
			if env.Type == string(protocol.TypeErrorEvent) {
				return turnResult{failed: true, detail: env.Code + " " + env.Detail}, nil
			}
			return turnResult{hasAudio: env.AudioFormat != ""}, nil
		case err := <-readErrCh:
			return turnResult{}, err
		case <-timer.C:
			return turnResult{}, fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func summarize(results []turnResult) string {
	var ok []float64
	failed := 0
	for _, r := range results {
		if r.failed {
			failed++
			continue
		}
		ok = append(ok, float64(r.latency.Milliseconds()))
	}
	sort.Float64s(ok)
	return fmt.Sprintf("perfsubmit: turns=%d failed=%d p50_ms=%.0f p95_ms=%.0f max_ms=%.0f",
		len(results), failed, percentile(ok, 0.50), percentile(ok, 0.95), percentile(ok, 1))
}

// percentile uses nearest-rank on an ascending slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
