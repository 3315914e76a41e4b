package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ent0n29/tutor/internal/audio"
	"github.com/ent0n29/tutor/internal/reliability"
)

const (
	DefaultDeepgramBaseURL = "https://api.deepgram.com"
	DefaultDeepgramModel   = "aura-stella-en"

	EncodingLinear16 = "linear16"
	EncodingMulaw    = "mulaw"

	mulawSampleRate = 8000
	maxAudioBytes   = 32 << 20
)

type DeepgramConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Encoding is linear16 (WAV container from the API) or mulaw (raw
	// 8 kHz G.711 decoded locally).
	Encoding string
	Timeout  time.Duration
}

// DeepgramSynthesizer calls the Deepgram speak REST endpoint once per reply.
type DeepgramSynthesizer struct {
	cfg    DeepgramConfig
	client *http.Client
}

func NewDeepgramSynthesizer(cfg DeepgramConfig) *DeepgramSynthesizer {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultDeepgramBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultDeepgramModel
	}
	cfg.Encoding = strings.ToLower(strings.TrimSpace(cfg.Encoding))
	if cfg.Encoding != EncodingMulaw {
		cfg.Encoding = EncodingLinear16
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &DeepgramSynthesizer{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (d *DeepgramSynthesizer) endpoint() (string, error) {
	u, err := url.Parse(strings.TrimRight(d.cfg.BaseURL, "/") + "/v1/speak")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", d.cfg.Model)
	q.Set("encoding", d.cfg.Encoding)
	if d.cfg.Encoding == EncodingMulaw {
		q.Set("container", "none")
		q.Set("sample_rate", fmt.Sprint(mulawSampleRate))
	} else {
		q.Set("container", "wav")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d *DeepgramSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text, err := prepare(text)
	if err != nil {
		return nil, err
	}
	endpoint, err := d.endpoint()
	if err != nil {
		return nil, fmt.Errorf("deepgram endpoint: %w", err)
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram speak: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, &reliability.StatusError{Provider: "deepgram", Status: res.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	payload, err := io.ReadAll(io.LimitReader(res.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("read deepgram audio: %w", err)
	}
	if d.cfg.Encoding == EncodingMulaw {
		return audio.MulawToWAV(payload, mulawSampleRate)
	}
	if _, err := audio.Inspect(payload); err != nil {
		return nil, fmt.Errorf("deepgram audio: %w", err)
	}
	return payload, nil
}
