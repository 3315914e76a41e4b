package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ent0n29/tutor/internal/audio"
	"github.com/gorilla/websocket"
)

const (
	DefaultElevenLabsWSBaseURL = "wss://api.elevenlabs.io"
	DefaultElevenLabsModelID   = "eleven_multilingual_v2"

	elevenSampleRate   = 16000
	elevenOutputFormat = "pcm_16000"
)

type ElevenLabsConfig struct {
	APIKey    string
	WSBaseURL string
	VoiceID   string
	ModelID   string
	Timeout   time.Duration
	// Stability and SimilarityBoost are clamped to [0,1]; zero selects the
	// defaults.
	Stability       float64
	SimilarityBoost float64
}

// ElevenLabsSynthesizer opens one stream-input websocket per reply, sends the
// whole text and collects PCM chunks until the final marker.
type ElevenLabsSynthesizer struct {
	cfg    ElevenLabsConfig
	dialer *websocket.Dialer
}

func NewElevenLabsSynthesizer(cfg ElevenLabsConfig) *ElevenLabsSynthesizer {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = DefaultElevenLabsWSBaseURL
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = DefaultElevenLabsModelID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.Stability = clampUnit(cfg.Stability, 0.42)
	cfg.SimilarityBoost = clampUnit(cfg.SimilarityBoost, 0.85)
	return &ElevenLabsSynthesizer{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.Timeout},
	}
}

func clampUnit(v, def float64) float64 {
	switch {
	case v <= 0:
		return def
	case v > 1:
		return 1
	default:
		return v
	}
}

type elevenTextMessage struct {
	Text                 string         `json:"text"`
	TryTriggerGeneration bool           `json:"try_trigger_generation,omitempty"`
	VoiceSettings        map[string]any `json:"voice_settings,omitempty"`
}

type elevenAudioMessage struct {
	Audio       string `json:"audio"`
	IsFinal     bool   `json:"isFinal"`
	IsFinalAlt  bool   `json:"is_final"`
	Error       string `json:"error"`
	MessageType string `json:"message_type"`
}

// ErrStreamClosed is returned when the server closes the stream before the
// final marker without sending any audio.
var ErrStreamClosed = errors.New("elevenlabs stream closed before audio")

func (e *ElevenLabsSynthesizer) streamURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(e.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(e.cfg.VoiceID) + "/stream-input")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model_id", e.cfg.ModelID)
	q.Set("output_format", elevenOutputFormat)
	q.Set("auto_mode", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (e *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(e.cfg.VoiceID) == "" {
		return nil, fmt.Errorf("voice_id is required")
	}
	text, err := prepare(text)
	if err != nil {
		return nil, err
	}
	endpoint, err := e.streamURL()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	headers := http.Header{}
	headers.Set("xi-api-key", e.cfg.APIKey)
	conn, _, err := e.dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		return nil, fmt.Errorf("dial tts websocket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	// Priming message, then the full text, then an empty text to flush.
	outgoing := []elevenTextMessage{
		{Text: " ", VoiceSettings: map[string]any{
			"stability":        e.cfg.Stability,
			"similarity_boost": e.cfg.SimilarityBoost,
		}},
		{Text: text + " ", TryTriggerGeneration: true},
		{Text: ""},
	}
	for _, msg := range outgoing {
		if err := conn.WriteJSON(msg); err != nil {
			return nil, fmt.Errorf("send tts text: %w", err)
		}
	}

	var pcm []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(pcm) > 0 {
				break
			}
			if len(pcm) == 0 {
				return nil, fmt.Errorf("%w: %v", ErrStreamClosed, err)
			}
			return nil, fmt.Errorf("read tts stream: %w", err)
		}
		var msg elevenAudioMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return nil, fmt.Errorf("elevenlabs %s: %s", msg.MessageType, msg.Error)
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, fmt.Errorf("decode tts chunk: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if msg.IsFinal || msg.IsFinalAlt {
			break
		}
	}
	if len(pcm) == 0 {
		return nil, ErrStreamClosed
	}
	return audio.EncodeWAVPCM16LE(pcm, elevenSampleRate)
}
