// Package speech turns tutor replies into WAV audio.
package speech

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Synthesizer returns a 16-bit PCM WAV payload for text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type Config struct {
	// Mode is auto, deepgram, elevenlabs, mock or none.
	Mode    string
	Timeout time.Duration

	DeepgramAPIKey   string
	DeepgramBaseURL  string
	DeepgramModel    string
	DeepgramEncoding string

	ElevenLabsAPIKey    string
	ElevenLabsWSBaseURL string
	ElevenLabsVoiceID   string
	ElevenLabsModelID   string
}

// NewSynthesizer picks a backend from cfg. Mode "none" yields a nil
// Synthesizer and the provider name "none"; callers treat that as text-only.
// In auto mode Deepgram wins over ElevenLabs; with both configured Deepgram
// is primary behind a Failover. The mock is used when no credentials are
// configured.
func NewSynthesizer(cfg Config) (Synthesizer, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}
	switch mode {
	case "auto":
		hasDeepgram := strings.TrimSpace(cfg.DeepgramAPIKey) != ""
		hasEleven := strings.TrimSpace(cfg.ElevenLabsAPIKey) != "" && strings.TrimSpace(cfg.ElevenLabsVoiceID) != ""
		switch {
		case hasDeepgram && hasEleven:
			return NewFailover(newDeepgram(cfg), newElevenLabs(cfg)), "deepgram+elevenlabs", nil
		case hasDeepgram:
			return newDeepgram(cfg), "deepgram", nil
		case hasEleven:
			return newElevenLabs(cfg), "elevenlabs", nil
		default:
			return NewMockSynthesizer(), "mock", nil
		}
	case "deepgram":
		if strings.TrimSpace(cfg.DeepgramAPIKey) == "" {
			return nil, "", fmt.Errorf("SPEECH_PROVIDER=deepgram requires DEEPGRAM_API_KEY")
		}
		return newDeepgram(cfg), "deepgram", nil
	case "elevenlabs":
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) == "" || strings.TrimSpace(cfg.ElevenLabsVoiceID) == "" {
			return nil, "", fmt.Errorf("SPEECH_PROVIDER=elevenlabs requires ELEVENLABS_API_KEY and ELEVENLABS_VOICE_ID")
		}
		return newElevenLabs(cfg), "elevenlabs", nil
	case "mock":
		return NewMockSynthesizer(), "mock", nil
	case "none", "off":
		return nil, "none", nil
	default:
		return nil, "", fmt.Errorf("unsupported SPEECH_PROVIDER %q", cfg.Mode)
	}
}

func newDeepgram(cfg Config) *DeepgramSynthesizer {
	return NewDeepgramSynthesizer(DeepgramConfig{
		APIKey:   cfg.DeepgramAPIKey,
		BaseURL:  cfg.DeepgramBaseURL,
		Model:    cfg.DeepgramModel,
		Encoding: cfg.DeepgramEncoding,
		Timeout:  cfg.Timeout,
	})
}

func newElevenLabs(cfg Config) *ElevenLabsSynthesizer {
	return NewElevenLabsSynthesizer(ElevenLabsConfig{
		APIKey:    cfg.ElevenLabsAPIKey,
		WSBaseURL: cfg.ElevenLabsWSBaseURL,
		VoiceID:   cfg.ElevenLabsVoiceID,
		ModelID:   cfg.ElevenLabsModelID,
		Timeout:   cfg.Timeout,
	})
}
