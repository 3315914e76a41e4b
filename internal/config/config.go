// Package config loads the tutor service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/tutor/internal/history"
)

// Config contains all runtime settings for the tutor service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	LogLevel                 string

	AllowAnyOrigin bool

	HistoryTurns int

	ModelProvider    string
	ModelAPIKey      string
	ModelBaseURL     string
	ModelName        string
	ModelTemperature float64
	ModelMaxTokens   int
	ModelHTTPURL     string
	ModelTimeout     time.Duration

	SpeechProvider string
	SpeechTimeout  time.Duration

	DeepgramAPIKey   string
	DeepgramBaseURL  string
	DeepgramModel    string
	DeepgramEncoding string

	ElevenLabsAPIKey    string
	ElevenLabsWSBaseURL string
	ElevenLabsVoiceID   string
	ElevenLabsModelID   string

	// TranscriptURL selects the transcript sink: empty for in-memory,
	// postgres:// or sqlite://.
	TranscriptURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "tutor"),
		LogLevel:         envOrDefault("APP_LOG_LEVEL", "info"),
		HistoryTurns:     history.MaxTurns,

		ModelProvider: envOrDefault("MODEL_PROVIDER", "auto"),
		// Groq is the default host; an OpenAI key works against MODEL_BASE_URL.
		ModelAPIKey:  firstNonEmpty("GROQ_API_KEY", "OPENAI_API_KEY"),
		ModelBaseURL: envOrDefault("MODEL_BASE_URL", "https://api.groq.com/openai/v1"),
		ModelName:    envOrDefault("MODEL_NAME", "llama-3.1-70b-versatile"),
		ModelHTTPURL: trimmedEnv("MODEL_HTTP_URL"),
		ModelTimeout: 60 * time.Second,

		SpeechProvider: envOrDefault("SPEECH_PROVIDER", "auto"),
		SpeechTimeout:  30 * time.Second,

		DeepgramAPIKey:   trimmedEnv("DEEPGRAM_API_KEY"),
		DeepgramBaseURL:  envOrDefault("DEEPGRAM_BASE_URL", "https://api.deepgram.com"),
		DeepgramModel:    envOrDefault("DEEPGRAM_MODEL", "aura-stella-en"),
		DeepgramEncoding: envOrDefault("DEEPGRAM_ENCODING", "linear16"),

		ElevenLabsAPIKey:    trimmedEnv("ELEVENLABS_API_KEY"),
		ElevenLabsWSBaseURL: envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsVoiceID:   trimmedEnv("ELEVENLABS_TTS_VOICE_ID"),
		ElevenLabsModelID:   envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),

		TranscriptURL: trimmedEnv("TRANSCRIPT_URL"),

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 15 * time.Minute,
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return Config{}, err
	}
	if cfg.HistoryTurns, err = intFromEnv("TUTOR_HISTORY_TURNS", cfg.HistoryTurns); err != nil {
		return Config{}, err
	}
	if cfg.ModelTemperature, err = floatFromEnv("MODEL_TEMPERATURE", cfg.ModelTemperature); err != nil {
		return Config{}, err
	}
	if cfg.ModelMaxTokens, err = intFromEnv("MODEL_MAX_TOKENS", cfg.ModelMaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.ModelTimeout, err = durationFromEnv("MODEL_TIMEOUT", cfg.ModelTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SpeechTimeout, err = durationFromEnv("SPEECH_TIMEOUT", cfg.SpeechTimeout); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.HistoryTurns < 2 || c.HistoryTurns > history.MaxTurns || c.HistoryTurns%2 != 0 {
		return fmt.Errorf("TUTOR_HISTORY_TURNS must be an even number within [2, %d]", history.MaxTurns)
	}
	if c.ModelTemperature < 0 || c.ModelTemperature > 2 {
		return fmt.Errorf("MODEL_TEMPERATURE must be within [0, 2]")
	}
	if c.ModelMaxTokens < 0 {
		return fmt.Errorf("MODEL_MAX_TOKENS must be >= 0")
	}
	if c.ModelTimeout <= 0 || c.SpeechTimeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT and SPEECH_TIMEOUT must be positive")
	}
	switch strings.ToLower(c.DeepgramEncoding) {
	case "linear16", "mulaw":
	default:
		return fmt.Errorf("DEEPGRAM_ENCODING must be linear16 or mulaw")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := trimmedEnv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstNonEmpty(keys ...string) string {
	for _, k := range keys {
		if v := trimmedEnv(k); v != "" {
			return v
		}
	}
	return ""
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
