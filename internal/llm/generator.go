// Package llm provides the language-model backends the tutor sends composed
// prompts to.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Generator turns a fully composed prompt into the model's reply text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config controls generator construction.
type Config struct {
	// Mode is one of auto, openai, http or mock.
	Mode        string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	HTTPURL     string
	Timeout     time.Duration
}

const (
	// DefaultBaseURL points at Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.1-70b-versatile"
)

// NewGenerator picks a backend from cfg. In auto mode an API key selects the
// OpenAI-compatible client, then an HTTP URL selects the HTTP adapter, and the
// mock is used otherwise.
func NewGenerator(cfg Config) (Generator, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			g, err := NewOpenAIGenerator(cfg)
			return g, "openai", err
		}
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPGenerator(cfg.HTTPURL, cfg.Timeout), "http", nil
		}
		return NewMockGenerator(), "mock", nil
	case "openai":
		g, err := NewOpenAIGenerator(cfg)
		return g, "openai", err
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, "", errors.New("model HTTP url is required for http mode")
		}
		return NewHTTPGenerator(cfg.HTTPURL, cfg.Timeout), "http", nil
	case "mock":
		return NewMockGenerator(), "mock", nil
	default:
		return nil, "", fmt.Errorf("unsupported model provider %q", cfg.Mode)
	}
}
