package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockGenerator answers deterministically from the prompt's last question.
// Prompts that ask for a review get a "Review:" section so the conversation
// path can be exercised without a model.
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator { return &MockGenerator{} }

func (g *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	question := lastQuestion(prompt)
	if question == "" {
		question = "nothing yet"
	}
	reply := fmt.Sprintf("I heard you: %s", question)
	if strings.Contains(prompt, "put a review") {
		reply += "\nReview: Well phrased. Keep practising full sentences."
	}
	return reply, nil
}

func lastQuestion(prompt string) string {
	idx := strings.LastIndex(prompt, "Human: ")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(prompt[idx+len("Human: "):])
}
