package speech

import (
	"context"

	"github.com/ent0n29/tutor/internal/audio"
)

const mockSampleRate = 16000

// MockSynthesizer returns silence, 20ms per character, for local runs.
type MockSynthesizer struct{}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (MockSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := prepare(text)
	if err != nil {
		return nil, err
	}
	samples := len([]rune(text)) * mockSampleRate / 50
	return audio.EncodeWAVPCM16LE(make([]byte, samples*2), mockSampleRate)
}
