package tts

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/lifelongcx/voiceagent/domain/repositories"
)

// MockSynthesizer is a scripted SpeechSynthesizer for tests and keyless
// local runs. It yields its configured chunks and closes the stream.
type MockSynthesizer struct {
	logger *zap.Logger

	// Chunks to emit per invocation. Defaults to three small buffers.
	Chunks [][]byte

	// FailDial, when set, makes SynthesizeStream return the error up front.
	FailDial error

	// FailAfter, when >= 0, truncates the stream after that many chunks to
	// simulate a mid-stream transport error.
	FailAfter int

	mu    sync.Mutex
	calls []string
}

// NewMockSynthesizer creates a new mock synthesizer
func NewMockSynthesizer(logger *zap.Logger) *MockSynthesizer {
	return &MockSynthesizer{
		logger: logger,
		Chunks: [][]byte{
			[]byte("chunk-one"),
			[]byte("chunk-two"),
			[]byte("chunk-three"),
		},
		FailAfter: -1,
	}
}

var _ repositories.SpeechSynthesizer = (*MockSynthesizer)(nil)

// SynthesizeStream yields the scripted chunks on a channel that always
// terminates.
func (m *MockSynthesizer) SynthesizeStream(ctx context.Context, text string) (<-chan []byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	m.mu.Unlock()

	if m.FailDial != nil {
		return nil, &repositories.SynthesisError{Err: m.FailDial}
	}

	m.logger.Info("Mock synthesis", zap.Int("textLength", len(text)))

	out := make(chan []byte, len(m.Chunks))
	go func() {
		defer close(out)
		for i, chunk := range m.Chunks {
			if m.FailAfter >= 0 && i >= m.FailAfter {
				return
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Texts returns every text passed to SynthesizeStream so far.
func (m *MockSynthesizer) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}
