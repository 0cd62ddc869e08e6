package stt

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lifelongcx/voiceagent/domain/repositories"
)

// MockTranscriber is a scripted Transcriber for tests and keyless local
// runs. With no script it returns canned phrases keyed on buffer size.
type MockTranscriber struct {
	logger *zap.Logger

	mu      sync.Mutex
	scripts []scriptedResult
	next    int
}

type scriptedResult struct {
	result repositories.TranscriptResult
	err    error
}

// NewMockTranscriber creates a new mock transcriber
func NewMockTranscriber(logger *zap.Logger) *MockTranscriber {
	return &MockTranscriber{logger: logger}
}

var _ repositories.Transcriber = (*MockTranscriber)(nil)

// QueueText appends a successful scripted transcription.
func (m *MockTranscriber) QueueText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, scriptedResult{
		result: repositories.TranscriptResult{Text: text},
	})
}

// QueueError appends a scripted failure.
func (m *MockTranscriber) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, scriptedResult{err: err})
}

// Transcribe plays the next scripted result, or falls back to a canned
// phrase based on the buffer size.
func (m *MockTranscriber) Transcribe(ctx context.Context, audio []byte) (repositories.TranscriptResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.next < len(m.scripts) {
		scripted := m.scripts[m.next]
		m.next++
		return scripted.result, scripted.err
	}

	m.logger.Info("Mock transcription", zap.Int("audioSize", len(audio)))

	var text string
	switch {
	case len(audio) == 0:
		return repositories.TranscriptResult{}, &repositories.TranscriptionError{Stage: "upload", Err: fmt.Errorf("audio buffer is empty")}
	case len(audio) > 10000:
		text = "The grip is amazing and the paddles feel really well balanced."
	case len(audio) > 1000:
		text = "It's been pretty good so far."
	default:
		text = "Hello?"
	}

	return repositories.TranscriptResult{Text: text}, nil
}
