package llm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lifelongcx/voiceagent/domain/entities"
	"github.com/lifelongcx/voiceagent/domain/repositories"
)

// MockGenerator is a scripted ReplyGenerator for tests and keyless local
// runs. ReplyFunc, when set, decides each reply and can capture the system
// prompt for assertions.
type MockGenerator struct {
	logger *zap.Logger

	// ReplyFunc overrides the default canned behavior.
	ReplyFunc func(system string, history []entities.Turn, input string) (string, error)

	mu    sync.Mutex
	calls int
}

// NewMockGenerator creates a new mock reply generator
func NewMockGenerator(logger *zap.Logger) *MockGenerator {
	return &MockGenerator{logger: logger}
}

var _ repositories.ReplyGenerator = (*MockGenerator)(nil)

// Generate returns a scripted or canned reply.
func (m *MockGenerator) Generate(ctx context.Context, system string, history []entities.Turn, input string) (string, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()

	if m.ReplyFunc != nil {
		return m.ReplyFunc(system, history, input)
	}

	m.logger.Info("Mock reply", zap.Int("call", call), zap.Int("historyTurns", len(history)))

	if len(history) == 0 {
		return "Hi! This is Sarah from Lifelong. Is now a good time to chat about your pickleball set?", nil
	}
	return fmt.Sprintf("Thanks for sharing that! Tell me more about what you said: %q.", input), nil
}

// Calls returns how many times Generate has been invoked.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
