package adapters

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/lifelongcx/voiceagent/domain/entities"
	"github.com/lifelongcx/voiceagent/domain/repositories"
)

// MemoryFeedbackRepository is an in-memory FeedbackRepository. It backs
// local development and tests, and production deployments that do not
// configure MongoDB and accept losing records on restart.
type MemoryFeedbackRepository struct {
	mu      sync.RWMutex
	records []*entities.FeedbackRecord
}

// NewMemoryFeedbackRepository creates a new in-memory feedback repository
func NewMemoryFeedbackRepository() *MemoryFeedbackRepository {
	return &MemoryFeedbackRepository{}
}

var _ repositories.FeedbackRepository = (*MemoryFeedbackRepository)(nil)

// Save implements repositories.FeedbackRepository
func (m *MemoryFeedbackRepository) Save(ctx context.Context, record *entities.FeedbackRecord) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	stored := *record
	m.records = append(m.records, &stored)
	return nil
}

// ListRecent implements repositories.FeedbackRepository
func (m *MemoryFeedbackRepository) ListRecent(ctx context.Context, limit int) ([]*entities.FeedbackRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*entities.FeedbackRecord, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		copied := *m.records[i]
		out = append(out, &copied)
	}
	return out, nil
}
