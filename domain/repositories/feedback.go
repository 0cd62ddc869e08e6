package repositories

import (
	"context"

	"github.com/lifelongcx/voiceagent/domain/entities"
)

// FeedbackRepository archives finished calls for later review.
type FeedbackRepository interface {
	Save(ctx context.Context, record *entities.FeedbackRecord) error
	// ListRecent returns up to limit records, newest first.
	ListRecent(ctx context.Context, limit int) ([]*entities.FeedbackRecord, error)
}
