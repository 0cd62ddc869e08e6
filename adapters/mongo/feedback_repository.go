package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lifelongcx/voiceagent/domain/entities"
	"github.com/lifelongcx/voiceagent/domain/repositories"
)

// FeedbackRepository persists finished-call summaries to MongoDB.
type FeedbackRepository struct {
	collection *mongo.Collection
}

// NewFeedbackRepository creates a new MongoDB feedback repository
func NewFeedbackRepository(db *mongo.Database) repositories.FeedbackRepository {
	return &FeedbackRepository{
		collection: db.Collection("feedback"),
	}
}

// Save implements repositories.FeedbackRepository
func (r *FeedbackRepository) Save(ctx context.Context, record *entities.FeedbackRecord) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	doc := bson.M{
		"call_id":    record.CallID,
		"started_at": record.StartedAt,
		"ended_at":   record.EndedAt,
		"turns":      record.Turns,
		"sentiment":  record.Sentiment,
		"topics":     record.Topics,
		"turn_count": record.TurnCount,
	}

	result, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to save feedback record: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		record.ID = oid.Hex()
	}

	return nil
}

// ListRecent implements repositories.FeedbackRepository
func (r *FeedbackRepository) ListRecent(ctx context.Context, limit int) ([]*entities.FeedbackRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.M{"ended_at": -1}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*entities.FeedbackRecord
	for cursor.Next(ctx) {
		var doc struct {
			ID        primitive.ObjectID `bson:"_id"`
			CallID    string             `bson:"call_id"`
			StartedAt primitive.DateTime `bson:"started_at"`
			EndedAt   primitive.DateTime `bson:"ended_at"`
			Turns     []entities.Turn    `bson:"turns"`
			Sentiment string             `bson:"sentiment"`
			Topics    []string           `bson:"topics"`
			TurnCount int                `bson:"turn_count"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode feedback record: %w", err)
		}
		records = append(records, &entities.FeedbackRecord{
			ID:        doc.ID.Hex(),
			CallID:    doc.CallID,
			StartedAt: doc.StartedAt.Time(),
			EndedAt:   doc.EndedAt.Time(),
			Turns:     doc.Turns,
			Sentiment: entities.Sentiment(doc.Sentiment),
			Topics:    doc.Topics,
			TurnCount: doc.TurnCount,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error while listing feedback records: %w", err)
	}

	return records, nil
}
