package entities

import (
	"errors"
	"time"
)

// FeedbackRecord is the durable summary of a finished call. It is written
// once when the session closes and never updated; live conversation state
// is never persisted or resumed.
type FeedbackRecord struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	CallID    string    `json:"call_id" bson:"call_id"`
	StartedAt time.Time `json:"started_at" bson:"started_at"`
	EndedAt   time.Time `json:"ended_at" bson:"ended_at"`
	Turns     []Turn    `json:"turns" bson:"turns"`
	Sentiment Sentiment `json:"sentiment" bson:"sentiment"`
	Topics    []string  `json:"topics" bson:"topics"`
	TurnCount int       `json:"turn_count" bson:"turn_count"`
}

// NewFeedbackRecord snapshots a conversation at the end of a call.
func NewFeedbackRecord(conv *Conversation) *FeedbackRecord {
	return &FeedbackRecord{
		CallID:    conv.CallID,
		StartedAt: conv.StartedAt,
		EndedAt:   time.Now(),
		Turns:     conv.Turns(),
		Sentiment: conv.Sentiment(),
		Topics:    conv.Topics(),
		TurnCount: conv.TurnCount(),
	}
}

// Validate validates the record before persistence.
func (r *FeedbackRecord) Validate() error {
	if r.CallID == "" {
		return errors.New("call_id is required")
	}
	if r.TurnCount <= 0 {
		return errors.New("record must cover at least one completed turn")
	}
	return nil
}
