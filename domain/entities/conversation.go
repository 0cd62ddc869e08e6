package entities

import (
	"time"

	"github.com/google/uuid"
)

// Sentiment is the last-observed emotional tone of the caller
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Speaker identifies who produced an utterance
type Speaker string

const (
	SpeakerCaller Speaker = "caller"
	SpeakerAgent  Speaker = "agent"
)

// Turn is a single utterance in a call. Turns are append-only and their
// insertion order is replayed verbatim as prompt context.
type Turn struct {
	Speaker    Speaker   `json:"speaker" bson:"speaker"`
	Text       string    `json:"text" bson:"text"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
	DurationMs int64     `json:"duration_ms,omitempty" bson:"duration_ms,omitempty"`
}

// Conversation holds the per-call transcript and the scalars derived from
// it. It is owned by exactly one call session and never shared.
type Conversation struct {
	CallID    string
	StartedAt time.Time
	turns     []Turn
	sentiment Sentiment
	topics    map[string]struct{}
	turnCount int
}

// NewConversation creates an empty conversation for a freshly accepted call.
func NewConversation() *Conversation {
	return &Conversation{
		CallID:    uuid.NewString(),
		StartedAt: time.Now(),
		sentiment: SentimentNeutral,
		topics:    make(map[string]struct{}),
	}
}

// AppendCallerTurn records a transcribed caller utterance and advances the
// turn counter. The counter only moves on successfully transcribed input.
func (c *Conversation) AppendCallerTurn(text string, duration time.Duration) {
	c.turns = append(c.turns, Turn{
		Speaker:    SpeakerCaller,
		Text:       text,
		Timestamp:  time.Now(),
		DurationMs: duration.Milliseconds(),
	})
	c.turnCount++
}

// AppendAgentTurn records an agent reply.
func (c *Conversation) AppendAgentTurn(text string) {
	c.turns = append(c.turns, Turn{
		Speaker:   SpeakerAgent,
		Text:      text,
		Timestamp: time.Now(),
	})
}

// Turns returns a copy of the transcript in chronological order.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// TurnCount returns how many caller utterances have been processed.
func (c *Conversation) TurnCount() int {
	return c.turnCount
}

// SetSentiment overwrites the sentiment tag. Last write wins.
func (c *Conversation) SetSentiment(s Sentiment) {
	c.sentiment = s
}

// Sentiment returns the current sentiment tag.
func (c *Conversation) Sentiment() Sentiment {
	return c.sentiment
}

// AddTopic records that a topic came up. Duplicates are ignored.
func (c *Conversation) AddTopic(topic string) {
	c.topics[topic] = struct{}{}
}

// HasTopic reports whether a topic has come up so far.
func (c *Conversation) HasTopic(topic string) bool {
	_, ok := c.topics[topic]
	return ok
}

// Topics returns the set of topics discussed so far.
func (c *Conversation) Topics() []string {
	out := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		out = append(out, topic)
	}
	return out
}
