package usecase

import (
	"strings"

	"github.com/lifelongcx/voiceagent/domain/entities"
)

// Analyzer derives sentiment and topic tags from caller text via keyword
// matching. It is deliberately simple: the tags only bias the prompt, they
// never gate the conversation.
type Analyzer struct {
	positive []string
	negative []string
	topics   []string
}

// NewAnalyzer creates an analyzer with the product-feedback keyword sets.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		positive: []string{
			"amazing", "great", "love", "loved", "excellent", "perfect",
			"awesome", "fantastic", "happy", "good", "wonderful", "impressed",
		},
		negative: []string{
			"bad", "terrible", "awful", "broken", "broke", "disappointed",
			"disappointing", "hate", "poor", "refund", "return", "issue",
			"problem", "cracked", "defective",
		},
		topics: []string{
			"grip", "paddle", "net", "ball", "balls", "durability", "comfort",
			"weight", "delivery", "shipping", "price", "quality", "bag",
		},
	}
}

// Sentiment classifies a single utterance. Negative keywords win ties, an
// unhappy caller mentioning one good thing still needs the apologetic tone.
func (a *Analyzer) Sentiment(text string) entities.Sentiment {
	lower := strings.ToLower(text)
	for _, w := range a.negative {
		if containsWord(lower, w) {
			return entities.SentimentNegative
		}
	}
	for _, w := range a.positive {
		if containsWord(lower, w) {
			return entities.SentimentPositive
		}
	}
	return entities.SentimentNeutral
}

// Topics returns the topic tags mentioned in an utterance.
func (a *Analyzer) Topics(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, topic := range a.topics {
		if containsWord(lower, topic) {
			found = append(found, topic)
		}
	}
	return found
}

// Apply classifies the latest caller utterance and folds the result into
// the conversation: sentiment is last-write-wins, topics accumulate.
func (a *Analyzer) Apply(conv *entities.Conversation, utterance string) {
	conv.SetSentiment(a.Sentiment(utterance))
	for _, topic := range a.Topics(utterance) {
		conv.AddTopic(topic)
	}
}

func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		startOK := start == 0 || !isLetter(haystack[start-1])
		endOK := end == len(haystack) || !isLetter(haystack[end])
		if startOK && endOK {
			return true
		}
		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
