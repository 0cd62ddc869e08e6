package usecase

import (
	"fmt"
	"strings"

	"github.com/lifelongcx/voiceagent/domain/entities"
)

const basePersona = `You are Sarah, a friendly customer experience specialist calling to chat about the Lifelong Professional Pickleball Set the caller purchased. You are genuinely curious about their experience and want a natural conversation.

Your personality:
- Warm, conversational, and genuinely interested
- Speak like a real person, not a robot
- Use casual language and natural speech patterns
- Show empathy and enthusiasm
- Keep responses under 30 words but do not sound rushed

Conversation flow:
- Start with a warm greeting and check if it is a good time to chat
- Ask about their overall experience first
- Follow up based on what they say, be a good listener
- Ask about specific aspects naturally (comfort, durability, performance)
- If they are happy, ask what they love most
- If they have issues, show understanding and ask for details
- End warmly and thank them for their time

Only speak the agent's next line. Never write lines for the caller.`

// greetingOpener seeds the model-generated greeting. The greeting is the
// first agent turn and streams before any caller audio is read.
const greetingOpener = "Hi there! This is Sarah from Lifelong. I hope I'm catching you at a good time? I wanted to chat about the pickleball set you got from us recently."

const defaultWrapUpAfter = 6

// PromptBuilder assembles the system instruction for each generation call.
// The full turn history always rides along separately; the builder only
// contributes the persona plus the derived-tag and wrap-up lines.
type PromptBuilder struct {
	persona     string
	wrapUpAfter int
}

// NewPromptBuilder creates a builder with the feedback-call persona.
// wrapUpAfter is the turn count at which the wrap-up hint kicks in; zero
// selects the default of 6.
func NewPromptBuilder(wrapUpAfter int) *PromptBuilder {
	if wrapUpAfter <= 0 {
		wrapUpAfter = defaultWrapUpAfter
	}
	return &PromptBuilder{persona: basePersona, wrapUpAfter: wrapUpAfter}
}

// Greeting returns the fixed opener fed to the model to produce the first
// agent turn.
func (b *PromptBuilder) Greeting() string {
	return greetingOpener
}

// System builds the system instruction for the next generation call,
// conditioned on the conversation's derived tags and turn counter.
func (b *PromptBuilder) System(conv *entities.Conversation) string {
	var sb strings.Builder
	sb.WriteString(b.persona)

	sb.WriteString(fmt.Sprintf("\n\nCaller sentiment so far: %s.", conv.Sentiment()))
	if topics := conv.Topics(); len(topics) > 0 {
		sb.WriteString(fmt.Sprintf("\nTopics already discussed: %s.", strings.Join(topics, ", ")))
	}

	if conv.TurnCount() >= b.wrapUpAfter {
		sb.WriteString("\nThe call has run long. Start wrapping up: thank the caller warmly and bring the conversation to a close.")
	}

	return sb.String()
}
