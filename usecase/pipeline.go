package usecase

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/lifelongcx/voiceagent/domain/entities"
	"github.com/lifelongcx/voiceagent/domain/repositories"
)

// TurnResult is the text outcome of one completed caller turn.
type TurnResult struct {
	UserText   string
	AgentReply string
	Transcript repositories.TranscriptResult
}

// CallPipeline runs the text half of a turn: transcribe the caller's
// buffer, fold derived tags into the conversation, build the prompt and
// generate the filtered reply. Audio relaying stays with the session; the
// pipeline never touches the caller socket.
type CallPipeline struct {
	transcriber repositories.Transcriber
	generator   repositories.ReplyGenerator
	analyzer    *Analyzer
	prompts     *PromptBuilder
	filters     FilterChain
	logger      *zap.Logger
}

// NewCallPipeline wires the per-turn text pipeline.
func NewCallPipeline(
	transcriber repositories.Transcriber,
	generator repositories.ReplyGenerator,
	analyzer *Analyzer,
	prompts *PromptBuilder,
	filters FilterChain,
	logger *zap.Logger,
) *CallPipeline {
	return &CallPipeline{
		transcriber: transcriber,
		generator:   generator,
		analyzer:    analyzer,
		prompts:     prompts,
		filters:     filters,
		logger:      logger,
	}
}

// Greet produces the first agent turn. It runs before any caller audio is
// read and appends the greeting to the conversation. A greeting failure is
// a *GenerationError; with no turn recorded yet the session cannot recover.
func (p *CallPipeline) Greet(ctx context.Context, conv *entities.Conversation) (string, error) {
	greeting, err := p.generator.Generate(ctx, p.prompts.System(conv), nil, p.prompts.Greeting())
	if err != nil {
		return "", err
	}

	greeting = p.filters.Apply(strings.TrimSpace(greeting))
	conv.AppendAgentTurn(greeting)

	p.logger.Info("Greeting generated",
		zap.String("callID", conv.CallID),
		zap.Int("length", len(greeting)))

	return greeting, nil
}

// Transcribe recognizes one caller buffer and, on success, records the
// caller turn and its derived tags. On a *TranscriptionError the
// conversation is untouched: the turn counter does not advance and no
// phantom reply can follow.
func (p *CallPipeline) Transcribe(ctx context.Context, conv *entities.Conversation, audio []byte) (repositories.TranscriptResult, error) {
	transcript, err := p.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return repositories.TranscriptResult{}, err
	}

	userText := strings.TrimSpace(transcript.Text)
	if userText == "" {
		return repositories.TranscriptResult{}, &repositories.TranscriptionError{Stage: "poll", Err: errEmptyTranscript}
	}
	transcript.Text = userText

	p.logger.Info("Caller utterance transcribed",
		zap.String("callID", conv.CallID),
		zap.String("text", userText),
		zap.Duration("upload", transcript.UploadDuration),
		zap.Duration("processing", transcript.ProcessingDuration))

	conv.AppendCallerTurn(userText, transcript.UploadDuration+transcript.ProcessingDuration)
	p.analyzer.Apply(conv, userText)

	return transcript, nil
}

// Respond generates the agent reply to the most recent caller turn.
// Exactly one model call; the full prior history rides along untruncated.
// Failure is a *GenerationError and ends the session upstream.
func (p *CallPipeline) Respond(ctx context.Context, conv *entities.Conversation) (string, error) {
	turns := conv.Turns()
	if len(turns) == 0 || turns[len(turns)-1].Speaker != entities.SpeakerCaller {
		return "", &repositories.GenerationError{Err: errNoCallerTurn}
	}
	history := turns[:len(turns)-1]
	input := turns[len(turns)-1].Text

	reply, err := p.generator.Generate(ctx, p.prompts.System(conv), history, input)
	if err != nil {
		return "", err
	}

	reply = p.filters.Apply(strings.TrimSpace(reply))
	conv.AppendAgentTurn(reply)

	p.logger.Info("Agent reply generated",
		zap.String("callID", conv.CallID),
		zap.Int("turn", conv.TurnCount()),
		zap.String("sentiment", string(conv.Sentiment())))

	return reply, nil
}

// HandleUtterance runs one full turn of the text pipeline.
func (p *CallPipeline) HandleUtterance(ctx context.Context, conv *entities.Conversation, audio []byte) (TurnResult, error) {
	transcript, err := p.Transcribe(ctx, conv, audio)
	if err != nil {
		return TurnResult{}, err
	}

	reply, err := p.Respond(ctx, conv)
	if err != nil {
		return TurnResult{}, err
	}

	return TurnResult{
		UserText:   transcript.Text,
		AgentReply: reply,
		Transcript: transcript,
	}, nil
}

var (
	errEmptyTranscript = errors.New("no speech detected in audio")
	errNoCallerTurn    = errors.New("no caller turn to respond to")
)
