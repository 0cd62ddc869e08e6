package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/lifelongcx/voiceagent/adapters/llm"
	"github.com/lifelongcx/voiceagent/adapters/stt"
	"github.com/lifelongcx/voiceagent/domain/entities"
	"github.com/lifelongcx/voiceagent/domain/repositories"
)

func newTestPipeline(t *testing.T) (*CallPipeline, *stt.MockTranscriber, *llm.MockGenerator) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	transcriber := stt.NewMockTranscriber(logger)
	generator := llm.NewMockGenerator(logger)
	pipeline := NewCallPipeline(
		transcriber,
		generator,
		NewAnalyzer(),
		NewPromptBuilder(0),
		DefaultFilters(),
		logger,
	)
	return pipeline, transcriber, generator
}

func TestGreetAppendsAgentTurn(t *testing.T) {
	pipeline, _, generator := newTestPipeline(t)
	conv := entities.NewConversation()

	greeting, err := pipeline.Greet(context.Background(), conv)
	if err != nil {
		t.Fatalf("Greet failed: %v", err)
	}
	if greeting == "" {
		t.Error("expected a non-empty greeting")
	}

	turns := conv.Turns()
	if len(turns) != 1 || turns[0].Speaker != entities.SpeakerAgent {
		t.Fatalf("expected exactly one agent turn, got %v", turns)
	}
	if conv.TurnCount() != 0 {
		t.Errorf("greeting must not advance the turn counter, got %d", conv.TurnCount())
	}
	if generator.Calls() != 1 {
		t.Errorf("expected exactly one model call, got %d", generator.Calls())
	}
}

func TestHandleUtteranceCompletesATurn(t *testing.T) {
	pipeline, transcriber, generator := newTestPipeline(t)
	conv := entities.NewConversation()
	conv.AppendAgentTurn("greeting")

	transcriber.QueueText("The grip is amazing.")

	result, err := pipeline.HandleUtterance(context.Background(), conv, []byte("audio"))
	if err != nil {
		t.Fatalf("HandleUtterance failed: %v", err)
	}

	if result.UserText != "The grip is amazing." {
		t.Errorf("unexpected user text: %q", result.UserText)
	}
	if result.AgentReply == "" {
		t.Error("expected a non-empty reply")
	}

	if conv.TurnCount() != 1 {
		t.Errorf("expected turn count 1, got %d", conv.TurnCount())
	}
	if conv.Sentiment() != entities.SentimentPositive {
		t.Errorf("expected positive sentiment, got %s", conv.Sentiment())
	}
	if !conv.HasTopic("grip") {
		t.Error("expected grip topic recorded")
	}

	// Greeting + caller/agent pair.
	if got := len(conv.Turns()); got != 3 {
		t.Errorf("expected 3 transcript entries, got %d", got)
	}

	if generator.Calls() != 1 {
		t.Errorf("expected exactly one model call per utterance, got %d", generator.Calls())
	}
}

func TestTranscriptionFailureLeavesConversationUntouched(t *testing.T) {
	pipeline, transcriber, generator := newTestPipeline(t)
	conv := entities.NewConversation()
	conv.AppendAgentTurn("greeting")

	transcriber.QueueError(&repositories.TranscriptionError{Stage: "upload", Err: errors.New("boom")})

	_, err := pipeline.HandleUtterance(context.Background(), conv, []byte("audio"))
	var transcriptionErr *repositories.TranscriptionError
	if !errors.As(err, &transcriptionErr) {
		t.Fatalf("expected a *TranscriptionError, got %v", err)
	}

	if conv.TurnCount() != 0 {
		t.Errorf("failed transcription must not advance the counter, got %d", conv.TurnCount())
	}
	if len(conv.Turns()) != 1 {
		t.Errorf("expected only the greeting in the transcript, got %d turns", len(conv.Turns()))
	}
	if generator.Calls() != 0 {
		t.Errorf("no reply may be generated for a failed turn, got %d calls", generator.Calls())
	}
}

func TestEmptyTranscriptBecomesTranscriptionError(t *testing.T) {
	pipeline, transcriber, _ := newTestPipeline(t)
	conv := entities.NewConversation()

	transcriber.QueueText("   ")

	_, err := pipeline.Transcribe(context.Background(), conv, []byte("audio"))
	var transcriptionErr *repositories.TranscriptionError
	if !errors.As(err, &transcriptionErr) {
		t.Fatalf("expected a *TranscriptionError, got %v", err)
	}
	if conv.TurnCount() != 0 {
		t.Errorf("empty transcript must not advance the counter, got %d", conv.TurnCount())
	}
}

func TestRespondRequiresACallerTurn(t *testing.T) {
	pipeline, _, _ := newTestPipeline(t)
	conv := entities.NewConversation()
	conv.AppendAgentTurn("greeting")

	_, err := pipeline.Respond(context.Background(), conv)
	var generationErr *repositories.GenerationError
	if !errors.As(err, &generationErr) {
		t.Fatalf("expected a *GenerationError, got %v", err)
	}
}

func TestGenerationFailurePropagates(t *testing.T) {
	pipeline, transcriber, generator := newTestPipeline(t)
	conv := entities.NewConversation()

	transcriber.QueueText("hello")
	generator.ReplyFunc = func(system string, history []entities.Turn, input string) (string, error) {
		return "", &repositories.GenerationError{Err: errors.New("model unavailable")}
	}

	_, err := pipeline.HandleUtterance(context.Background(), conv, []byte("audio"))
	var generationErr *repositories.GenerationError
	if !errors.As(err, &generationErr) {
		t.Fatalf("expected a *GenerationError, got %v", err)
	}

	// The caller turn survives; only the reply is missing.
	if conv.TurnCount() != 1 {
		t.Errorf("expected turn count 1, got %d", conv.TurnCount())
	}
}

func TestSystemPromptCarriesTagsAndWrapUpHint(t *testing.T) {
	pipeline, transcriber, generator := newTestPipeline(t)
	conv := entities.NewConversation()
	conv.AppendAgentTurn("greeting")

	var lastSystem string
	generator.ReplyFunc = func(system string, history []entities.Turn, input string) (string, error) {
		lastSystem = system
		return "Thanks for sharing!", nil
	}

	for i := 0; i < 6; i++ {
		transcriber.QueueText("The grip is amazing.")
		if _, err := pipeline.HandleUtterance(context.Background(), conv, []byte("audio")); err != nil {
			t.Fatalf("turn %d failed: %v", i+1, err)
		}

		if !strings.Contains(lastSystem, "sentiment so far: positive") {
			t.Errorf("turn %d: expected sentiment in system prompt", i+1)
		}
		if !strings.Contains(lastSystem, "grip") {
			t.Errorf("turn %d: expected topics in system prompt", i+1)
		}

		wantWrapUp := i+1 >= 6
		gotWrapUp := strings.Contains(lastSystem, "wrapping up")
		if gotWrapUp != wantWrapUp {
			t.Errorf("turn %d: wrap-up hint present=%v, want %v", i+1, gotWrapUp, wantWrapUp)
		}
	}
}

func TestRespondPassesFullHistory(t *testing.T) {
	pipeline, transcriber, generator := newTestPipeline(t)
	conv := entities.NewConversation()
	conv.AppendAgentTurn("greeting")

	var gotHistory []entities.Turn
	var gotInput string
	generator.ReplyFunc = func(system string, history []entities.Turn, input string) (string, error) {
		gotHistory = history
		gotInput = input
		return "Noted!", nil
	}

	transcriber.QueueText("first utterance")
	if _, err := pipeline.HandleUtterance(context.Background(), conv, []byte("audio")); err != nil {
		t.Fatal(err)
	}
	transcriber.QueueText("second utterance")
	if _, err := pipeline.HandleUtterance(context.Background(), conv, []byte("audio")); err != nil {
		t.Fatal(err)
	}

	if gotInput != "second utterance" {
		t.Errorf("expected the latest utterance as input, got %q", gotInput)
	}
	// greeting, first caller turn, first reply.
	if len(gotHistory) != 3 {
		t.Fatalf("expected 3 history turns, got %d", len(gotHistory))
	}
	if gotHistory[0].Text != "greeting" || gotHistory[1].Text != "first utterance" {
		t.Errorf("history out of order: %v", gotHistory)
	}
}
