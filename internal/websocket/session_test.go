package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap/zaptest"

	"github.com/lifelongcx/voiceagent/adapters"
	"github.com/lifelongcx/voiceagent/adapters/llm"
	"github.com/lifelongcx/voiceagent/adapters/stt"
	"github.com/lifelongcx/voiceagent/adapters/tts"
	"github.com/lifelongcx/voiceagent/domain/entities"
	"github.com/lifelongcx/voiceagent/domain/repositories"
	"github.com/lifelongcx/voiceagent/usecase"
)

type voiceFixture struct {
	url         string
	transcriber *stt.MockTranscriber
	generator   *llm.MockGenerator
	synthesizer *tts.MockSynthesizer
	feedback    *adapters.MemoryFeedbackRepository
}

func startVoiceServer(t *testing.T) *voiceFixture {
	t.Helper()

	logger := zaptest.NewLogger(t)
	transcriber := stt.NewMockTranscriber(logger)
	generator := llm.NewMockGenerator(logger)
	synthesizer := tts.NewMockSynthesizer(logger)
	feedback := adapters.NewMemoryFeedbackRepository()

	pipeline := usecase.NewCallPipeline(
		transcriber,
		generator,
		usecase.NewAnalyzer(),
		usecase.NewPromptBuilder(0),
		usecase.DefaultFilters(),
		logger,
	)

	hub := NewHub(logger)
	go hub.Run()

	e := echo.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := e.NewContext(r, w)
		HandleVoice(hub, c, pipeline, synthesizer, feedback, logger)
	}))
	t.Cleanup(server.Close)

	return &voiceFixture{
		url:         "ws" + strings.TrimPrefix(server.URL, "http"),
		transcriber: transcriber,
		generator:   generator,
		synthesizer: synthesizer,
		feedback:    feedback,
	}
}

func dialVoice(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame returns the next data frame with a bounded wait.
func readFrame(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return messageType, payload
}

func readTextFrame(t *testing.T, conn *websocket.Conn) map[string]string {
	t.Helper()
	messageType, payload := readFrame(t, conn)
	if messageType != websocket.TextMessage {
		t.Fatalf("expected a text frame, got type %d", messageType)
	}
	frame := make(map[string]string)
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("failed to decode text frame %q: %v", payload, err)
	}
	return frame
}

func readAudioFrames(t *testing.T, conn *websocket.Conn, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		messageType, _ := readFrame(t, conn)
		if messageType != websocket.BinaryMessage {
			t.Fatalf("audio frame %d: expected binary, got type %d", i, messageType)
		}
	}
}

func readUntilClose(t *testing.T, conn *websocket.Conn) error {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func waitForRecords(t *testing.T, repo *adapters.MemoryFeedbackRepository, want int) []*entities.FeedbackRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		records, err := repo.ListRecent(context.Background(), 10)
		if err != nil {
			t.Fatalf("ListRecent failed: %v", err)
		}
		if len(records) == want {
			return records
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d archived records, got %d", want, len(records))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCallSessionGreetsThenCompletesATurn(t *testing.T) {
	fixture := startVoiceServer(t)
	fixture.transcriber.QueueText("The grip is amazing.")

	conn := dialVoice(t, fixture.url)

	// The greeting's text frame arrives before its audio.
	greeting := readTextFrame(t, conn)
	if greeting["user_text"] != "Call started" {
		t.Errorf("unexpected greeting user_text: %q", greeting["user_text"])
	}
	if greeting["agent_reply"] == "" {
		t.Error("expected a greeting reply")
	}
	readAudioFrames(t, conn, 3)

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("caller audio")); err != nil {
		t.Fatal(err)
	}

	// Turn text precedes the turn audio.
	turn := readTextFrame(t, conn)
	if turn["user_text"] != "The grip is amazing." {
		t.Errorf("unexpected user_text: %q", turn["user_text"])
	}
	if turn["agent_reply"] == "" {
		t.Error("expected an agent reply")
	}
	readAudioFrames(t, conn, 3)

	// Any later non-binary frame ends the call gracefully.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("goodbye")); err != nil {
		t.Fatal(err)
	}

	records := waitForRecords(t, fixture.feedback, 1)
	if records[0].TurnCount != 1 {
		t.Errorf("expected 1 completed turn archived, got %d", records[0].TurnCount)
	}
	if records[0].Sentiment != entities.SentimentPositive {
		t.Errorf("expected positive sentiment archived, got %s", records[0].Sentiment)
	}
}

func TestCallSessionRejectsNonBinaryFirstFrame(t *testing.T) {
	fixture := startVoiceServer(t)

	conn := dialVoice(t, fixture.url)
	readTextFrame(t, conn)
	readAudioFrames(t, conn, 3)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello?")); err != nil {
		t.Fatal(err)
	}

	err := readUntilClose(t, conn)
	if !websocket.IsCloseError(err, CloseProtocolViolation) {
		t.Errorf("expected close code %d, got %v", CloseProtocolViolation, err)
	}

	// Zero completed turns, so nothing is archived.
	time.Sleep(50 * time.Millisecond)
	records, err := fixture.feedback.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected no archived records, got %d", len(records))
	}
}

func TestCallSessionRecoversFromTranscriptionFailure(t *testing.T) {
	fixture := startVoiceServer(t)
	fixture.transcriber.QueueError(&repositories.TranscriptionError{Stage: "poll", Err: errors.New("garbled")})
	fixture.transcriber.QueueText("Second try worked.")

	conn := dialVoice(t, fixture.url)
	readTextFrame(t, conn)
	readAudioFrames(t, conn, 3)

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("bad audio")); err != nil {
		t.Fatal(err)
	}

	// The failed turn yields an error frame and nothing else.
	frame := readTextFrame(t, conn)
	if frame["error"] == "" {
		t.Fatalf("expected an error frame, got %v", frame)
	}

	// The session is still alive and the next utterance goes through.
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("good audio")); err != nil {
		t.Fatal(err)
	}
	turn := readTextFrame(t, conn)
	if turn["user_text"] != "Second try worked." {
		t.Errorf("unexpected user_text: %q", turn["user_text"])
	}
	readAudioFrames(t, conn, 3)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("goodbye")); err != nil {
		t.Fatal(err)
	}

	// Only the successful turn counts.
	records := waitForRecords(t, fixture.feedback, 1)
	if records[0].TurnCount != 1 {
		t.Errorf("expected 1 completed turn archived, got %d", records[0].TurnCount)
	}
}

func TestCallSessionSurvivesSynthesisFailure(t *testing.T) {
	fixture := startVoiceServer(t)
	fixture.synthesizer.FailDial = errors.New("synthesis unavailable")
	fixture.transcriber.QueueText("Still works without audio.")

	conn := dialVoice(t, fixture.url)

	// Greeting text arrives with no audio behind it.
	readTextFrame(t, conn)

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("caller audio")); err != nil {
		t.Fatal(err)
	}

	// The turn's text frame is delivered exactly once, no audio follows.
	turn := readTextFrame(t, conn)
	if turn["user_text"] != "Still works without audio." {
		t.Errorf("unexpected user_text: %q", turn["user_text"])
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("goodbye")); err != nil {
		t.Fatal(err)
	}
	waitForRecords(t, fixture.feedback, 1)
}

func TestCallSessionEndsOnGenerationFailure(t *testing.T) {
	fixture := startVoiceServer(t)
	fixture.generator.ReplyFunc = func(system string, history []entities.Turn, input string) (string, error) {
		return "", &repositories.GenerationError{Err: errors.New("model unavailable")}
	}

	conn := dialVoice(t, fixture.url)

	// The greeting itself fails, so the session reports and closes.
	frame := readTextFrame(t, conn)
	if frame["error"] == "" {
		t.Fatalf("expected an error frame, got %v", frame)
	}

	err := readUntilClose(t, conn)
	if err == nil {
		t.Fatal("expected the connection to close")
	}
	if !websocket.IsCloseError(err, websocket.CloseInternalServerErr) &&
		!websocket.IsUnexpectedCloseError(err) {
		t.Errorf("expected a close error, got %v", err)
	}
}
