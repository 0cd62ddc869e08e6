package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lifelongcx/voiceagent/domain/entities"
	"github.com/lifelongcx/voiceagent/domain/repositories"
	"github.com/lifelongcx/voiceagent/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The voice endpoint is open to browser callers; CORS is handled
		// at the HTTP layer.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// State is the orchestrator's position in the per-turn loop.
type State int32

const (
	StateConnecting State = iota
	StateGreeting
	StateAwaitingCallerAudio
	StateTranscribing
	StateGenerating
	StateSynthesizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateGreeting:
		return "greeting"
	case StateAwaitingCallerAudio:
		return "awaiting_caller_audio"
	case StateTranscribing:
		return "transcribing"
	case StateGenerating:
		return "generating"
	case StateSynthesizing:
		return "synthesizing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// WriteData is one outbound websocket message.
type WriteData struct {
	// Type is the websocket message type, websocket.TextMessage or
	// websocket.BinaryMessage.
	Type    int
	Payload []byte
}

// CallSession owns one accepted caller connection and drives the turn
// loop: greet, then repeatedly receive audio, transcribe, generate and
// relay synthesized speech. Every stage is strictly sequential within the
// session; sessions never share state.
type CallSession struct {
	id  string
	hub *Hub

	// The caller-facing websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Closed when the write pump exits so senders never block on a dead
	// connection.
	writerDone chan struct{}

	pipeline    *usecase.CallPipeline
	synthesizer repositories.SpeechSynthesizer
	feedback    repositories.FeedbackRepository

	conv  *entities.Conversation
	state State

	logger *zap.Logger
}

// HandleVoice upgrades the request and runs the call session until the
// caller hangs up or an unrecoverable error occurs.
func HandleVoice(
	hub *Hub,
	c echo.Context,
	pipeline *usecase.CallPipeline,
	synthesizer repositories.SpeechSynthesizer,
	feedback repositories.FeedbackRepository,
	logger *zap.Logger,
) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	conv := entities.NewConversation()
	session := &CallSession{
		id:          conv.CallID,
		hub:         hub,
		conn:        conn,
		send:        make(chan WriteData, 256),
		writerDone:  make(chan struct{}),
		pipeline:    pipeline,
		synthesizer: synthesizer,
		feedback:    feedback,
		conv:        conv,
		state:       StateConnecting,
		logger:      logger.With(zap.String("sessionID", conv.CallID)),
	}

	session.hub.register <- session

	go session.writePump()
	session.run()

	return nil
}

// run is the orchestrator loop. It executes on the handler goroutine and
// returns when the session reaches Closed.
func (s *CallSession) run() {
	defer s.teardown()

	ctx := context.Background()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// The greeting streams before any caller audio is read. With no turn
	// recorded yet a generation failure here is unrecoverable.
	s.state = StateGreeting
	greeting, err := s.pipeline.Greet(ctx, s.conv)
	if err != nil {
		s.logger.Error("Greeting generation failed", zap.Error(err))
		s.fatal("Connection error occurred")
		return
	}

	s.sendText(marshalTranscript("Call started", greeting))
	s.streamSpeech(ctx, greeting)

	firstFrame := true
	for {
		s.state = StateAwaitingCallerAudio
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		messageType, audio, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error("WebSocket error", zap.Error(err))
			}
			return
		}

		if messageType != websocket.BinaryMessage {
			if firstFrame {
				// Non-binary first frame is a protocol violation and gets
				// the distinguished close code.
				s.logger.Warn("Protocol violation: first frame was not binary audio",
					zap.Int("messageType", messageType))
				s.closeWith(CloseProtocolViolation, "binary audio frame expected")
				return
			}
			s.logger.Info("Non-binary frame received, ending session")
			s.closeWith(websocket.CloseNormalClosure, "call ended")
			return
		}
		firstFrame = false

		s.logger.Info("Received caller audio", zap.Int("bytes", len(audio)))

		if !s.handleTurn(ctx, audio) {
			return
		}
	}
}

// handleTurn runs one caller utterance through the pipeline and relays the
// reply. It reports whether the session should keep going.
func (s *CallSession) handleTurn(ctx context.Context, audio []byte) bool {
	s.state = StateTranscribing
	transcript, err := s.pipeline.Transcribe(ctx, s.conv, audio)
	if err != nil {
		var transcriptionErr *repositories.TranscriptionError
		if errors.As(err, &transcriptionErr) {
			// Recoverable: notify the caller and wait for the next
			// utterance. The turn counter has not advanced.
			s.logger.Warn("Transcription failed, retrying turn", zap.Error(err))
			s.sendText(marshalError("Could not understand audio"))
			return true
		}
		s.logger.Error("Unexpected transcription failure", zap.Error(err))
		s.fatal("Connection error occurred")
		return false
	}

	s.state = StateGenerating
	reply, err := s.pipeline.Respond(ctx, s.conv)
	if err != nil {
		// No safe fallback text exists without another model call.
		s.logger.Error("Reply generation failed, ending session", zap.Error(err))
		s.fatal("Connection error occurred")
		return false
	}

	// Transcript text always precedes the turn's audio.
	s.sendText(marshalTranscript(transcript.Text, reply))
	s.streamSpeech(ctx, reply)
	return true
}

// streamSpeech relays synthesized audio chunks to the caller in arrival
// order, one chunk held at a time. Synthesis failures are non-fatal: the
// turn's text has already been delivered, so the session just moves on.
func (s *CallSession) streamSpeech(ctx context.Context, text string) {
	s.state = StateSynthesizing

	chunks, err := s.synthesizer.SynthesizeStream(ctx, text)
	if err != nil {
		s.logger.Warn("Synthesis unavailable for this turn", zap.Error(err))
		return
	}

	relayed := 0
	for chunk := range chunks {
		if !s.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: chunk}) {
			// Connection is gone; drain so the relay can finish.
			for range chunks {
			}
			return
		}
		relayed++
	}

	s.logger.Info("Finished streaming reply audio", zap.Int("chunks", relayed))
}

func (s *CallSession) sendText(payload []byte) {
	s.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

// enqueue hands a message to the write pump, giving up if the pump has
// already exited.
func (s *CallSession) enqueue(message WriteData) bool {
	select {
	case s.send <- message:
		return true
	case <-s.writerDone:
		return false
	}
}

// fatal delivers a best-effort final error frame and closes the socket.
func (s *CallSession) fatal(message string) {
	s.sendText(marshalError(message))
	s.closeWith(websocket.CloseInternalServerErr, message)
}

// closeWith sends a close frame through the write pump so it lands after
// any frames already queued, then waits for the pump to flush it.
func (s *CallSession) closeWith(code int, reason string) {
	if !s.enqueue(WriteData{Type: websocket.CloseMessage, Payload: websocket.FormatCloseMessage(code, reason)}) {
		return
	}
	select {
	case <-s.writerDone:
	case <-time.After(writeWait):
	}
}

// teardown archives the call and releases the connection. The conversation
// itself is discarded; a new connection always starts empty.
func (s *CallSession) teardown() {
	s.state = StateClosed

	if s.conv.TurnCount() > 0 && s.feedback != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		record := entities.NewFeedbackRecord(s.conv)
		if err := s.feedback.Save(ctx, record); err != nil {
			s.logger.Error("Failed to archive call feedback", zap.Error(err))
		} else {
			s.logger.Info("Call feedback archived",
				zap.String("recordID", record.ID),
				zap.Int("turns", record.TurnCount),
				zap.String("sentiment", string(record.Sentiment)))
		}
	}

	s.hub.unregister <- s
	s.conn.Close()
}

// writePump pumps messages from the session to the websocket connection.
func (s *CallSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(s.writerDone)
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := s.conn.WriteMessage(message.Type, message.Payload); err != nil {
				s.logger.Error("Failed to write message", zap.Error(err))
				return
			}
			if message.Type == websocket.CloseMessage {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
