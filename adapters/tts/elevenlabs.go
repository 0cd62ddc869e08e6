package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lifelongcx/voiceagent/domain/repositories"
)

const (
	defaultWSBaseURL   = "wss://api.elevenlabs.io/v1"
	defaultVoiceID     = "pNInz6obpgDQGcFmaJgB" // Adam voice
	defaultModelID     = "eleven_turbo_v2_5"
	defaultStability   = 0.3
	defaultClarity     = 0.8 // similarity_boost
	defaultReadTimeout = 30 * time.Second
)

// defaultChunkSchedule controls how eagerly the service flushes audio.
var defaultChunkSchedule = []int{50, 100}

// ElevenLabsConfig holds configuration for the ElevenLabs relay.
// Required fields:
// - APIKey: Your ElevenLabs API key
// Optional fields with defaults:
// - WSBaseURL: The WebSocket base URL (default: "wss://api.elevenlabs.io/v1")
// - VoiceID: The voice ID to use (default: "pNInz6obpgDQGcFmaJgB")
// - ModelID: The model ID to use (default: "eleven_turbo_v2_5")
// - Stability: Voice stability value between 0 and 1 (default: 0.3)
// - Clarity: Voice clarity/similarity boost value between 0 and 1 (default: 0.8)
// - ReadTimeout: Per-frame wait before the stream is abandoned (default: 30s)
type ElevenLabsConfig struct {
	APIKey      string
	WSBaseURL   string
	VoiceID     string
	ModelID     string
	Stability   float64
	Clarity     float64
	ReadTimeout time.Duration
}

// ValidateElevenLabsConfig validates the ElevenLabsConfig
func ValidateElevenLabsConfig(config ElevenLabsConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("eleven labs API key is required")
	}
	if config.Stability != 0 && (config.Stability < 0 || config.Stability > 1) {
		return fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}
	if config.Clarity != 0 && (config.Clarity < 0 || config.Clarity > 1) {
		return fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}
	if config.ReadTimeout < 0 {
		return fmt.Errorf("read timeout must be positive, got %v", config.ReadTimeout)
	}
	return nil
}

// ElevenLabsRelay implements the SpeechSynthesizer interface over the
// ElevenLabs stream-input WebSocket API. Every invocation dials a fresh
// connection: each turn is fully independent, so a stuck stream from a
// previous turn cannot poison the next.
type ElevenLabsRelay struct {
	apiKey      string
	wsBaseURL   string
	voiceID     string
	modelID     string
	stability   float64
	clarity     float64
	readTimeout time.Duration
	dialer      *websocket.Dialer
	logger      *zap.Logger
}

var _ repositories.SpeechSynthesizer = (*ElevenLabsRelay)(nil)

// NewElevenLabsRelay creates a new ElevenLabs streaming relay
func NewElevenLabsRelay(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabsRelay, error) {
	if err := ValidateElevenLabsConfig(config); err != nil {
		return nil, err
	}

	wsBaseURL := config.WSBaseURL
	if wsBaseURL == "" {
		wsBaseURL = defaultWSBaseURL
		logger.Info("Using default WebSocket base URL", zap.String("wsBaseURL", wsBaseURL))
	}

	voiceID := config.VoiceID
	if voiceID == "" {
		voiceID = defaultVoiceID
		logger.Info("Using default voice ID", zap.String("voiceID", voiceID))
	}

	modelID := config.ModelID
	if modelID == "" {
		modelID = defaultModelID
		logger.Info("Using default model ID", zap.String("modelID", modelID))
	}

	stability := config.Stability
	if stability == 0 {
		stability = defaultStability
	}

	clarity := config.Clarity
	if clarity == 0 {
		clarity = defaultClarity
	}

	readTimeout := config.ReadTimeout
	if readTimeout == 0 {
		readTimeout = defaultReadTimeout
	}

	return &ElevenLabsRelay{
		apiKey:      config.APIKey,
		wsBaseURL:   wsBaseURL,
		voiceID:     voiceID,
		modelID:     modelID,
		stability:   stability,
		clarity:     clarity,
		readTimeout: readTimeout,
		dialer:      websocket.DefaultDialer,
		logger:      logger,
	}, nil
}

// elevenLabsInitFrame is the first outbound control frame on the stream.
type elevenLabsInitFrame struct {
	Text             string                   `json:"text"`
	XiAPIKey         string                   `json:"xi_api_key"`
	VoiceSettings    elevenLabsVoiceSettings  `json:"voice_settings"`
	GenerationConfig elevenLabsGenerationConf `json:"generation_config"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type elevenLabsGenerationConf struct {
	ChunkLengthSchedule []int `json:"chunk_length_schedule"`
}

// elevenLabsTextFrame carries the text to speak, with flush forcing
// generation to start immediately.
type elevenLabsTextFrame struct {
	Text  string `json:"text"`
	Flush bool   `json:"flush,omitempty"`
}

// elevenLabsAudioFrame is an inbound frame: base64 audio plus a final flag.
type elevenLabsAudioFrame struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error,omitempty"`
}

// SynthesizeStream dials the service, pushes the text and yields decoded
// audio chunks until the final flag or a transport error. The returned
// channel is always closed after finitely many chunks.
func (r *ElevenLabsRelay) SynthesizeStream(ctx context.Context, text string) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &repositories.SynthesisError{Err: fmt.Errorf("text cannot be empty")}
	}

	streamURL := fmt.Sprintf("%s/text-to-speech/%s/stream-input?model_id=%s",
		r.wsBaseURL, url.PathEscape(r.voiceID), url.QueryEscape(r.modelID))

	conn, _, err := r.dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return nil, &repositories.SynthesisError{Err: fmt.Errorf("failed to dial synthesis stream: %w", err)}
	}

	if err := r.sendText(conn, text); err != nil {
		conn.Close()
		return nil, &repositories.SynthesisError{Err: err}
	}

	audioChan := make(chan []byte, 10)
	go r.relay(ctx, conn, audioChan)

	return audioChan, nil
}

// sendText performs the outbound half of the protocol: init parameters,
// the text with a flush marker, then the empty terminator.
func (r *ElevenLabsRelay) sendText(conn *websocket.Conn, text string) error {
	init := elevenLabsInitFrame{
		Text:     " ",
		XiAPIKey: r.apiKey,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       r.stability,
			SimilarityBoost: r.clarity,
			UseSpeakerBoost: false,
		},
		GenerationConfig: elevenLabsGenerationConf{
			ChunkLengthSchedule: defaultChunkSchedule,
		},
	}
	if err := conn.WriteJSON(init); err != nil {
		return fmt.Errorf("failed to send init frame: %w", err)
	}

	if err := conn.WriteJSON(elevenLabsTextFrame{Text: text, Flush: true}); err != nil {
		return fmt.Errorf("failed to send text frame: %w", err)
	}

	if err := conn.WriteJSON(elevenLabsTextFrame{Text: ""}); err != nil {
		return fmt.Errorf("failed to send terminator frame: %w", err)
	}

	return nil
}

// relay forwards decoded audio chunks until the final flag, a transport
// error, a missed read deadline or context cancellation. Whatever the
// cause, it closes the channel so the consumer never blocks forever.
func (r *ElevenLabsRelay) relay(ctx context.Context, conn *websocket.Conn, audioChan chan<- []byte) {
	defer close(audioChan)
	defer conn.Close()

	totalBytes := 0
	chunkCount := 0

	for {
		conn.SetReadDeadline(time.Now().Add(r.readTimeout))

		var frame elevenLabsAudioFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				r.logger.Debug("Synthesis stream closed by service")
			} else {
				r.logger.Warn("Synthesis stream ended on error", zap.Error(err))
			}
			return
		}

		if frame.Error != "" {
			r.logger.Warn("Synthesis service reported error", zap.String("error", frame.Error))
			return
		}

		if frame.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(frame.Audio)
			if err != nil {
				r.logger.Warn("Failed to decode audio chunk", zap.Error(err))
				return
			}

			chunkCount++
			totalBytes += len(chunk)

			select {
			case audioChan <- chunk:
			case <-ctx.Done():
				r.logger.Warn("Context cancelled while relaying audio chunk")
				return
			}
		}

		if frame.IsFinal {
			r.logger.Info("Finished relaying synthesized audio",
				zap.Int("totalChunks", chunkCount),
				zap.Int("totalBytes", totalBytes))
			return
		}
	}
}

// NewElevenLabsConfigFromEnv creates a new ElevenLabsConfig from environment variables
func NewElevenLabsConfigFromEnv() ElevenLabsConfig {
	config := ElevenLabsConfig{
		APIKey:    os.Getenv("ELEVEN_LABS_API_KEY"),
		WSBaseURL: os.Getenv("ELEVEN_LABS_WS_BASE_URL"),
		VoiceID:   os.Getenv("ELEVEN_LABS_VOICE_ID"),
		ModelID:   os.Getenv("ELEVEN_LABS_MODEL_ID"),
	}

	if stabilityStr := os.Getenv("ELEVEN_LABS_STABILITY"); stabilityStr != "" {
		if stability, err := strconv.ParseFloat(stabilityStr, 64); err == nil && stability >= 0 && stability <= 1 {
			config.Stability = stability
		}
	}

	if clarityStr := os.Getenv("ELEVEN_LABS_CLARITY"); clarityStr != "" {
		if clarity, err := strconv.ParseFloat(clarityStr, 64); err == nil && clarity >= 0 && clarity <= 1 {
			config.Clarity = clarity
		}
	}

	return config
}
