package repositories

import (
	"context"
	"time"
)

// TranscriptResult carries the recognized text plus the elapsed-time
// breakdown of the recognition round-trip.
type TranscriptResult struct {
	Text               string        `json:"text"`
	UploadDuration     time.Duration `json:"-"`
	ProcessingDuration time.Duration `json:"-"`
	AudioDuration      float64       `json:"audio_duration,omitempty"` // seconds, as reported by the service
}

// Transcriber converts one finite audio buffer to text. Implementations
// make at most one attempt per call; any failure is a *TranscriptionError.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (TranscriptResult, error)
}

// AudioConfig describes the caller audio for streaming recognition.
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// StreamingSpeechToText opens incremental recognition sessions. The batch
// Transcriber is the default path; this variant exists for backends that
// only accept frame-by-frame input.
type StreamingSpeechToText interface {
	InitStream(ctx context.Context, config AudioConfig) (TranscriptionStream, error)
}

// TranscriptionStream accepts audio frames and produces the final text on End.
type TranscriptionStream interface {
	Stream(data []byte) error
	End() (string, error)
}
