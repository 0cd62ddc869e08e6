package stt

import (
	"context"
	"fmt"
	"io"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/lifelongcx/voiceagent/domain/repositories"
)

const googleStreamChunkSize = 32 * 1024

// GoogleSpeechToText implements streaming recognition on Google Cloud
// Speech. It is the alternative transcription backend, selected with
// STT_PROVIDER=google; the AssemblyAI batch client is the default.
type GoogleSpeechToText struct {
	config repositories.AudioConfig
	logger *zap.Logger
}

var (
	_ repositories.StreamingSpeechToText = (*GoogleSpeechToText)(nil)
	_ repositories.Transcriber           = (*GoogleSpeechToText)(nil)
)

// NewGoogleSpeechToText creates the adapter with a default audio profile
// used when the batch Transcribe path is taken.
func NewGoogleSpeechToText(logger *zap.Logger) *GoogleSpeechToText {
	return &GoogleSpeechToText{
		config: repositories.AudioConfig{
			SampleRate: 48000,
			Encoding:   "WEBM_OPUS",
			Language:   "en-US",
		},
		logger: logger,
	}
}

// InitStream opens a streaming recognition session.
func (g *GoogleSpeechToText) InitStream(ctx context.Context, config repositories.AudioConfig) (repositories.TranscriptionStream, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("unsupported audio encoding: %s", config.Encoding)
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:        encoding,
		SampleRateHertz: int32(config.SampleRate),
		LanguageCode:    config.Language,
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:          recognitionConfig,
				InterimResults:  false, // only final results
				SingleUtterance: true,  // one caller utterance per session
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	return &googleTranscriptionStream{
		client:     client,
		stream:     stream,
		ctx:        ctx,
		resultChan: make(chan string, 1),
		errorChan:  make(chan error, 1),
	}, nil
}

// Transcribe satisfies the batch Transcriber interface by pushing the
// buffer through one streaming session in fixed-size frames.
func (g *GoogleSpeechToText) Transcribe(ctx context.Context, audio []byte) (repositories.TranscriptResult, error) {
	var result repositories.TranscriptResult

	start := time.Now()
	stream, err := g.InitStream(ctx, g.config)
	if err != nil {
		return result, &repositories.TranscriptionError{Stage: "upload", Err: err}
	}

	for offset := 0; offset < len(audio); offset += googleStreamChunkSize {
		end := offset + googleStreamChunkSize
		if end > len(audio) {
			end = len(audio)
		}
		if err := stream.Stream(audio[offset:end]); err != nil {
			return result, &repositories.TranscriptionError{Stage: "upload", Err: err}
		}
	}
	result.UploadDuration = time.Since(start)

	processingStart := time.Now()
	text, err := stream.End()
	result.ProcessingDuration = time.Since(processingStart)
	if err != nil {
		return result, &repositories.TranscriptionError{Stage: "poll", Err: err}
	}

	result.Text = text
	g.logger.Info("Streaming transcription completed",
		zap.Duration("upload", result.UploadDuration),
		zap.Duration("processing", result.ProcessingDuration))

	return result, nil
}

type googleTranscriptionStream struct {
	client         *speech.Client
	stream         speechpb.Speech_StreamingRecognizeClient
	ctx            context.Context
	audioReceived  bool
	resultChan     chan string
	errorChan      chan error
	receiverActive bool
}

func (g *googleTranscriptionStream) Stream(data []byte) error {
	if !g.receiverActive {
		g.receiverActive = true
		go g.receiveResults()
	}

	if len(data) > 0 {
		g.audioReceived = true
		if err := g.stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
				AudioContent: data,
			},
		}); err != nil {
			return fmt.Errorf("failed to send audio data: %w", err)
		}
	}

	return nil
}

func (g *googleTranscriptionStream) End() (string, error) {
	defer g.cleanup()

	if !g.audioReceived {
		return "", fmt.Errorf("no audio data received")
	}

	if err := g.stream.CloseSend(); err != nil {
		return "", fmt.Errorf("failed to close send stream: %w", err)
	}

	select {
	case <-g.ctx.Done():
		return "", fmt.Errorf("context cancelled while waiting for result: %w", g.ctx.Err())
	case err := <-g.errorChan:
		return "", err
	case result := <-g.resultChan:
		if result == "" {
			return "", fmt.Errorf("no speech detected in audio")
		}
		return result, nil
	}
}

func (g *googleTranscriptionStream) receiveResults() {
	var finalTranscription string

	for {
		resp, err := g.stream.Recv()
		if err == io.EOF {
			g.resultChan <- finalTranscription
			return
		}
		if err != nil {
			g.errorChan <- fmt.Errorf("failed to receive response: %w", err)
			return
		}

		for _, result := range resp.Results {
			if result.IsFinal && len(result.Alternatives) > 0 {
				finalTranscription = result.Alternatives[0].Transcript
			}
		}
	}
}

func (g *googleTranscriptionStream) cleanup() {
	if g.client != nil {
		g.client.Close()
	}
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
