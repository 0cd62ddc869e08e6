package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lifelongcx/voiceagent/domain/repositories"
)

const (
	defaultAssemblyBaseURL  = "https://api.assemblyai.com/v2"
	defaultAssemblyLanguage = "en"
	defaultPollInterval     = 1 * time.Second
	defaultPollCeiling      = 30 * time.Second // bounded wait for the polling loop
	defaultUploadTimeout    = 20 * time.Second
)

// AssemblyAIConfig holds configuration for the AssemblyAI transcriber.
// Required fields:
// - APIKey: Your AssemblyAI API key
// Optional fields with defaults:
// - APIBaseURL: The base URL for the AssemblyAI API (default: "https://api.assemblyai.com/v2")
// - Language: The language code sent with each job (default: "en")
// - PollInterval: Delay between status polls (default: 1s)
// - PollCeiling: Maximum total wait for a job to finish (default: 30s)
type AssemblyAIConfig struct {
	APIKey       string
	APIBaseURL   string
	Language     string
	PollInterval time.Duration
	PollCeiling  time.Duration
}

// ValidateAssemblyAIConfig validates the AssemblyAIConfig
func ValidateAssemblyAIConfig(config AssemblyAIConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("assemblyai API key is required")
	}
	if config.PollInterval < 0 {
		return fmt.Errorf("poll interval must be positive, got %v", config.PollInterval)
	}
	if config.PollCeiling < 0 {
		return fmt.Errorf("poll ceiling must be positive, got %v", config.PollCeiling)
	}
	return nil
}

// AssemblyAITranscriber implements the Transcriber interface using the
// AssemblyAI batch API: upload the buffer, submit a transcript job, then
// poll until the job completes or the ceiling is hit. At most one attempt
// per call; the session decides whether to retry the turn.
type AssemblyAITranscriber struct {
	apiKey       string
	apiBaseURL   string
	language     string
	pollInterval time.Duration
	pollCeiling  time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

// Ensure AssemblyAITranscriber implements the Transcriber interface
var _ repositories.Transcriber = (*AssemblyAITranscriber)(nil)

// NewAssemblyAITranscriber creates a new AssemblyAI transcriber instance
func NewAssemblyAITranscriber(config AssemblyAIConfig, logger *zap.Logger) (*AssemblyAITranscriber, error) {
	if err := ValidateAssemblyAIConfig(config); err != nil {
		return nil, err
	}

	apiBaseURL := config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAssemblyBaseURL
		logger.Info("Using default API base URL", zap.String("apiBaseURL", apiBaseURL))
	}

	language := config.Language
	if language == "" {
		language = defaultAssemblyLanguage
		logger.Info("Using default language", zap.String("language", language))
	}

	pollInterval := config.PollInterval
	if pollInterval == 0 {
		pollInterval = defaultPollInterval
	}

	pollCeiling := config.PollCeiling
	if pollCeiling == 0 {
		pollCeiling = defaultPollCeiling
	}

	return &AssemblyAITranscriber{
		apiKey:       config.APIKey,
		apiBaseURL:   apiBaseURL,
		language:     language,
		pollInterval: pollInterval,
		pollCeiling:  pollCeiling,
		httpClient:   &http.Client{Timeout: defaultUploadTimeout},
		logger:       logger,
	}, nil
}

type assemblyUploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type assemblySubmitRequest struct {
	AudioURL     string `json:"audio_url"`
	LanguageCode string `json:"language_code,omitempty"`
}

type assemblyTranscriptResponse struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"` // queued, processing, completed, error
	Text          string  `json:"text"`
	AudioDuration float64 `json:"audio_duration"`
	Error         string  `json:"error"`
}

// Transcribe uploads the audio buffer, submits a transcription job and
// polls until completion or the bounded ceiling.
func (a *AssemblyAITranscriber) Transcribe(ctx context.Context, audio []byte) (repositories.TranscriptResult, error) {
	var result repositories.TranscriptResult

	if len(audio) == 0 {
		return result, &repositories.TranscriptionError{Stage: "upload", Err: fmt.Errorf("audio buffer is empty")}
	}

	uploadStart := time.Now()
	uploadURL, err := a.upload(ctx, audio)
	result.UploadDuration = time.Since(uploadStart)
	if err != nil {
		return result, &repositories.TranscriptionError{Stage: "upload", Err: err}
	}

	a.logger.Debug("Audio uploaded",
		zap.Int("bytes", len(audio)),
		zap.Duration("uploadDuration", result.UploadDuration))

	processingStart := time.Now()
	jobID, err := a.submit(ctx, uploadURL)
	if err != nil {
		result.ProcessingDuration = time.Since(processingStart)
		return result, &repositories.TranscriptionError{Stage: "submit", Err: err}
	}

	transcript, err := a.poll(ctx, jobID)
	result.ProcessingDuration = time.Since(processingStart)
	if err != nil {
		return result, err
	}

	result.Text = transcript.Text
	result.AudioDuration = transcript.AudioDuration

	a.logger.Info("Transcription completed",
		zap.String("jobID", jobID),
		zap.Duration("upload", result.UploadDuration),
		zap.Duration("processing", result.ProcessingDuration),
		zap.Float64("audioSeconds", result.AudioDuration))

	return result, nil
}

func (a *AssemblyAITranscriber) upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBaseURL+"/upload", bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("authorization", a.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload rejected with status %d: %s", resp.StatusCode, string(body))
	}

	var uploadResp assemblyUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if uploadResp.UploadURL == "" {
		return "", fmt.Errorf("upload response missing upload_url")
	}

	return uploadResp.UploadURL, nil
}

func (a *AssemblyAITranscriber) submit(ctx context.Context, uploadURL string) (string, error) {
	payload, err := json.Marshal(assemblySubmitRequest{
		AudioURL:     uploadURL,
		LanguageCode: a.language,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBaseURL+"/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("authorization", a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("submit rejected with status %d: %s", resp.StatusCode, string(body))
	}

	var submitResp assemblyTranscriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", err)
	}
	if submitResp.ID == "" {
		return "", fmt.Errorf("submit response missing job id")
	}

	return submitResp.ID, nil
}

func (a *AssemblyAITranscriber) poll(ctx context.Context, jobID string) (*assemblyTranscriptResponse, error) {
	deadline := time.Now().Add(a.pollCeiling)

	for {
		transcript, err := a.pollOnce(ctx, jobID)
		if err != nil {
			return nil, &repositories.TranscriptionError{Stage: "poll", Err: err}
		}

		switch transcript.Status {
		case "completed":
			return transcript, nil
		case "error":
			return nil, &repositories.TranscriptionError{Stage: "poll", Err: fmt.Errorf("service reported: %s", transcript.Error)}
		case "queued", "processing":
			// keep polling
		default:
			return nil, &repositories.TranscriptionError{Stage: "poll", Err: fmt.Errorf("unknown job status %q", transcript.Status)}
		}

		if time.Now().After(deadline) {
			return nil, &repositories.TranscriptionError{Stage: "timeout", Err: fmt.Errorf("job %s still %s after %v", jobID, transcript.Status, a.pollCeiling)}
		}

		select {
		case <-ctx.Done():
			return nil, &repositories.TranscriptionError{Stage: "poll", Err: ctx.Err()}
		case <-time.After(a.pollInterval):
		}
	}
}

func (a *AssemblyAITranscriber) pollOnce(ctx context.Context, jobID string) (*assemblyTranscriptResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiBaseURL+"/transcript/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll request: %w", err)
	}
	req.Header.Set("authorization", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("poll rejected with status %d: %s", resp.StatusCode, string(body))
	}

	var transcript assemblyTranscriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&transcript); err != nil {
		return nil, fmt.Errorf("failed to decode poll response: %w", err)
	}

	return &transcript, nil
}

// NewAssemblyAIConfigFromEnv creates a new AssemblyAIConfig from environment variables
func NewAssemblyAIConfigFromEnv() AssemblyAIConfig {
	config := AssemblyAIConfig{
		APIKey:     os.Getenv("ASSEMBLY_API_KEY"),
		APIBaseURL: os.Getenv("ASSEMBLY_API_BASE_URL"),
		Language:   os.Getenv("ASSEMBLY_LANGUAGE"),
	}

	if ceilingStr := os.Getenv("ASSEMBLY_POLL_CEILING_SECONDS"); ceilingStr != "" {
		if ceiling, err := strconv.Atoi(ceilingStr); err == nil && ceiling > 0 {
			config.PollCeiling = time.Duration(ceiling) * time.Second
		}
	}

	return config
}
