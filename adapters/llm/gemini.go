package llm

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/lifelongcx/voiceagent/domain/entities"
	"github.com/lifelongcx/voiceagent/domain/repositories"
)

const (
	defaultModel          = "gemini-2.5-flash"
	defaultTemperature    = 0.7
	defaultTopP           = 0.95
	defaultMaxTokens      = 256
	defaultTimeoutSeconds = 30
)

// GeminiConfig holds configuration for the Gemini reply generator.
// Required fields:
// - APIKey: Your Google AI API key
// Optional fields with defaults:
// - Model: The model ID to use (default: "gemini-2.5-flash")
// - Temperature: Sampling temperature between 0 and 1 (default: 0.7)
// - TopP: Nucleus sampling value between 0 and 1 (default: 0.95)
// - MaxOutputTokens: Reply length cap (default: 256)
// - TimeoutSeconds: Per-call deadline (default: 30)
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	TopP            float32
	MaxOutputTokens int
	TimeoutSeconds  int
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}
	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}
	if config.TopP != 0 && (config.TopP < 0 || config.TopP > 1) {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}
	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("maxOutputTokens must be positive, got %d", config.MaxOutputTokens)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

// GeminiGenerator implements the ReplyGenerator interface using Google's
// Gemini API. One GenerateContent call per invocation, no retries: the
// model call dominates turn latency, and a failed turn is the session's
// problem to report, not this adapter's to paper over.
type GeminiGenerator struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	temperature     float32
	topP            float32
	maxOutputTokens int
	timeout         time.Duration
}

var _ repositories.ReplyGenerator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a new Gemini reply generator
func NewGeminiGenerator(config GeminiConfig, logger *zap.Logger) (*GeminiGenerator, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}

	temperature := config.Temperature
	if temperature == 0 {
		temperature = float32(defaultTemperature)
	}

	topP := config.TopP
	if topP == 0 {
		topP = float32(defaultTopP)
	}

	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxTokens
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &GeminiGenerator{
		client:          client,
		logger:          logger,
		model:           model,
		temperature:     temperature,
		topP:            topP,
		maxOutputTokens: maxOutputTokens,
		timeout:         time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// Generate makes exactly one model call with the system instruction, the
// full turn history and the latest caller input.
func (g *GeminiGenerator) Generate(ctx context.Context, system string, history []entities.Turn, input string) (string, error) {
	contents := buildContents(history, input)

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
		TopP:              genai.Ptr(g.topP),
		MaxOutputTokens:   int32(g.maxOutputTokens),
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(0)),
		},
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", &repositories.GenerationError{Err: err}
	}

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil || len(response.Candidates[0].Content.Parts) == 0 {
		return "", &repositories.GenerationError{Err: fmt.Errorf("model returned no content")}
	}

	var text string
	for _, part := range response.Candidates[0].Content.Parts {
		text += part.Text
	}
	if text == "" {
		return "", &repositories.GenerationError{Err: fmt.Errorf("model returned empty text")}
	}

	g.logger.Debug("Reply generated",
		zap.String("model", g.model),
		zap.Int("historyTurns", len(history)),
		zap.Int("replyLength", len(text)))

	return text, nil
}

// buildContents converts the turn history plus the latest input into the
// role-tagged contents Gemini expects. History is never truncated.
func buildContents(history []entities.Turn, input string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		var role genai.Role = genai.RoleUser
		if turn.Speaker == entities.SpeakerAgent {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(input, genai.RoleUser))
	return contents
}

// NewGeminiConfigFromEnv creates a new GeminiConfig from environment variables
func NewGeminiConfigFromEnv() GeminiConfig {
	config := GeminiConfig{
		APIKey: os.Getenv("GEMINI_API_KEY"),
		Model:  os.Getenv("GEMINI_MODEL"),
	}

	if timeoutStr := os.Getenv("GEMINI_TIMEOUT_SECONDS"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil && timeout > 0 {
			config.TimeoutSeconds = timeout
		}
	}

	return config
}
