package api

import (
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lifelongcx/voiceagent/domain/entities"
	"github.com/lifelongcx/voiceagent/domain/repositories"
	"github.com/lifelongcx/voiceagent/internal/auth"
	"github.com/lifelongcx/voiceagent/internal/websocket"
	"github.com/lifelongcx/voiceagent/usecase"
)

// Handler carries the dependencies behind the HTTP surface.
type Handler struct {
	hub         *websocket.Hub
	pipeline    *usecase.CallPipeline
	transcriber repositories.Transcriber
	generator   repositories.ReplyGenerator
	synthesizer repositories.SpeechSynthesizer
	feedback    repositories.FeedbackRepository
	prompts     *usecase.PromptBuilder
	authService *auth.Service
	logger      *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(
	hub *websocket.Hub,
	pipeline *usecase.CallPipeline,
	transcriber repositories.Transcriber,
	generator repositories.ReplyGenerator,
	synthesizer repositories.SpeechSynthesizer,
	feedback repositories.FeedbackRepository,
	prompts *usecase.PromptBuilder,
	authService *auth.Service,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		hub:         hub,
		pipeline:    pipeline,
		transcriber: transcriber,
		generator:   generator,
		synthesizer: synthesizer,
		feedback:    feedback,
		prompts:     prompts,
		authService: authService,
		logger:      logger,
	}
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, h *Handler) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "voiceagent",
		})
	})

	// One-shot STT and reply endpoints
	e.POST("/stt/transcribe", h.transcribe)
	e.POST("/agent/reply", h.reply)

	// The voice call endpoint
	e.GET("/api/agent/voice", h.voice)

	// Operator API
	v1 := e.Group("/api/v1")
	v1.POST("/auth/token", h.issueToken)
	v1.GET("/feedback", h.listFeedback)
}

// voice hands the connection to the call session orchestrator.
func (h *Handler) voice(c echo.Context) error {
	return websocket.HandleVoice(h.hub, c, h.pipeline, h.synthesizer, h.feedback, h.logger)
}

// transcribe runs one audio file through the transcription client.
func (h *Handler) transcribe(c echo.Context) error {
	audio, err := readAudioFile(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "An audio file upload named 'file' is required",
		})
	}

	result, err := h.transcriber.Transcribe(c.Request().Context(), audio)
	if err != nil {
		h.logger.Warn("Transcription request failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "transcription_failed",
			Message: "Could not transcribe the audio",
		})
	}

	return c.JSON(http.StatusOK, TranscribeResponse{
		Text:             result.Text,
		UploadTimeMs:     result.UploadDuration.Milliseconds(),
		ProcessingTimeMs: result.ProcessingDuration.Milliseconds(),
		AudioDuration:    result.AudioDuration,
	})
}

// reply transcribes one audio file and generates a single stateless reply.
func (h *Handler) reply(c echo.Context) error {
	audio, err := readAudioFile(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "An audio file upload named 'file' is required",
		})
	}

	ctx := c.Request().Context()

	result, err := h.transcriber.Transcribe(ctx, audio)
	if err != nil || strings.TrimSpace(result.Text) == "" {
		h.logger.Warn("Transcription request failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "transcription_failed",
			Message: "Could not understand the audio",
		})
	}

	reply, err := h.generator.Generate(ctx, h.prompts.System(entities.NewConversation()), nil, result.Text)
	if err != nil {
		h.logger.Error("Reply generation failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "generation_failed",
			Message: "Could not generate a reply",
		})
	}

	return c.JSON(http.StatusOK, ReplyResponse{
		UserText:   result.Text,
		AgentReply: reply,
	})
}

// issueToken exchanges the operator access key for a JWT.
func (h *Handler) issueToken(c echo.Context) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.OperatorID == "" || req.AccessKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Operator id and access key are required",
		})
	}

	accessKey := os.Getenv("OPERATOR_ACCESS_KEY")
	if accessKey == "" || req.AccessKey != accessKey {
		h.logger.Warn("Operator authentication failed", zap.String("operator_id", req.OperatorID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid operator credentials",
		})
	}

	token, err := h.authService.GenerateOperatorToken(req.OperatorID)
	if err != nil {
		h.logger.Error("Failed to generate operator token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	return c.JSON(http.StatusOK, TokenResponse{Token: token})
}

// listFeedback returns recent archived calls. Requires an operator token.
func (h *Handler) listFeedback(c echo.Context) error {
	var token string
	authHeader := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		token = authHeader[len("Bearer "):]
	}

	if token == "" {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header",
		})
	}

	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		h.logger.Warn("Feedback request rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	if claims.Role != "operator" {
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only operator tokens may list feedback",
		})
	}

	records, err := h.feedback.ListRecent(c.Request().Context(), 50)
	if err != nil {
		h.logger.Error("Failed to list feedback records", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to list feedback records",
		})
	}

	return c.JSON(http.StatusOK, FeedbackListResponse{Records: records})
}

func readAudioFile(c echo.Context) ([]byte, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}
