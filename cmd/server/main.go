package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/lifelongcx/voiceagent/adapters"
	"github.com/lifelongcx/voiceagent/adapters/llm"
	adaptermongo "github.com/lifelongcx/voiceagent/adapters/mongo"
	"github.com/lifelongcx/voiceagent/adapters/stt"
	"github.com/lifelongcx/voiceagent/adapters/tts"
	"github.com/lifelongcx/voiceagent/domain/repositories"
	"github.com/lifelongcx/voiceagent/internal/api"
	"github.com/lifelongcx/voiceagent/internal/auth"
	"github.com/lifelongcx/voiceagent/internal/websocket"
	"github.com/lifelongcx/voiceagent/usecase"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// External collaborators. Missing keys fall back to mocks so the call
	// flow stays runnable locally.
	transcriber := buildTranscriber(logger)
	generator := buildGenerator(logger)
	synthesizer := buildSynthesizer(logger)
	feedback, mongoClient := buildFeedback(logger)

	authService, err := auth.NewServiceFromEnv()
	if err != nil {
		logger.Warn("JWT secret not configured, using a process-local secret", zap.Error(err))
		authService = auth.NewService([]byte(time.Now().Format(time.RFC3339Nano)))
	}

	prompts := usecase.NewPromptBuilder(0)
	pipeline := usecase.NewCallPipeline(
		transcriber,
		generator,
		usecase.NewAnalyzer(),
		prompts,
		usecase.DefaultFilters(),
		logger,
	)

	hub := websocket.NewHub(logger)
	go hub.Run()

	handler := api.NewHandler(hub, pipeline, transcriber, generator, synthesizer, feedback, prompts, authService, logger)
	api.InitRoutes(e, handler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Voice feedback agent started", zap.String("port", port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Shutdown()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if mongoClient != nil {
		mongoClient.Close(ctx)
	}

	logger.Info("Server exited")
}

func buildTranscriber(logger *zap.Logger) repositories.Transcriber {
	if os.Getenv("STT_PROVIDER") == "google" {
		logger.Info("Using Google Cloud Speech streaming transcriber")
		return stt.NewGoogleSpeechToText(logger)
	}

	config := stt.NewAssemblyAIConfigFromEnv()
	transcriber, err := stt.NewAssemblyAITranscriber(config, logger)
	if err != nil {
		logger.Warn("AssemblyAI not configured, using mock transcriber", zap.Error(err))
		return stt.NewMockTranscriber(logger)
	}
	return transcriber
}

func buildGenerator(logger *zap.Logger) repositories.ReplyGenerator {
	config := llm.NewGeminiConfigFromEnv()
	generator, err := llm.NewGeminiGenerator(config, logger)
	if err != nil {
		logger.Warn("Gemini not configured, using mock generator", zap.Error(err))
		return llm.NewMockGenerator(logger)
	}
	return generator
}

func buildSynthesizer(logger *zap.Logger) repositories.SpeechSynthesizer {
	config := tts.NewElevenLabsConfigFromEnv()
	synthesizer, err := tts.NewElevenLabsRelay(config, logger)
	if err != nil {
		logger.Warn("ElevenLabs not configured, using mock synthesizer", zap.Error(err))
		return tts.NewMockSynthesizer(logger)
	}
	return synthesizer
}

func buildFeedback(logger *zap.Logger) (repositories.FeedbackRepository, *adaptermongo.Client) {
	if os.Getenv("MONGODB_URI") == "" {
		logger.Info("MongoDB not configured, archiving feedback in memory")
		return adapters.NewMemoryFeedbackRepository(), nil
	}

	client, err := adaptermongo.NewClient(logger)
	if err != nil {
		logger.Warn("MongoDB connection failed, archiving feedback in memory", zap.Error(err))
		return adapters.NewMemoryFeedbackRepository(), nil
	}

	return adaptermongo.NewFeedbackRepository(client.Database), client
}
