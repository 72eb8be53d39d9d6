package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/pulih-app/coach/adapters/llm"
	"github.com/pulih-app/coach/adapters/memory"
	"github.com/pulih-app/coach/adapters/mongo"
	"github.com/pulih-app/coach/adapters/tts"
	"github.com/pulih-app/coach/internal/auth"
	"github.com/pulih-app/coach/internal/config"
	"github.com/pulih-app/coach/internal/devserver"
)

func main() {
	cfg, err := config.LoadDevServer()
	if err != nil {
		zap.NewExample().Fatal("Invalid configuration", zap.Error(err))
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		zap.NewExample().Fatal("Failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx := context.Background()

	issuer, err := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL)
	if err != nil {
		logger.Fatal("Failed to create token issuer", zap.Error(err))
	}

	deps := devserver.Dependencies{
		Issuer: issuer,
		Coach:  llm.NewMockCoach(),
	}

	if cfg.MongoURI != "" {
		client, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer client.Close(context.Background())

		repo := mongo.NewSummaryRepository(client.Database, logger)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warn("Failed to create indexes", zap.Error(err))
		}
		deps.Summaries = repo
	} else {
		logger.Info("MONGODB_URI not set, keeping session summaries in memory")
		deps.Summaries = memory.NewSummaryRepository()
	}

	if cfg.GeminiAPIKey != "" {
		coach, err := llm.NewGeminiCoach(ctx, llm.GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel}, logger)
		if err != nil {
			logger.Fatal("Failed to create Gemini coach", zap.Error(err))
		}
		deps.LLMCoach = coach
	}

	if ttsConfig := tts.NewElevenLabsConfigFromEnv(); ttsConfig.APIKey != "" {
		speech, err := tts.NewElevenLabsTTS(ttsConfig, logger)
		if err != nil {
			logger.Fatal("Failed to create text to speech", zap.Error(err))
		}
		deps.Speech = speech
	}

	srv, err := devserver.NewServer(deps, devserver.Options{FramesPerUpdate: cfg.FramesPerUpdate}, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}
	srv.Start()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	srv.Register(e)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Development coaching server started",
		zap.String("port", cfg.Port),
		zap.Bool("llm", deps.LLMCoach != nil),
		zap.Bool("voice", deps.Speech != nil))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")
	srv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
