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
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/adapters/exchange"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/adapters/llm"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/adapters/storage"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/adapters/stt"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/adapters/tts"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/repositories"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/api"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/auth"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/config"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/metrics"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/voice"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/websocket"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/usecase"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load(logger)

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	m := metrics.New(prometheus.DefaultRegisterer)

	store := buildStore(cfg, logger)
	history := usecase.NewHistory(store, m, logger)

	exchangeClient, responder := buildExchange(cfg, logger)

	var fallback repositories.Synthesizer
	if elevenCfg := tts.NewElevenLabsConfigFromEnv(); elevenCfg.APIKey != "" {
		synth, err := tts.NewElevenLabsTTS(elevenCfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize fallback synthesizer", zap.Error(err))
		}
		fallback = synth
	} else {
		logger.Info("No fallback synthesizer configured")
	}

	chatService := usecase.NewChatService(responder, history, logger)

	sessionCfg := voice.DefaultConfig()
	sessionCfg.SampleRate = cfg.SampleRate
	sessionCfg.SilenceTimeout = time.Duration(cfg.SilenceTimeoutMs) * time.Millisecond
	sessionCfg.BargeHold = time.Duration(cfg.BargeHoldMs) * time.Millisecond

	hub := websocket.NewHub(sessionCfg, exchangeClient, fallback, history, m, logger)
	go hub.Run()

	tokens := auth.NewManager([]byte(cfg.JWTSecret), cfg.TokenTTL)

	// Initialize API routes
	api.InitRoutes(e, hub, history, chatService, tokens, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// buildStore selects the history backend from configuration.
func buildStore(cfg config.Config, logger *zap.Logger) repositories.BlobStore {
	switch cfg.HistoryBackend {
	case "mongodb":
		store, err := storage.NewMongoStore(storage.MongoConfig{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
			MaxBytes: cfg.HistoryMaxBytes,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		return store
	case "redis":
		store, err := storage.NewRedisStore(storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			MaxBytes: cfg.HistoryMaxBytes,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		return store
	default:
		logger.Info("Using in-memory history store")
		return storage.NewMemoryStore(cfg.HistoryMaxBytes)
	}
}

// buildExchange wires either the remote exchange client or the direct
// in-process backend, plus the responder the text-chat mode uses.
func buildExchange(cfg config.Config, logger *zap.Logger) (repositories.ExchangeClient, repositories.Responder) {
	var responder repositories.Responder
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiResponder(llm.GeminiConfig{APIKey: cfg.GeminiAPIKey}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize responder", zap.Error(err))
		}
		responder = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, using mock responder")
		responder = llm.NewMockResponder()
	}

	if cfg.ExchangeURL != "" {
		client, err := exchange.NewClient(exchange.Config{
			BaseURL: cfg.ExchangeURL,
			Timeout: cfg.ExchangeTimeout,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize exchange client", zap.Error(err))
		}
		logger.Info("Using remote exchange backend", zap.String("url", cfg.ExchangeURL))
		return client, responder
	}

	var transcriber repositories.SpeechToText
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
		transcriber = stt.NewGoogleSpeechToText()
	} else {
		logger.Warn("GOOGLE_APPLICATION_CREDENTIALS not set, using mock transcriber")
		transcriber = stt.NewMockSpeechToText(logger)
	}

	logger.Info("Using direct in-process exchange backend")
	direct := exchange.NewDirect(
		transcriber,
		responder,
		nil,
		cfg.Language,
		logger,
	)
	return direct, responder
}
