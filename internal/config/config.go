package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds application configuration.
type Config struct {
	Port      string
	JWTSecret string
	TokenTTL  time.Duration

	// Remote exchange service; empty enables the direct in-process
	// backend.
	ExchangeURL     string
	ExchangeTimeout time.Duration

	// Direct backend settings.
	GeminiAPIKey string
	Language     string

	// History persistence: "memory", "mongodb" or "redis".
	HistoryBackend  string
	HistoryMaxBytes int
	MongoURI        string
	MongoDatabase   string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	// Capture tuning.
	SampleRate       int
	SilenceTimeoutMs int
	BargeHoldMs      int
}

// Load reads environment variables and returns Config with sane defaults.
func Load(logger *zap.Logger) Config {
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file loaded", zap.Error(err))
	}

	cfg := Config{
		Port:             getEnv("PORT", "8080"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		TokenTTL:         time.Duration(getEnvInt("TOKEN_TTL_HOURS", 24)) * time.Hour,
		ExchangeURL:      os.Getenv("EXCHANGE_URL"),
		ExchangeTimeout:  time.Duration(getEnvInt("EXCHANGE_TIMEOUT_SECONDS", 60)) * time.Second,
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		Language:         getEnv("LANGUAGE", "en-US"),
		HistoryBackend:   getEnv("HISTORY_BACKEND", "memory"),
		HistoryMaxBytes:  getEnvInt("HISTORY_MAX_BYTES", 1<<20),
		MongoURI:         getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:    getEnv("MONGODB_DATABASE", "voicecore"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		SampleRate:       getEnvInt("SAMPLE_RATE", 16000),
		SilenceTimeoutMs: getEnvInt("SILENCE_TIMEOUT_MS", 2500),
		BargeHoldMs:      getEnvInt("BARGE_HOLD_MS", 1000),
	}

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, using an ephemeral development secret")
		cfg.JWTSecret = "dev-only-secret"
	}
	if cfg.ExchangeURL == "" && cfg.GeminiAPIKey == "" {
		logger.Warn("Neither EXCHANGE_URL nor GEMINI_API_KEY set, voice exchange will not work")
	}

	logger.Info("Configuration loaded",
		zap.String("port", cfg.Port),
		zap.String("history_backend", cfg.HistoryBackend),
		zap.Bool("remote_exchange", cfg.ExchangeURL != ""))

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
