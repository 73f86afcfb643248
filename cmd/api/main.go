package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/partfinder/identify"
	"github.com/partfinder/identify/api"
	"github.com/partfinder/identify/imaging"
	"github.com/partfinder/identify/llm"
	"github.com/partfinder/identify/store"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("partfinder service initializing", "version", "1.0.0")

	// Initialize tracing
	tp, err := initTracer("partfinder-api")
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	// Default values
	defaultPort := getEnv("PORT", "8080")
	defaultLLMBaseURL := getEnv("LLM_BASE_URL", "https://api.groq.com/openai/v1")
	defaultVisionModel := getEnv("LLM_VISION_MODEL", "meta-llama/llama-4-scout-17b-16e-instruct")
	defaultAnswerBaseURL := getEnv("ANSWER_BASE_URL", "https://api.perplexity.ai")
	defaultAnswerModel := getEnv("ANSWER_MODEL", "sonar-pro")
	defaultEmbedBaseURL := getEnv("EMBEDDING_BASE_URL", "")
	defaultEmbedModel := getEnv("EMBEDDING_MODEL", "")
	defaultMinConfidence := getEnv("MIN_CONFIDENCE", "0.4")

	minConfidence, err := strconv.ParseFloat(defaultMinConfidence, 64)
	if err != nil {
		logger.Warn("invalid MIN_CONFIDENCE value, using default",
			"provided", defaultMinConfidence,
			"default", 0.4,
			"error", err,
		)
		minConfidence = 0.4
	}

	// Command-line flags (override environment variables)
	port := flag.String("port", defaultPort, "Server port")
	llmBaseURL := flag.String("llm-base-url", defaultLLMBaseURL, "Vision capability base URL (OpenAI-compatible)")
	visionModel := flag.String("vision-model", defaultVisionModel, "Model used for photo classification")
	answerBaseURL := flag.String("answer-base-url", defaultAnswerBaseURL, "Search/answer capability base URL (OpenAI-compatible)")
	answerModel := flag.String("answer-model", defaultAnswerModel, "Model used for sourcing answers")
	embedBaseURL := flag.String("embedding-base-url", defaultEmbedBaseURL, "Remote embedding backend URL (empty for local perceptual hashing)")
	embedModel := flag.String("embedding-model", defaultEmbedModel, "Remote embedding model name")
	confidenceThreshold := flag.Float64("min-confidence", minConfidence, "Minimum classification confidence (0.0-1.0)")
	allowTextOnly := flag.Bool("allow-text-only-matches", false, "Accept candidates without any product image to compare")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	flag.Parse()

	llmAPIKey := getEnv("LLM_API_KEY", "")
	answerAPIKey := getEnv("ANSWER_API_KEY", "")
	embedAPIKey := getEnv("EMBEDDING_API_KEY", "")
	if llmAPIKey == "" {
		logger.Error("LLM_API_KEY environment variable is required")
		os.Exit(1)
	}
	if answerAPIKey == "" {
		logger.Error("ANSWER_API_KEY environment variable is required")
		os.Exit(1)
	}

	config := identify.DefaultConfig()
	config.MinConfidence = *confidenceThreshold
	config.AllowTextOnlyMatches = *allowTextOnly

	// Outbound HTTP clients carry the otel transport so capability calls and
	// page fetches show up as spans under the inbound request.
	capabilityClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	fetchClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	llmConfig := llm.DefaultConfig()
	llmConfig.BaseURL = *llmBaseURL
	llmConfig.APIKey = llmAPIKey
	llmConfig.VisionModel = *visionModel
	llmConfig.AnswerTimeout = config.AnswerTimeout
	llmConfig.AnswerRetries = config.AnswerRetries
	classifier := llm.New(llmConfig, capabilityClient)

	answerConfig := llm.DefaultConfig()
	answerConfig.BaseURL = *answerBaseURL
	answerConfig.APIKey = answerAPIKey
	answerConfig.AnswerModel = *answerModel
	answerConfig.AnswerTimeout = config.AnswerTimeout
	answerConfig.AnswerRetries = config.AnswerRetries
	answerer := llm.New(answerConfig, capabilityClient)

	var embedder imaging.Embedder
	if *embedBaseURL != "" {
		embedder = &imaging.RemoteEmbedder{
			BaseURL:    *embedBaseURL,
			Model:      *embedModel,
			APIKey:     embedAPIKey,
			HTTPClient: capabilityClient,
		}
		logger.Info("using remote embedding backend", "url", *embedBaseURL, "model", *embedModel)
	} else {
		embedder = imaging.HashEmbedder{}
		logger.Info("no embedding backend configured, using perceptual-hash fallback")
	}

	cache := store.New(store.Config{TTL: config.CacheTTL})
	fetcher := identify.NewFetcher(config, fetchClient)
	validator := identify.NewValidator(config, fetcher, embedder, cache)
	sourcer := identify.NewSourcer(config, answerer, validator, embedder)
	gate := imaging.NewGate(config.BlurThreshold, config.MinPixels, config.BrightnessThreshold)
	pipeline := identify.NewPipeline(config, gate, classifier, sourcer)

	serverConfig := api.DefaultConfig()
	serverConfig.Addr = ":" + *port
	serverConfig.CORSEnabled = !*disableCORS
	server := api.NewServer(serverConfig, pipeline, cache)

	// Evict stale validation entries in the background.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if dropped := cache.PurgeExpired(); dropped > 0 {
				logger.Info("purged stale validation entries", "count", dropped)
			}
		}
	}()

	// Start server in a goroutine
	go func() {
		logger.Info("partfinder service starting",
			"port", *port,
			"llm_base_url", *llmBaseURL,
			"vision_model", *visionModel,
			"answer_base_url", *answerBaseURL,
			"answer_model", *answerModel,
			"embedding_backend", *embedBaseURL != "",
			"min_confidence", *confidenceThreshold,
			"allow_text_only_matches", *allowTextOnly,
		)

		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
