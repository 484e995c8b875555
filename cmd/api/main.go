package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"photostudio/internal/http/handlers"
	httpapi "photostudio/internal/http/httpapi"
	"photostudio/internal/imagecodec"
	"photostudio/internal/infra"
	"photostudio/internal/providers/genai"
	"photostudio/internal/providers/prompt"
	"photostudio/internal/studio"
	"photostudio/internal/templates"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var limiter *rate.Limiter
	if cfg.GenerationPerMin > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.GenerationPerMin)), cfg.GenerationPerMin)
	}
	client, err := genai.NewClient(ctx, genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		ImageModel: cfg.GeminiImageModel,
		TextModel:  cfg.GeminiTextModel,
		Logger:     logger,
		Limiter:    limiter,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create gemini client")
	}
	mode := "remote"
	if client.Synthetic() {
		mode = "synthetic"
		logger.Warn().Msg("GEMINI_API_KEY not set; generating synthetic images")
	}

	var suggester prompt.Suggester = prompt.NewStaticSuggester()
	if !client.Synthetic() {
		suggester, err = prompt.NewGeminiSuggester(prompt.GeminiOptions{
			Client:   client,
			Fallback: prompt.NewStaticSuggester(),
			Logger:   logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create style suggester")
		}
	}

	catalog, err := templates.Default()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load template catalog")
	}

	store, err := studio.NewStore(studio.StoreOptions{
		Session: studio.Options{
			Codec:       imagecodec.New(imagecodec.Options{MaxEdge: cfg.ImageMaxEdge, MaxBytes: cfg.MaxUploadBytes, MaxPixels: cfg.ImageMaxPixels}),
			Generator:   client,
			Templates:   catalog,
			Logger:      logger,
			Concurrency: cfg.GenerationWorkers,
			CallTimeout: cfg.GenerationTimeout,
		},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create session store")
	}

	app := &handlers.App{
		Store:          store,
		Templates:      catalog,
		Suggester:      suggester,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		WaitTimeout:    cfg.GenerationTimeout + 30*time.Second,
		Mode:           mode,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	server := infra.NewHTTPServer(cfg, router, logger)
	if err := server.Run(ctx, cfg.HTTPIdleTimeout); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}
