package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"chatai-backend/internal/adapters/generator"
	"chatai-backend/internal/adapters/push"
	"chatai-backend/internal/adapters/repo"
	"chatai-backend/internal/api"
	"chatai-backend/internal/infra/config"
	"chatai-backend/internal/infra/db"
	"chatai-backend/internal/infra/genai"
	httpinfra "chatai-backend/internal/infra/http"
	infralog "chatai-backend/internal/infra/log"
	"chatai-backend/internal/infra/metrics"
	"chatai-backend/internal/usecase/chat"
	"chatai-backend/internal/usecase/digest"
)

func main() {
	cfg := config.Load()
	logger := infralog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger, fmt.Sprintf(":%d", cfg.MetricsPort))

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	genaiClient := genai.NewClient(cfg.Gemini.APIKey, "", 60*time.Second)
	generatorAdapter := generator.NewGemini(genaiClient, cfg.Gemini.Model)
	expo := push.NewExpo(cfg.Expo.PushURL, 0)

	digestService := digest.NewService(
		repoAdapter,
		repoAdapter,
		generatorAdapter,
		expo,
		expo,
		cfg.Digest.Language,
		logger.With().Str("component", "digest").Logger(),
	)

	assistant := generator.NewAssistant(genaiClient, cfg.Gemini.Model)
	chatService := chat.NewService(assistant, logger.With().Str("component", "chat").Logger())

	handler := api.NewHandler(repoAdapter, repoAdapter, expo, digestService, chatService, logger.With().Str("component", "api").Logger())

	srv := httpinfra.NewServer(logger)
	srv.Router.Mount("/", handler.Routes())

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("api: HTTP сервер")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api: остановка HTTP сервера")
	}
	log.Info().Msg("api: завершение")
}
