package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"chatai-backend/internal/adapters/generator"
	"chatai-backend/internal/adapters/push"
	"chatai-backend/internal/adapters/repo"
	"chatai-backend/internal/infra/config"
	"chatai-backend/internal/infra/db"
	"chatai-backend/internal/infra/genai"
	infralog "chatai-backend/internal/infra/log"
	"chatai-backend/internal/infra/metrics"
	"chatai-backend/internal/usecase/digest"
	"chatai-backend/internal/usecase/schedule"
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
		log.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
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

	sched := schedule.NewScheduler(repoAdapter, digestService, schedule.Config{
		Interval: cfg.Scheduler.Interval,
		Workers:  cfg.Scheduler.Workers,
	}, logger.With().Str("component", "scheduler").Logger())

	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("scheduler: запуск")
	}

	<-ctx.Done()
	sched.Stop()
	log.Info().Msg("scheduler: завершение")
}
