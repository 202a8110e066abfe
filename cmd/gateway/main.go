package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"chatai-backend/internal/adapters/realtime"
	"chatai-backend/internal/adapters/repo"
	"chatai-backend/internal/gateway"
	"chatai-backend/internal/infra/config"
	"chatai-backend/internal/infra/db"
	infralog "chatai-backend/internal/infra/log"
	"chatai-backend/internal/infra/metrics"
	"chatai-backend/internal/usecase/room"
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
		log.Fatal().Err(err).Msg("gateway: нет подключения к БД")
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	bridge := realtime.NewBridge(pool, rdb, logger.With().Str("component", "realtime").Logger())
	channel := room.NewChannel(bridge, room.Config{
		TypingWindow:     cfg.Room.TypingWindow,
		QueueSize:        cfg.Room.QueueSize,
		SubscribeRetries: cfg.Room.SubscribeRetries,
		RetryBackoff:     cfg.Room.RetryBackoff,
	}, logger.With().Str("component", "room").Logger())

	repoAdapter := repo.NewPostgres(pool)
	handler := gateway.NewHandler(channel, repoAdapter, repoAdapter, logger.With().Str("component", "gateway").Logger())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Mount("/", handler.Routes())

	// Без Read/WriteTimeout: дедлайны убили бы долгоживущие WebSocket
	// соединения, keepalive обеспечивается пингами самого шлюза.
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("gateway: сервер запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("gateway: HTTP сервер")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway: остановка HTTP сервера")
	}
	// Подписки закрываются явно: presence не должен переживать процесс.
	channel.Shutdown()
	log.Info().Msg("gateway: завершение")
}
