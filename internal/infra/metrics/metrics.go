package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	RoomSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "room_subscribers",
		Help: "Текущее число подписчиков комнат",
	})
	RoomReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "room_reconnects_total",
		Help: "Переподключения realtime-лент комнат",
	})
	RoomMessagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "room_messages_delivered_total",
		Help: "Сообщения, розданные подписчикам комнат",
	})
	RoomTypingSignals = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "room_typing_signals_total",
		Help: "Обработанные сигналы набора текста",
	})

	SchedulerTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_ticks_total",
		Help: "Выполненные тики планировщика дайджестов",
	})
	SchedulerTicksSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_ticks_skipped_total",
		Help: "Тики, пропущенные из-за незавершённого предыдущего",
	})
	DigestsGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "digests_generated_total",
		Help: "Успешно сгенерированные и сохранённые дайджесты",
	})
	DigestGenerationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "digest_generation_seconds",
		Help:    "Длительность генерации дайджеста",
		Buckets: []float64{.5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	})
	PushSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_send_errors_total",
		Help: "Ошибки доставки push-уведомлений",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		RoomSubscribers,
		RoomReconnects,
		RoomMessagesDelivered,
		RoomTypingSignals,
		SchedulerTicks,
		SchedulerTicksSkipped,
		DigestsGenerated,
		DigestGenerationSeconds,
		PushSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
