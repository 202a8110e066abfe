package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"chatai-backend/internal/domain"
	"chatai-backend/internal/infra/metrics"
)

// ErrAlreadyRunning возвращается при повторном запуске планировщика.
var ErrAlreadyRunning = errors.New("планировщик уже запущен")

// DigestRunner — конвейер дайджеста, который планировщик запускает для
// каждого пользователя, чьё время пришло.
type DigestRunner interface {
	SendUserDigest(ctx context.Context, cfg domain.DigestSettings) (domain.Digest, error)
	TriggerManual(ctx context.Context, userID string) (domain.Digest, error)
	TestGeneration(ctx context.Context, topics []string, customPrompt, userID string) (domain.Digest, error)
}

// Config задаёт параметры планировщика.
type Config struct {
	// Interval — период тика. По умолчанию минута, выровненная по стенным
	// часам.
	Interval time.Duration
	// Workers ограничивает параллелизм обработки пользователей внутри
	// одного тика.
	Workers int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// Scheduler — единственный на процесс периодический цикл доставки
// дайджестов. Состояния только два: Stopped и Running.
type Scheduler struct {
	settings domain.SettingsRepo
	runner   DigestRunner
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time

	running  atomic.Bool
	inFlight atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler создаёт планировщик. Цикл не запускается до вызова Start.
func NewScheduler(settings domain.SettingsRepo, runner DigestRunner, cfg Config, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		settings: settings,
		runner:   runner,
		cfg:      cfg.withDefaults(),
		log:      logger,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start переводит планировщик в Running и запускает цикл тиков,
// выровненный по границе периода. Повторный запуск — ошибка.
func (s *Scheduler) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	s.log.Info().Dur("interval", s.cfg.Interval).Msg("scheduler: запуск")
	go s.loop()
	return nil
}

// Stop предотвращает следующий тик. Тик, уже находящийся в полёте,
// дорабатывает естественным образом.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	if s.running.CompareAndSwap(true, false) {
		<-s.done
		s.log.Info().Msg("scheduler: остановлен")
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)
	for {
		next := s.now().Truncate(s.cfg.Interval).Add(s.cfg.Interval)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
			// Тик уходит в отдельную горутину: долгая выборка или
			// генерация не сдвигает следующую границу периода и не
			// мешает остановке. Накопление исключено флагом inFlight.
			go s.CheckAndSendDigests(context.Background())
		}
	}
}

// CheckAndSendDigests выполняет один тик: находит пользователей, чьё время
// доставки совпадает с текущей минутой UTC, и запускает для каждого
// независимый конвейер. Если предыдущий тик ещё не завершён, вызов
// мгновенно превращается в no-op — тики не накапливаются и не повторяются.
func (s *Scheduler) CheckAndSendDigests(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		metrics.SchedulerTicksSkipped.Inc()
		s.log.Warn().Msg("scheduler: предыдущий тик ещё выполняется, пропуск")
		return
	}
	defer s.inFlight.Store(false)
	metrics.SchedulerTicks.Inc()

	current := s.now().UTC().Truncate(time.Minute).Format(clockLayout)

	users, err := s.settings.ListEnabledWithToken(ctx)
	if err != nil {
		// Тик бросается целиком, следующий запланированный всё равно
		// сработает.
		s.log.Error().Err(err).Msg("scheduler: выборка пользователей")
		return
	}

	due := make([]domain.DigestSettings, 0)
	for _, cfg := range users {
		if !cfg.Enabled || cfg.PushToken == "" {
			continue
		}
		if cfg.DeliveryTimeUTC != current {
			continue
		}
		due = append(due, cfg)
	}
	if len(due) == 0 {
		return
	}
	s.log.Info().Str("minute", current).Int("due", len(due)).Msg("scheduler: пользователи к доставке")

	sem := make(chan struct{}, s.cfg.Workers)
	var wg sync.WaitGroup
	for _, cfg := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(cfg domain.DigestSettings) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := s.runner.SendUserDigest(ctx, cfg); err != nil {
				// Отказ одного пользователя не трогает остальных.
				s.log.Error().Err(err).Str("user", cfg.UserID).Msg("scheduler: доставка дайджеста")
			}
		}(cfg)
	}
	wg.Wait()
}

// TriggerManualDigest синхронно запускает конвейер для пользователя в обход
// проверки времени.
func (s *Scheduler) TriggerManualDigest(ctx context.Context, userID string) (domain.Digest, error) {
	return s.runner.TriggerManual(ctx, userID)
}

// TestDigestGeneration выполняет только генерацию; уведомление не
// отправляется никогда.
func (s *Scheduler) TestDigestGeneration(ctx context.Context, topics []string, customPrompt, userID string) (domain.Digest, error) {
	return s.runner.TestGeneration(ctx, topics, customPrompt, userID)
}
