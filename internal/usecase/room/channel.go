package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatai-backend/internal/domain"
	"chatai-backend/internal/infra/metrics"
)

// ErrEmptyRoomID возвращается при подписке без идентификатора комнаты.
var ErrEmptyRoomID = errors.New("пустой id комнаты")

// ErrEmptySubscriberID возвращается при подписке без идентификатора подписчика.
var ErrEmptySubscriberID = errors.New("пустой id подписчика")

// Config задаёт параметры канала комнат.
type Config struct {
	// TypingWindow — окно неактивности, после которого сигнал набора
	// считается устаревшим даже без явного стоп-сигнала.
	TypingWindow time.Duration
	// QueueSize — ёмкость очереди событий на подписчика. При переполнении
	// вытесняется самое старое событие.
	QueueSize int
	// SubscribeRetries — число попыток установить транспорт при открытии
	// комнаты.
	SubscribeRetries int
	// RetryBackoff — пауза между попытками переподключения.
	RetryBackoff time.Duration
	// DedupLimit — размер окна дедупликации сообщений по id.
	DedupLimit int
}

func (c Config) withDefaults() Config {
	if c.TypingWindow <= 0 {
		c.TypingWindow = 2 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.SubscribeRetries <= 0 {
		c.SubscribeRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.DedupLimit <= 0 {
		c.DedupLimit = 1024
	}
	return c
}

// Channel мультиплексирует три живых ленты комнаты — вставки сообщений,
// сигналы набора и presence — в единый поток событий для любого числа
// подписчиков. Все мутации состояния комнаты сериализуются её замком.
type Channel struct {
	transport domain.Realtime
	cfg       Config
	log       zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*room
}

// NewChannel создаёт канал комнат поверх realtime-транспорта.
func NewChannel(transport domain.Realtime, cfg Config, logger zerolog.Logger) *Channel {
	return &Channel{
		transport: transport,
		cfg:       cfg.withDefaults(),
		log:       logger,
		rooms:     make(map[string]*room),
	}
}

// Subscribe регистрирует подписчика комнаты и начинает отслеживать его
// presence. Анонс presence асинхронный: соседи могут увидеть подписчика
// только после первого presence-события, а не в момент возврата вызова.
func (c *Channel) Subscribe(ctx context.Context, roomID, subscriberID, username string) (*Subscription, error) {
	if roomID == "" {
		return nil, ErrEmptyRoomID
	}
	if subscriberID == "" {
		return nil, ErrEmptySubscriberID
	}

	var (
		r   *room
		sub *Subscription
	)
	for {
		c.mu.Lock()
		existing, ok := c.rooms[roomID]
		if !ok {
			var err error
			existing, err = c.openRoom(ctx, roomID)
			if err != nil {
				c.mu.Unlock()
				return nil, err
			}
			c.rooms[roomID] = existing
		}
		c.mu.Unlock()

		sub = newSubscription(existing, subscriberID, username, c.cfg.QueueSize)
		if existing.addSubscription(sub) {
			r = existing
			break
		}
		// Комната закрывается параллельно; на следующей итерации будет
		// открыта заново.
	}
	metrics.RoomSubscribers.Inc()

	go func() {
		trackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.announcePresence(trackCtx, sub)
		r.broadcastPresence(trackCtx)
	}()

	return sub, nil
}

// openRoom устанавливает транспортные ленты комнаты и запускает её цикл.
// Вызывается под c.mu.
func (c *Channel) openRoom(ctx context.Context, roomID string) (*room, error) {
	msgFeed, typingFeed, err := c.connect(ctx, roomID, c.cfg.SubscribeRetries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	r := &room{
		id:     roomID,
		ch:     c,
		subs:   make(map[string]*Subscription),
		typing: make(map[string]*typingEntry),
		seen:   make(map[string]struct{}),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go r.run(loopCtx, msgFeed, typingFeed)
	return r, nil
}

// connect делает ограниченное число попыток открыть обе ленты комнаты.
// При attempts <= 0 повторяет до отмены контекста.
func (c *Channel) connect(ctx context.Context, roomID string, attempts int) (domain.MessageFeed, domain.TypingFeed, error) {
	var lastErr error
	for attempt := 0; attempts <= 0 || attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(c.cfg.RetryBackoff):
			}
		}
		msgFeed, err := c.transport.StreamInserts(ctx, roomID)
		if err != nil {
			lastErr = err
			continue
		}
		typingFeed, err := c.transport.StreamTyping(ctx, roomID)
		if err != nil {
			_ = msgFeed.Close()
			lastErr = err
			continue
		}
		return msgFeed, typingFeed, nil
	}
	return nil, nil, lastErr
}

// closeRoom удаляет опустевшую комнату и останавливает её цикл. Если за
// время между проверкой и закрытием появился новый подписчик, закрытие
// отменяется.
func (c *Channel) closeRoom(r *room) {
	c.mu.Lock()
	r.mu.Lock()
	if len(r.subs) > 0 {
		r.mu.Unlock()
		c.mu.Unlock()
		return
	}
	r.closing = true
	for userID, entry := range r.typing {
		entry.timer.Stop()
		delete(r.typing, userID)
	}
	if current, ok := c.rooms[r.id]; ok && current == r {
		delete(c.rooms, r.id)
	}
	r.mu.Unlock()
	c.mu.Unlock()

	r.cancel()
	<-r.done
}

// Shutdown закрывает все подписки и комнаты. Используется при остановке
// процесса: presence не должен переживать подключения.
func (c *Channel) Shutdown() {
	c.mu.Lock()
	rooms := make([]*room, 0, len(c.rooms))
	for _, r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.mu.Unlock()

	for _, r := range rooms {
		for _, sub := range r.snapshotSubs() {
			sub.Close()
		}
	}
}
