package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"chatai-backend/internal/domain"
)

// notifyChannel — общий NOTIFY-канал Postgres. Триггер на таблице messages
// публикует в него JSON вставленной строки; фильтрация по комнате на нашей
// стороне.
const notifyChannel = "room_messages"

// presenceTTL ограничивает жизнь presence-набора: упавший процесс, не успев
// сделать untrack, перестаёт числиться в комнате после истечения ключа.
// Track продлевает TTL, выполняя роль heartbeat.
const presenceTTL = 5 * time.Minute

func typingChannel(roomID string) string { return "room:typing:" + roomID }
func presenceKey(roomID string) string   { return "room:presence:" + roomID }

// Bridge реализует domain.Realtime поверх двух транспортов: лента вставок
// приходит через Postgres LISTEN/NOTIFY, сигналы набора и presence живут в
// Redis.
type Bridge struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

var _ domain.Realtime = (*Bridge)(nil)

// NewBridge создаёт realtime-транспорт.
func NewBridge(pool *pgxpool.Pool, rdb *redis.Client, logger zerolog.Logger) *Bridge {
	return &Bridge{pool: pool, rdb: rdb, log: logger}
}

type messageFeed struct {
	msgs      chan domain.Message
	errs      chan error
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (f *messageFeed) Messages() <-chan domain.Message { return f.msgs }
func (f *messageFeed) Errors() <-chan error            { return f.errs }

func (f *messageFeed) Close() error {
	f.closeOnce.Do(f.cancel)
	return nil
}

// StreamInserts открывает ленту вставок сообщений комнаты. Соединение
// выделенное: LISTEN живёт до закрытия ленты.
func (b *Bridge) StreamInserts(ctx context.Context, roomID string) (domain.MessageFeed, error) {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("realtime: захват соединения: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("realtime: LISTEN: %w", err)
	}

	feedCtx, cancel := context.WithCancel(context.Background())
	feed := &messageFeed{
		msgs:   make(chan domain.Message, 16),
		errs:   make(chan error, 1),
		cancel: cancel,
	}

	go func() {
		defer conn.Release()
		defer close(feed.msgs)
		for {
			notification, err := conn.Conn().WaitForNotification(feedCtx)
			if err != nil {
				if feedCtx.Err() == nil {
					feed.errs <- fmt.Errorf("realtime: ожидание NOTIFY: %w", err)
				}
				return
			}
			var msg domain.Message
			if err := json.Unmarshal([]byte(notification.Payload), &msg); err != nil {
				b.log.Warn().Err(err).Str("room", roomID).Msg("realtime: нечитаемый payload NOTIFY")
				continue
			}
			if msg.RoomID != roomID {
				continue
			}
			select {
			case feed.msgs <- msg:
			case <-feedCtx.Done():
				return
			}
		}
	}()
	return feed, nil
}

type typingFeed struct {
	signals   chan domain.TypingSignal
	errs      chan error
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (f *typingFeed) Signals() <-chan domain.TypingSignal { return f.signals }
func (f *typingFeed) Errors() <-chan error                { return f.errs }

func (f *typingFeed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		f.cancel()
		err = f.pubsub.Close()
	})
	return err
}

// StreamTyping открывает ленту broadcast-сигналов набора текста комнаты.
func (b *Bridge) StreamTyping(ctx context.Context, roomID string) (domain.TypingFeed, error) {
	pubsub := b.rdb.Subscribe(ctx, typingChannel(roomID))
	// Дожидаемся подтверждения подписки, иначе первые сигналы теряются.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("realtime: подписка на typing: %w", err)
	}

	feedCtx, cancel := context.WithCancel(context.Background())
	feed := &typingFeed{
		signals: make(chan domain.TypingSignal, 16),
		errs:    make(chan error, 1),
		pubsub:  pubsub,
		cancel:  cancel,
	}

	go func() {
		defer close(feed.signals)
		ch := pubsub.Channel()
		for {
			select {
			case <-feedCtx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					if feedCtx.Err() == nil {
						feed.errs <- fmt.Errorf("realtime: канал typing закрыт")
					}
					return
				}
				var signal domain.TypingSignal
				if err := json.Unmarshal([]byte(raw.Payload), &signal); err != nil {
					b.log.Warn().Err(err).Str("room", roomID).Msg("realtime: нечитаемый typing-сигнал")
					continue
				}
				select {
				case feed.signals <- signal:
				case <-feedCtx.Done():
					return
				}
			}
		}
	}()
	return feed, nil
}

// PublishTyping рассылает сигнал набора всем подписчикам комнаты.
func (b *Bridge) PublishTyping(ctx context.Context, roomID string, signal domain.TypingSignal) error {
	payload, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("realtime: сериализация typing-сигнала: %w", err)
	}
	if err := b.rdb.Publish(ctx, typingChannel(roomID), payload).Err(); err != nil {
		return fmt.Errorf("realtime: publish typing: %w", err)
	}
	return nil
}

// Track регистрирует подписчика в presence-наборе комнаты.
func (b *Bridge) Track(ctx context.Context, roomID string, entry domain.PresenceEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("realtime: сериализация presence: %w", err)
	}
	key := presenceKey(roomID)
	if err := b.rdb.HSet(ctx, key, entry.UserID, payload).Err(); err != nil {
		return fmt.Errorf("realtime: track: %w", err)
	}
	if err := b.rdb.Expire(ctx, key, presenceTTL).Err(); err != nil {
		return fmt.Errorf("realtime: продление presence: %w", err)
	}
	return nil
}

// Untrack убирает подписчика из presence-набора комнаты.
func (b *Bridge) Untrack(ctx context.Context, roomID, userID string) error {
	if err := b.rdb.HDel(ctx, presenceKey(roomID), userID).Err(); err != nil {
		return fmt.Errorf("realtime: untrack: %w", err)
	}
	return nil
}

// Presence возвращает полный presence-набор комнаты.
func (b *Bridge) Presence(ctx context.Context, roomID string) ([]domain.PresenceEntry, error) {
	raw, err := b.rdb.HGetAll(ctx, presenceKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("realtime: выборка presence: %w", err)
	}
	entries := make([]domain.PresenceEntry, 0, len(raw))
	for userID, payload := range raw {
		var entry domain.PresenceEntry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			b.log.Warn().Str("room", roomID).Str("user", userID).Msg("realtime: нечитаемая presence-запись")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
