package room

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"chatai-backend/internal/domain"
)

// ErrSubscriptionClosed возвращается при отправке через закрытую подписку.
var ErrSubscriptionClosed = errors.New("подписка закрыта")

// TypingEvent — переход состояния набора, видимый подписчику. Собственные
// сигналы подписчика отфильтрованы.
type TypingEvent struct {
	UserID   string
	Username string
	IsTyping bool
}

// Subscription — дескриптор подписчика комнаты. События доставляются через
// ограниченные очереди: медленный потребитель теряет старые события, но не
// блокирует раздачу.
type Subscription struct {
	id       string
	roomID   string
	userID   string
	username string

	room     *room
	messages chan domain.Message
	typing   chan TypingEvent
	presence chan []domain.PresenceEntry
	closed   atomic.Bool
}

func newSubscription(r *room, userID, username string, queueSize int) *Subscription {
	return &Subscription{
		id:       uuid.NewString(),
		roomID:   r.id,
		userID:   userID,
		username: username,
		room:     r,
		messages: make(chan domain.Message, queueSize),
		typing:   make(chan TypingEvent, queueSize),
		presence: make(chan []domain.PresenceEntry, 1),
	}
}

// RoomID возвращает комнату подписки.
func (s *Subscription) RoomID() string { return s.roomID }

// UserID возвращает подписчика.
func (s *Subscription) UserID() string { return s.userID }

// Messages — лента вставок сообщений в порядке наблюдения.
func (s *Subscription) Messages() <-chan domain.Message { return s.messages }

// Typing — лента переходов набора, включая синтезированные стоп-сигналы.
func (s *Subscription) Typing() <-chan TypingEvent { return s.typing }

// Presence — лента полных presence-наборов комнаты.
func (s *Subscription) Presence() <-chan []domain.PresenceEntry { return s.presence }

// SendTyping рассылает сигнал набора остальным подписчикам комнаты.
// Ожидается вызов на каждое нажатие и один false при простое, но приёмная
// сторона в любом случае сама гасит запись по таймауту.
func (s *Subscription) SendTyping(ctx context.Context, isTyping bool) error {
	if s.closed.Load() {
		return ErrSubscriptionClosed
	}
	signal := domain.TypingSignal{
		RoomID:   s.roomID,
		UserID:   s.userID,
		Username: s.username,
		IsTyping: isTyping,
		At:       time.Now().UTC(),
	}
	return s.room.ch.transport.PublishTyping(ctx, s.roomID, signal)
}

// Close отписывает подписчика и снимает его presence. Повторный вызов —
// no-op.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.room.removeSubscription(s) {
		s.room.ch.closeRoom(s.room)
	}
}

// closeQueues закрывает очереди событий. Вызывается под замком комнаты,
// уже после снятия подписки с раздачи.
func (s *Subscription) closeQueues() {
	close(s.messages)
	close(s.typing)
	close(s.presence)
}

// pushMessage кладёт сообщение в очередь подписчика, вытесняя самое старое
// при переполнении. Вызывается под замком комнаты.
func (s *Subscription) pushMessage(m domain.Message) {
	select {
	case s.messages <- m:
		return
	default:
	}
	select {
	case <-s.messages:
	default:
	}
	select {
	case s.messages <- m:
	default:
	}
}

func (s *Subscription) pushTyping(e TypingEvent) {
	select {
	case s.typing <- e:
		return
	default:
	}
	select {
	case <-s.typing:
	default:
	}
	select {
	case s.typing <- e:
	default:
	}
}

// pushPresence заменяет непрочитанный снимок новым: подписчику важен только
// актуальный полный набор.
func (s *Subscription) pushPresence(entries []domain.PresenceEntry) {
	select {
	case s.presence <- entries:
		return
	default:
	}
	select {
	case <-s.presence:
	default:
	}
	select {
	case s.presence <- entries:
	default:
	}
}
