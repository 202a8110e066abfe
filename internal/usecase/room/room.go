package room

import (
	"context"
	"sync"
	"time"

	"chatai-backend/internal/domain"
	"chatai-backend/internal/infra/metrics"
)

// typingEntry — единственный авторитетный дедлайн набора для пары
// (комната, пользователь). Таймер отменяется и заменяется атомарно под
// замком комнаты; gen защищает от срабатывания устаревшего таймера.
type typingEntry struct {
	username string
	timer    *time.Timer
	gen      uint64
}

// room хранит разделяемое состояние одной комнаты: подписчиков, записи
// набора и окно дедупликации сообщений. Все мутации — под mu.
type room struct {
	id string
	ch *Channel

	mu        sync.Mutex
	closing   bool
	subs      map[string]*Subscription
	typing    map[string]*typingEntry
	seen      map[string]struct{}
	seenOrder []string

	cancel context.CancelFunc
	done   chan struct{}
}

// run — цикл комнаты: читает транспортные ленты и раздаёт события
// подписчикам. Разрыв транспорта приводит к переподключению с повторным
// анонсом presence; до успеха подписчики комнаты для соседей отсутствуют.
func (r *room) run(ctx context.Context, msgFeed domain.MessageFeed, typingFeed domain.TypingFeed) {
	defer close(r.done)
	// После неудачного reconnect ленты остаются nil.
	defer func() {
		if msgFeed != nil {
			_ = msgFeed.Close()
		}
		if typingFeed != nil {
			_ = typingFeed.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgFeed.Messages():
			if !ok {
				msgFeed, typingFeed = r.reconnect(ctx, msgFeed, typingFeed)
				if msgFeed == nil {
					return
				}
				continue
			}
			r.handleMessage(m)
		case s, ok := <-typingFeed.Signals():
			if !ok {
				msgFeed, typingFeed = r.reconnect(ctx, msgFeed, typingFeed)
				if msgFeed == nil {
					return
				}
				continue
			}
			r.handleTyping(s)
		case err := <-msgFeed.Errors():
			r.ch.log.Warn().Err(err).Str("room", r.id).Msg("room: лента сообщений оборвалась")
			msgFeed, typingFeed = r.reconnect(ctx, msgFeed, typingFeed)
			if msgFeed == nil {
				return
			}
		case err := <-typingFeed.Errors():
			r.ch.log.Warn().Err(err).Str("room", r.id).Msg("room: лента typing оборвалась")
			msgFeed, typingFeed = r.reconnect(ctx, msgFeed, typingFeed)
			if msgFeed == nil {
				return
			}
		}
	}
}

// reconnect закрывает старые ленты и восстанавливает подключение без
// ограничения попыток, затем заново анонсирует presence всех локальных
// подписчиков. Возвращает nil при отмене контекста.
func (r *room) reconnect(ctx context.Context, oldMsg domain.MessageFeed, oldTyping domain.TypingFeed) (domain.MessageFeed, domain.TypingFeed) {
	_ = oldMsg.Close()
	_ = oldTyping.Close()
	metrics.RoomReconnects.Inc()

	msgFeed, typingFeed, err := r.ch.connect(ctx, r.id, 0)
	if err != nil {
		return nil, nil
	}

	announceCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, sub := range r.snapshotSubs() {
		r.announcePresence(announceCtx, sub)
	}
	r.broadcastPresence(announceCtx)
	return msgFeed, typingFeed
}

// announcePresence регистрирует подписчика в presence-наборе. Track идёт вне
// замков и может проиграть гонку параллельному Close: Untrack ушедшего
// подписчика выполнится раньше, а запоздавший Track воскресит запись. Флаг
// closed выставляется строго до Untrack, поэтому перепроверка после Track с
// компенсирующим Untrack закрывает эту гонку.
func (r *room) announcePresence(ctx context.Context, sub *Subscription) {
	entry := domain.PresenceEntry{UserID: sub.userID, Username: sub.username, ConnectedAt: time.Now().UTC()}
	if err := r.ch.transport.Track(ctx, r.id, entry); err != nil {
		r.ch.log.Error().Err(err).Str("room", r.id).Str("user", sub.userID).Msg("room: track presence")
		return
	}
	if sub.closed.Load() {
		if err := r.ch.transport.Untrack(ctx, r.id, sub.userID); err != nil {
			r.ch.log.Error().Err(err).Str("room", r.id).Str("user", sub.userID).Msg("room: компенсирующий untrack")
		}
	}
}

// addSubscription регистрирует подписчика. Возвращает false, если комната
// уже закрывается и подписку нужно повторить на свежей комнате.
func (r *room) addSubscription(sub *Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return false
	}
	r.subs[sub.id] = sub
	return true
}

// removeSubscription выполняет безусловную очистку при любом пути выхода:
// снимает подписчика с раздачи и убирает presence. Запись набора ушедшего
// пользователя намеренно не трогаем: соседи получат синтезированный false
// по таймауту, даже если отправитель отключился молча.
// Возвращает true, если комната опустела.
func (r *room) removeSubscription(sub *Subscription) bool {
	r.mu.Lock()
	delete(r.subs, sub.id)
	empty := len(r.subs) == 0
	sub.closeQueues()
	r.mu.Unlock()

	untrackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.ch.transport.Untrack(untrackCtx, r.id, sub.userID); err != nil {
		r.ch.log.Error().Err(err).Str("room", r.id).Str("user", sub.userID).Msg("room: untrack presence")
	}
	if !empty {
		r.broadcastPresence(untrackCtx)
	}
	metrics.RoomSubscribers.Dec()
	return empty
}

func (r *room) snapshotSubs() []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	return subs
}

// handleMessage раздаёт вставку всем подписчикам. Лента at-least-once,
// поэтому повторы отсекаются по id в скользящем окне.
func (r *room) handleMessage(m domain.Message) {
	r.mu.Lock()
	if _, dup := r.seen[m.ID]; dup {
		r.mu.Unlock()
		return
	}
	r.seen[m.ID] = struct{}{}
	r.seenOrder = append(r.seenOrder, m.ID)
	if len(r.seenOrder) > r.ch.cfg.DedupLimit {
		oldest := r.seenOrder[0]
		r.seenOrder = r.seenOrder[1:]
		delete(r.seen, oldest)
	}
	for _, sub := range r.subs {
		sub.pushMessage(m)
	}
	r.mu.Unlock()
	metrics.RoomMessagesDelivered.Inc()
}

// handleTyping обновляет запись набора и раздаёт переход всем, кроме самого
// отправителя. Повторный true сдвигает дедлайн; явный false снимает запись
// раньше таймера.
func (r *room) handleTyping(s domain.TypingSignal) {
	r.mu.Lock()
	if s.IsTyping {
		entry, ok := r.typing[s.UserID]
		if ok {
			entry.timer.Stop()
		} else {
			entry = &typingEntry{}
			r.typing[s.UserID] = entry
		}
		entry.username = s.Username
		entry.gen++
		gen := entry.gen
		userID := s.UserID
		entry.timer = time.AfterFunc(r.ch.cfg.TypingWindow, func() {
			r.expireTyping(userID, gen)
		})
	} else if entry, ok := r.typing[s.UserID]; ok {
		entry.timer.Stop()
		delete(r.typing, s.UserID)
	}

	event := TypingEvent{UserID: s.UserID, Username: s.Username, IsTyping: s.IsTyping}
	for _, sub := range r.subs {
		if sub.userID == s.UserID {
			continue
		}
		sub.pushTyping(event)
	}
	r.mu.Unlock()
	metrics.RoomTypingSignals.Inc()
}

// expireTyping синтезирует стоп-сигнал, когда окно неактивности истекло без
// явного false: отправитель мог отключиться молча. Несовпадение поколения
// означает, что запись успели обновить, и сработавший таймер устарел.
func (r *room) expireTyping(userID string, gen uint64) {
	r.mu.Lock()
	entry, ok := r.typing[userID]
	if !ok || entry.gen != gen {
		r.mu.Unlock()
		return
	}
	delete(r.typing, userID)
	event := TypingEvent{UserID: userID, Username: entry.username, IsTyping: false}
	for _, sub := range r.subs {
		if sub.userID == userID {
			continue
		}
		sub.pushTyping(event)
	}
	r.mu.Unlock()
}

// broadcastPresence раздаёт полный presence-набор комнаты. Полные наборы,
// а не дельты: потерянное промежуточное событие не приводит к расхождению.
func (r *room) broadcastPresence(ctx context.Context) {
	entries, err := r.ch.transport.Presence(ctx, r.id)
	if err != nil {
		r.ch.log.Error().Err(err).Str("room", r.id).Msg("room: чтение presence")
		return
	}
	r.mu.Lock()
	for _, sub := range r.subs {
		sub.pushPresence(entries)
	}
	r.mu.Unlock()
}
