package domain

import "context"

// SettingsRepo управляет настройками дайджеста.
type SettingsRepo interface {
	Get(ctx context.Context, userID string) (DigestSettings, error)
	Upsert(ctx context.Context, settings DigestSettings) (DigestSettings, error)
	SavePushToken(ctx context.Context, userID, token string) error
	ListEnabledWithToken(ctx context.Context) ([]DigestSettings, error)
}

// DigestRepo сохраняет и возвращает дайджесты. История отдаётся от новых
// к старым.
type DigestRepo interface {
	Create(ctx context.Context, digest Digest) (Digest, error)
	GetByID(ctx context.Context, id string) (Digest, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Digest, error)
	MarkRead(ctx context.Context, id string) (Digest, error)
	Delete(ctx context.Context, id string) error
}

// ProfileRepo выполняет точечные выборки отображаемых имён.
type ProfileRepo interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
}

// MessageRepo читает сохранённую историю комнаты. Используется клиентом
// для сверки после разрыва соединения; ядро дыры в ленте не заполняет.
type MessageRepo interface {
	ListRecent(ctx context.Context, roomID string, limit int) ([]Message, error)
}

// DigestGenerator — внешний генератор контента. Вызов может быть долгим
// и завершаться ошибкой; планировщик делает одну попытку на пользователя
// за тик.
type DigestGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}

// AssistantModel генерирует ответ ассистента с учётом предыдущих реплик
// диалога. Вызов может быть долгим; одна попытка на сообщение.
type AssistantModel interface {
	Reply(ctx context.Context, history []ChatTurn, message string) (string, error)
}

// NotificationSender доставляет push-уведомление. Одна попытка на вызов.
type NotificationSender interface {
	Send(ctx context.Context, token string, n Notification) error
}

// TokenValidator проверяет формат адреса доставки до сетевого вызова.
type TokenValidator interface {
	Validate(token string) error
}

// MessageFeed — живая лента вставок сообщений одной комнаты.
type MessageFeed interface {
	Messages() <-chan Message
	Errors() <-chan error
	Close() error
}

// TypingFeed — лента broadcast-сигналов набора текста одной комнаты.
type TypingFeed interface {
	Signals() <-chan TypingSignal
	Errors() <-chan error
	Close() error
}

// Realtime — низкоуровневый realtime-примитив хранилища: лента вставок,
// broadcast и presence с track/untrack. RoomChannel строится поверх него.
type Realtime interface {
	StreamInserts(ctx context.Context, roomID string) (MessageFeed, error)
	StreamTyping(ctx context.Context, roomID string) (TypingFeed, error)
	PublishTyping(ctx context.Context, roomID string, signal TypingSignal) error
	Track(ctx context.Context, roomID string, entry PresenceEntry) error
	Untrack(ctx context.Context, roomID, userID string) error
	Presence(ctx context.Context, roomID string) ([]PresenceEntry, error)
}
