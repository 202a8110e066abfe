package domain

import "time"

// Room описывает чат-комнату. Владелец данных — внешний слой хранения,
// ядро комнату не изменяет.
type Room struct {
	ID        string
	Name      string
	Type      string
	CreatedBy string
	CreatedAt time.Time
}

// Message представляет сохранённое сообщение комнаты. Неизменяемо после
// создания; ядро наблюдает вставки через realtime-ленту и не видит историю
// до момента подписки.
type Message struct {
	ID        string
	RoomID    string
	SenderID  string
	Content   string
	CreatedAt time.Time
}

// Profile содержит отображаемые данные пользователя.
type Profile struct {
	ID       string
	Username string
}

// TypingSignal — сигнал набора текста, передаваемый через broadcast-канал
// комнаты. Не персистится.
type TypingSignal struct {
	RoomID   string    `json:"room_id"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	IsTyping bool      `json:"is_typing"`
	At       time.Time `json:"at"`
}

// PresenceEntry описывает подключённого подписчика комнаты. Запись живёт
// ровно столько, сколько живёт подключение.
type PresenceEntry struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Роли реплик диалога с ассистентом.
const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatTurn — одна реплика диалога с ассистентом.
type ChatTurn struct {
	Role    string
	Content string
}

// DigestSettings хранит настройки ежедневного дайджеста пользователя.
// DeliveryTimeUTC задаётся строкой "HH:MM".
type DigestSettings struct {
	UserID          string
	DeliveryTimeUTC string
	Topics          []string
	CustomPrompt    string
	Enabled         bool
	PushToken       string
	Timezone        string
	UpdatedAt       time.Time
}

// MaxDigestTopics ограничивает число тем в настройках.
const MaxDigestTopics = 5

// Topic — элемент справочника доступных тем дайджеста.
type Topic struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	LabelEn string `json:"labelEn"`
}

// AvailableTopics возвращает справочник тем.
func AvailableTopics() []Topic {
	return []Topic{
		{ID: "technology", Label: "Teknologi", LabelEn: "Technology"},
		{ID: "business", Label: "Bisnis", LabelEn: "Business"},
		{ID: "sports", Label: "Olahraga", LabelEn: "Sports"},
		{ID: "entertainment", Label: "Hiburan", LabelEn: "Entertainment"},
		{ID: "science", Label: "Sains", LabelEn: "Science"},
		{ID: "politics", Label: "Politik", LabelEn: "Politics"},
		{ID: "health", Label: "Kesehatan", LabelEn: "Health"},
		{ID: "world", Label: "Dunia", LabelEn: "World"},
	}
}

// Source — ссылка на первоисточник внутри дайджеста.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Digest — сгенерированный дайджест пользователя. После создания неизменяем,
// кроме одностороннего перехода Read false→true.
type Digest struct {
	ID           string
	UserID       string
	Content      string
	Sources      []Source
	Topics       []string
	CustomPrompt string
	CreatedAt    time.Time
	Read         bool
	ReadAt       *time.Time
}

// GenerationRequest описывает запрос к генератору дайджеста.
type GenerationRequest struct {
	Topics       []string
	CustomPrompt string
	Language     string
}

// GenerationResult — ответ генератора.
type GenerationResult struct {
	Content string
	Sources []Source
}

// NotificationData — закрытый вариант полезной нагрузки push-уведомления.
// Сейчас единственный тип — deep-link на дайджест.
type NotificationData struct {
	Type     string `json:"type"`
	DigestID string `json:"digestId"`
}

// NotificationTypeDigest — единственное поддерживаемое значение NotificationData.Type.
const NotificationTypeDigest = "digest"

// Notification — содержимое push-уведомления.
type Notification struct {
	Title string
	Body  string
	Data  NotificationData
}
