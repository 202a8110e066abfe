package domain

import "errors"

// ErrChannelUnavailable возвращается, когда realtime-транспорт не удалось
// установить после ограниченного числа попыток. Ошибка повторяемая.
var ErrChannelUnavailable = errors.New("realtime канал недоступен")

// ErrConfigNotFound возвращается, если у пользователя нет настроек дайджеста.
var ErrConfigNotFound = errors.New("настройки дайджеста не найдены")

// ErrGenerationFailed возвращается при отказе генератора. Для планировщика
// ошибка не фатальна и изолируется в рамках одного пользователя.
var ErrGenerationFailed = errors.New("генерация дайджеста не удалась")

// ErrNotificationFailed возвращается при неудачной доставке уведомления.
// Дайджест при этом остаётся сохранённым.
var ErrNotificationFailed = errors.New("отправка уведомления не удалась")

// ErrInvalidToken возвращается для некорректного push-токена до обращения
// к внешнему сервису.
var ErrInvalidToken = errors.New("некорректный push-токен")

// ErrEmptyMessage возвращается при обращении к ассистенту без текста.
var ErrEmptyMessage = errors.New("пустое сообщение")

// ErrDigestNotFound возвращается, если дайджест отсутствует в истории.
var ErrDigestNotFound = errors.New("дайджест не найден")
