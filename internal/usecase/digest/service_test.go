package digest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"chatai-backend/internal/domain"
)

type stubSettings struct {
	settings map[string]domain.DigestSettings
}

func (s *stubSettings) Get(ctx context.Context, userID string) (domain.DigestSettings, error) {
	cfg, ok := s.settings[userID]
	if !ok {
		return domain.DigestSettings{}, domain.ErrConfigNotFound
	}
	return cfg, nil
}

func (s *stubSettings) Upsert(ctx context.Context, cfg domain.DigestSettings) (domain.DigestSettings, error) {
	return cfg, nil
}

func (s *stubSettings) SavePushToken(ctx context.Context, userID, token string) error { return nil }

func (s *stubSettings) ListEnabledWithToken(ctx context.Context) ([]domain.DigestSettings, error) {
	return nil, nil
}

type stubDigests struct {
	created []domain.Digest
	failing bool
}

func (s *stubDigests) Create(ctx context.Context, d domain.Digest) (domain.Digest, error) {
	if s.failing {
		return domain.Digest{}, errors.New("db down")
	}
	s.created = append(s.created, d)
	return d, nil
}

func (s *stubDigests) GetByID(ctx context.Context, id string) (domain.Digest, error) {
	return domain.Digest{}, domain.ErrDigestNotFound
}

func (s *stubDigests) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Digest, error) {
	return nil, nil
}

func (s *stubDigests) MarkRead(ctx context.Context, id string) (domain.Digest, error) {
	return domain.Digest{}, domain.ErrDigestNotFound
}

func (s *stubDigests) Delete(ctx context.Context, id string) error { return nil }

type stubGenerator struct {
	result   domain.GenerationResult
	err      error
	requests []domain.GenerationRequest
}

func (s *stubGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return domain.GenerationResult{}, s.err
	}
	return s.result, nil
}

type stubSender struct {
	sent []domain.Notification
	err  error
}

func (s *stubSender) Send(ctx context.Context, token string, n domain.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

type okValidator struct{ err error }

func (v okValidator) Validate(token string) error { return v.err }

func newTestService(settings *stubSettings, digests *stubDigests, gen *stubGenerator, sender *stubSender, validator okValidator) *Service {
	return NewService(settings, digests, gen, sender, validator, "", zerolog.Nop())
}

func validSettings() domain.DigestSettings {
	return domain.DigestSettings{
		UserID:          "u1",
		DeliveryTimeUTC: "08:00",
		Topics:          []string{"technology"},
		Enabled:         true,
		PushToken:       "ExponentPushToken[abc]",
	}
}

func TestSendUserDigestHappyPath(t *testing.T) {
	digests := &stubDigests{}
	gen := &stubGenerator{result: domain.GenerationResult{Content: "Berita hari ini", Sources: []domain.Source{{Title: "a", URL: "https://a"}}}}
	sender := &stubSender{}
	service := newTestService(&stubSettings{}, digests, gen, sender, okValidator{})

	saved, err := service.SendUserDigest(context.Background(), validSettings())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(digests.created) != 1 {
		t.Fatalf("ожидали 1 сохранённый дайджест, есть %d", len(digests.created))
	}
	if len(sender.sent) != 1 {
		t.Fatalf("ожидали ровно одно уведомление, есть %d", len(sender.sent))
	}
	n := sender.sent[0]
	if n.Data.Type != domain.NotificationTypeDigest || n.Data.DigestID != saved.ID {
		t.Fatalf("некорректный deep-link: %+v", n.Data)
	}
	if saved.Read {
		t.Fatal("новый дайджест должен быть непрочитанным")
	}
	if len(gen.requests) != 1 || gen.requests[0].Language != "id" {
		t.Fatalf("некорректный запрос генерации: %+v", gen.requests)
	}
}

func TestSendUserDigestGenerationFailure(t *testing.T) {
	digests := &stubDigests{}
	gen := &stubGenerator{err: errors.New("quota exceeded")}
	sender := &stubSender{}
	service := newTestService(&stubSettings{}, digests, gen, sender, okValidator{})

	_, err := service.SendUserDigest(context.Background(), validSettings())
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("ожидали ErrGenerationFailed, получили %v", err)
	}
	if len(digests.created) != 0 {
		t.Fatal("при отказе генерации ничего не должно сохраняться")
	}
	if len(sender.sent) != 0 {
		t.Fatal("при отказе генерации уведомление не отправляется")
	}
}

func TestSendUserDigestNotificationFailureKeepsDigest(t *testing.T) {
	digests := &stubDigests{}
	gen := &stubGenerator{result: domain.GenerationResult{Content: "текст"}}
	sender := &stubSender{err: errors.New("expo down")}
	service := newTestService(&stubSettings{}, digests, gen, sender, okValidator{})

	saved, err := service.SendUserDigest(context.Background(), validSettings())
	if !errors.Is(err, domain.ErrNotificationFailed) {
		t.Fatalf("ожидали ErrNotificationFailed, получили %v", err)
	}
	if len(digests.created) != 1 {
		t.Fatal("дайджест должен остаться сохранённым несмотря на отказ доставки")
	}
	if saved.ID == "" {
		t.Fatal("дайджест должен вернуться вызывающему")
	}
}

func TestSendUserDigestRejectsInvalidToken(t *testing.T) {
	gen := &stubGenerator{result: domain.GenerationResult{Content: "текст"}}
	service := newTestService(&stubSettings{}, &stubDigests{}, gen, &stubSender{}, okValidator{err: errors.New("мусорный токен")})

	cfg := validSettings()
	cfg.PushToken = "not-a-token"
	_, err := service.SendUserDigest(context.Background(), cfg)
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("ожидали ErrInvalidToken, получили %v", err)
	}
	if len(gen.requests) != 0 {
		t.Fatal("генерация не должна запускаться для некорректного токена")
	}
}

func TestTriggerManualUnknownUser(t *testing.T) {
	service := newTestService(&stubSettings{settings: map[string]domain.DigestSettings{}}, &stubDigests{}, &stubGenerator{}, &stubSender{}, okValidator{})

	_, err := service.TriggerManual(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Fatalf("ожидали ErrConfigNotFound, получили %v", err)
	}
}

func TestTriggerManualUsesStoredSettings(t *testing.T) {
	settings := &stubSettings{settings: map[string]domain.DigestSettings{"u1": validSettings()}}
	digests := &stubDigests{}
	gen := &stubGenerator{result: domain.GenerationResult{Content: "текст"}}
	sender := &stubSender{}
	service := newTestService(settings, digests, gen, sender, okValidator{})

	saved, err := service.TriggerManual(context.Background(), "u1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if saved.UserID != "u1" {
		t.Fatalf("дайджест привязан к %s", saved.UserID)
	}
	if len(sender.sent) != 1 {
		t.Fatal("ручной запуск должен отправлять уведомление")
	}
}

func TestTestGenerationWithoutUserDoesNotPersist(t *testing.T) {
	digests := &stubDigests{}
	gen := &stubGenerator{result: domain.GenerationResult{Content: "текст"}}
	sender := &stubSender{}
	service := newTestService(&stubSettings{}, digests, gen, sender, okValidator{})

	result, err := service.TestGeneration(context.Background(), nil, "", "")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if result.ID != "" {
		t.Fatal("без userID дайджест не сохраняется и не получает id")
	}
	if len(digests.created) != 0 {
		t.Fatal("без userID история не должна пополняться")
	}
	if result.Topics[0] != "technology" {
		t.Fatalf("пустые темы должны заменяться дефолтной, получили %v", result.Topics)
	}
}

func TestTestGenerationWithUserPersistsButNeverNotifies(t *testing.T) {
	digests := &stubDigests{}
	gen := &stubGenerator{result: domain.GenerationResult{Content: "текст"}}
	sender := &stubSender{}
	service := newTestService(&stubSettings{}, digests, gen, sender, okValidator{})

	saved, err := service.TestGeneration(context.Background(), []string{"science"}, "покороче", "u1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if saved.ID == "" || len(digests.created) != 1 {
		t.Fatal("с userID результат должен попасть в историю")
	}
	if len(sender.sent) != 0 {
		t.Fatal("тестовая генерация никогда не отправляет уведомления")
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("слово ", 40)
	preview := Preview("первая строка\nвторая\nтретья " + long)
	if strings.Contains(preview, "\n") {
		t.Fatal("переводы строк должны схлопываться")
	}
	if !strings.HasSuffix(preview, "...") {
		t.Fatal("превью должно заканчиваться многоточием")
	}
	if got := len([]rune(preview)); got > previewLength+3 {
		t.Fatalf("превью длиннее лимита: %d", got)
	}
}

func TestNormalizeTopicsCapsAtLimit(t *testing.T) {
	topics := normalizeTopics([]string{"a", "b", "c", "d", "e", "f", "g"})
	if len(topics) != domain.MaxDigestTopics {
		t.Fatalf("ожидали %d тем, получили %d", domain.MaxDigestTopics, len(topics))
	}
}
