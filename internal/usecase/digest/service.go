package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatai-backend/internal/domain"
	"chatai-backend/internal/infra/metrics"
)

const (
	previewLength   = 100
	defaultLanguage = "id"
)

var defaultTopics = []string{"technology"}

// Service реализует конвейер дайджеста: генерация → сохранение →
// уведомление. Сохранение идёт строго до отправки, поэтому неудачная
// доставка не теряет дайджест.
type Service struct {
	settings  domain.SettingsRepo
	digests   domain.DigestRepo
	generator domain.DigestGenerator
	sender    domain.NotificationSender
	validator domain.TokenValidator
	language  string
	log       zerolog.Logger
}

// NewService создаёт конвейер дайджестов.
func NewService(settings domain.SettingsRepo, digests domain.DigestRepo, generator domain.DigestGenerator, sender domain.NotificationSender, validator domain.TokenValidator, language string, logger zerolog.Logger) *Service {
	if language == "" {
		language = defaultLanguage
	}
	return &Service{
		settings:  settings,
		digests:   digests,
		generator: generator,
		sender:    sender,
		validator: validator,
		language:  language,
		log:       logger,
	}
}

// SendUserDigest выполняет полный цикл для одного пользователя. При отказе
// генерации ничего не сохраняется; при отказе доставки дайджест остаётся
// в истории, а вызывающему возвращается ErrNotificationFailed вместе с ним.
func (s *Service) SendUserDigest(ctx context.Context, cfg domain.DigestSettings) (domain.Digest, error) {
	if cfg.PushToken == "" {
		return domain.Digest{}, fmt.Errorf("%w: у пользователя %s нет push-токена", domain.ErrInvalidToken, cfg.UserID)
	}
	if err := s.validator.Validate(cfg.PushToken); err != nil {
		return domain.Digest{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	saved, err := s.generateAndPersist(ctx, cfg.UserID, cfg.Topics, cfg.CustomPrompt)
	if err != nil {
		return domain.Digest{}, err
	}

	notification := domain.Notification{
		Title: notificationTitle(saved.Topics),
		Body:  Preview(saved.Content),
		Data:  domain.NotificationData{Type: domain.NotificationTypeDigest, DigestID: saved.ID},
	}
	if err := s.sender.Send(ctx, cfg.PushToken, notification); err != nil {
		metrics.PushSendErrors.Inc()
		s.log.Error().Err(err).Str("user", cfg.UserID).Str("digest", saved.ID).Msg("digest: доставка уведомления")
		return saved, fmt.Errorf("%w: %v", domain.ErrNotificationFailed, err)
	}
	return saved, nil
}

// TriggerManual запускает конвейер для пользователя в обход расписания.
func (s *Service) TriggerManual(ctx context.Context, userID string) (domain.Digest, error) {
	cfg, err := s.settings.Get(ctx, userID)
	if err != nil {
		return domain.Digest{}, err
	}
	return s.SendUserDigest(ctx, cfg)
}

// TestGeneration выполняет только генерацию, без проверки расписания и без
// уведомления. При непустом userID результат дополнительно сохраняется в
// историю — удобно для предпросмотра.
func (s *Service) TestGeneration(ctx context.Context, topics []string, customPrompt, userID string) (domain.Digest, error) {
	if userID != "" {
		return s.generateAndPersist(ctx, userID, topics, customPrompt)
	}

	result, err := s.generate(ctx, topics, customPrompt)
	if err != nil {
		return domain.Digest{}, err
	}
	return domain.Digest{
		Content:      result.Content,
		Sources:      result.Sources,
		Topics:       normalizeTopics(topics),
		CustomPrompt: customPrompt,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (s *Service) generate(ctx context.Context, topics []string, customPrompt string) (domain.GenerationResult, error) {
	req := domain.GenerationRequest{
		Topics:       normalizeTopics(topics),
		CustomPrompt: customPrompt,
		Language:     s.language,
	}
	start := time.Now()
	result, err := s.generator.Generate(ctx, req)
	metrics.DigestGenerationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	return result, nil
}

func (s *Service) generateAndPersist(ctx context.Context, userID string, topics []string, customPrompt string) (domain.Digest, error) {
	result, err := s.generate(ctx, topics, customPrompt)
	if err != nil {
		return domain.Digest{}, err
	}

	digest := domain.Digest{
		ID:           uuid.NewString(),
		UserID:       userID,
		Content:      result.Content,
		Sources:      result.Sources,
		Topics:       normalizeTopics(topics),
		CustomPrompt: customPrompt,
		CreatedAt:    time.Now().UTC(),
	}
	saved, err := s.digests.Create(ctx, digest)
	if err != nil {
		return domain.Digest{}, fmt.Errorf("сохранение дайджеста: %w", err)
	}
	metrics.DigestsGenerated.Inc()
	return saved, nil
}

func normalizeTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultTopics...)
	}
	if len(out) > domain.MaxDigestTopics {
		out = out[:domain.MaxDigestTopics]
	}
	return out
}

// Preview строит тело уведомления: первые ~100 символов контента со
// схлопнутыми переводами строк и многоточием.
func Preview(content string) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	runes := []rune(collapsed)
	if len(runes) > previewLength {
		collapsed = string(runes[:previewLength])
	}
	return strings.TrimSpace(collapsed) + "..."
}

var pushTopicLabels = map[string]string{
	"technology":    "💻 Tech",
	"business":      "💼 Bisnis",
	"sports":        "⚽ Olahraga",
	"entertainment": "🎬 Hiburan",
	"science":       "🔬 Sains",
	"politics":      "🏛️ Politik",
	"health":        "🏥 Kesehatan",
	"world":         "🌍 Dunia",
}

func notificationTitle(topics []string) string {
	labels := make([]string, 0, len(topics))
	for _, t := range topics {
		if label, ok := pushTopicLabels[t]; ok {
			labels = append(labels, label)
		} else {
			labels = append(labels, t)
		}
	}
	joined := strings.Join(labels, " • ")
	if joined == "" {
		joined = "Berita Hari Ini"
	}
	return "📰 Daily Digest: " + joined
}
