package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"chatai-backend/internal/domain"
)

// defaultConversationID подставляется, когда клиент не назвал диалог.
const defaultConversationID = "default"

// maxHistoryTurns ограничивает историю диалога двадцатью обменами. При
// переполнении вытесняется самая старая пара реплик.
const maxHistoryTurns = 40

// Service ведёт диалоги с ассистентом. История живёт в памяти процесса и
// не переживает рестарт: диалог — эфемерный контекст, а не данные.
type Service struct {
	model domain.AssistantModel
	log   zerolog.Logger

	mu            sync.Mutex
	conversations map[string][]domain.ChatTurn
}

// NewService создаёт диалоговый сервис.
func NewService(model domain.AssistantModel, logger zerolog.Logger) *Service {
	return &Service{
		model:         model,
		log:           logger,
		conversations: make(map[string][]domain.ChatTurn),
	}
}

// Send передаёт сообщение ассистенту в контексте диалога и дописывает обмен
// в историю. Возвращает ответ и фактический id диалога. При ошибке модели
// история не изменяется.
func (s *Service) Send(ctx context.Context, conversationID, message string) (string, string, error) {
	if strings.TrimSpace(message) == "" {
		return "", "", domain.ErrEmptyMessage
	}
	if conversationID == "" {
		conversationID = defaultConversationID
	}

	s.mu.Lock()
	history := append([]domain.ChatTurn(nil), s.conversations[conversationID]...)
	s.mu.Unlock()

	reply, err := s.model.Reply(ctx, history, message)
	if err != nil {
		return "", "", fmt.Errorf("chat: ответ модели: %w", err)
	}

	s.mu.Lock()
	turns := append(s.conversations[conversationID],
		domain.ChatTurn{Role: domain.ChatRoleUser, Content: message},
		domain.ChatTurn{Role: domain.ChatRoleAssistant, Content: reply},
	)
	if len(turns) > maxHistoryTurns {
		turns = turns[len(turns)-maxHistoryTurns:]
	}
	s.conversations[conversationID] = turns
	s.mu.Unlock()

	return reply, conversationID, nil
}

// Clear удаляет историю диалога. Отсутствующий диалог — не ошибка.
func (s *Service) Clear(conversationID string) {
	if conversationID == "" {
		conversationID = defaultConversationID
	}
	s.mu.Lock()
	delete(s.conversations, conversationID)
	s.mu.Unlock()
	s.log.Debug().Str("conversation", conversationID).Msg("chat: история очищена")
}
