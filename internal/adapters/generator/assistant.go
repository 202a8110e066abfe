package generator

import (
	"context"
	"strings"

	"chatai-backend/internal/domain"
	"chatai-backend/internal/infra/genai"
)

// Assistant реализует domain.AssistantModel поверх Gemini API. История
// диалога подклеивается в промпт текстом, тон задаёт системная инструкция.
type Assistant struct {
	client *genai.Client
	model  string
}

var _ domain.AssistantModel = (*Assistant)(nil)

const assistantSystemPrompt = `Kamu adalah AI assistant yang ramah dan helpful. Kamu adalah bagian dari aplikasi ChatAI mobile.
Jawab dengan bahasa yang sama dengan user (jika user berbahasa Indonesia, jawab dalam Bahasa Indonesia).
Berikan jawaban yang informatif, singkat, dan mudah dipahami.
Gunakan emoji secara natural untuk membuat percakapan lebih hidup.`

// NewAssistant создаёт диалоговую модель ассистента.
func NewAssistant(client *genai.Client, model string) *Assistant {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Assistant{client: client, model: model}
}

// Reply запрашивает ответ модели на сообщение в контексте диалога. Пустой
// ответ модели не считается ошибкой: клиент показывает пустую реплику.
func (a *Assistant) Reply(ctx context.Context, history []domain.ChatTurn, message string) (string, error) {
	resp, err := a.client.GenerateContent(ctx, a.model, genai.GenerateContentRequest{
		Contents: []genai.Content{{
			Parts: []genai.Part{{Text: conversationPrompt(history, message)}},
		}},
		SystemInstruction: &genai.Content{
			Parts: []genai.Part{{Text: assistantSystemPrompt}},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// conversationPrompt собирает промпт диалога: реплики истории построчно с
// префиксами User/Assistant и незавершённая реплика ассистента в конце.
// Без истории уходит голое сообщение.
func conversationPrompt(history []domain.ChatTurn, message string) string {
	if len(history) == 0 {
		return message
	}
	var sb strings.Builder
	for _, turn := range history {
		label := "Assistant"
		if turn.Role == domain.ChatRoleUser {
			label = "User"
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(turn.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("User: ")
	sb.WriteString(message)
	sb.WriteString("\nAssistant:")
	return sb.String()
}
