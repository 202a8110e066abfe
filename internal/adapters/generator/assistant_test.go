package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatai-backend/internal/domain"
	"chatai-backend/internal/infra/genai"
)

func TestConversationPromptWithoutHistoryIsBareMessage(t *testing.T) {
	if got := conversationPrompt(nil, "halo"); got != "halo" {
		t.Fatalf("без истории уходит голое сообщение, получили %q", got)
	}
}

func TestConversationPromptInterleavesRoles(t *testing.T) {
	history := []domain.ChatTurn{
		{Role: domain.ChatRoleUser, Content: "siapa kamu?"},
		{Role: domain.ChatRoleAssistant, Content: "Aku asisten ChatAI."},
	}
	got := conversationPrompt(history, "terima kasih")
	want := "User: siapa kamu?\nAssistant: Aku asisten ChatAI.\nUser: terima kasih\nAssistant:"
	if got != want {
		t.Fatalf("промпт диалога собран неверно:\n%q\nожидали:\n%q", got, want)
	}
}

func TestReplySendsSystemInstruction(t *testing.T) {
	var captured genai.GenerateContentRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("не удалось разобрать тело запроса: %v", err)
		}
		json.NewEncoder(w).Encode(genai.GenerateContentResponse{
			Candidates: []genai.Candidate{{Content: genai.Content{Parts: []genai.Part{{Text: "Halo! 👋"}}}}},
		})
	}))
	defer server.Close()

	assistant := NewAssistant(genai.NewClient("key", server.URL, time.Second), "")
	reply, err := assistant.Reply(context.Background(), nil, "halo")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if reply != "Halo! 👋" {
		t.Fatalf("ответ модели искажён: %q", reply)
	}
	if captured.SystemInstruction == nil || len(captured.SystemInstruction.Parts) == 0 {
		t.Fatal("системная инструкция должна уходить в запросе")
	}
	if !strings.Contains(captured.SystemInstruction.Parts[0].Text, "aplikasi ChatAI mobile") {
		t.Fatalf("некорректная системная инструкция: %q", captured.SystemInstruction.Parts[0].Text)
	}
	if len(captured.Tools) != 0 {
		t.Fatal("диалог ассистента не использует веб-граундинг")
	}
}
