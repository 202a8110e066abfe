package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"chatai-backend/internal/domain"
)

type fakeModel struct {
	replies   []string
	err       error
	histories [][]domain.ChatTurn
	messages  []string
}

func (f *fakeModel) Reply(ctx context.Context, history []domain.ChatTurn, message string) (string, error) {
	f.histories = append(f.histories, append([]domain.ChatTurn(nil), history...))
	f.messages = append(f.messages, message)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "ок", nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	model := &fakeModel{}
	service := NewService(model, zerolog.Nop())

	for _, message := range []string{"", "   ", "\n\t"} {
		if _, _, err := service.Send(context.Background(), "c1", message); !errors.Is(err, domain.ErrEmptyMessage) {
			t.Fatalf("для %q ожидали ErrEmptyMessage, получили %v", message, err)
		}
	}
	if len(model.messages) != 0 {
		t.Fatal("пустое сообщение не должно доходить до модели")
	}
}

func TestSendDefaultsConversationID(t *testing.T) {
	service := NewService(&fakeModel{}, zerolog.Nop())

	_, convID, err := service.Send(context.Background(), "", "привет")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if convID != "default" {
		t.Fatalf("пустой id диалога должен заменяться на default, получили %q", convID)
	}
}

func TestSendAccumulatesHistoryPerConversation(t *testing.T) {
	model := &fakeModel{replies: []string{"раз", "два", "чужой"}}
	service := NewService(model, zerolog.Nop())

	if _, _, err := service.Send(context.Background(), "c1", "первое"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, _, err := service.Send(context.Background(), "c1", "второе"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, _, err := service.Send(context.Background(), "c2", "соседний диалог"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	// Второй вызов c1 видит первый обмен целиком.
	second := model.histories[1]
	if len(second) != 2 {
		t.Fatalf("ожидали 2 реплики истории, есть %d", len(second))
	}
	if second[0].Role != domain.ChatRoleUser || second[0].Content != "первое" {
		t.Fatalf("первая реплика истории искажена: %+v", second[0])
	}
	if second[1].Role != domain.ChatRoleAssistant || second[1].Content != "раз" {
		t.Fatalf("ответ ассистента не попал в историю: %+v", second[1])
	}

	// Диалоги изолированы: c2 начинает с чистого листа.
	if len(model.histories[2]) != 0 {
		t.Fatalf("чужой диалог не должен видеть историю c1: %+v", model.histories[2])
	}
}

func TestSendEvictsOldestExchangeBeyondTwentyPairs(t *testing.T) {
	model := &fakeModel{}
	service := NewService(model, zerolog.Nop())

	for i := 0; i < 21; i++ {
		if _, _, err := service.Send(context.Background(), "c1", fmt.Sprintf("сообщение %d", i)); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	if _, _, err := service.Send(context.Background(), "c1", "контрольное"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	last := model.histories[len(model.histories)-1]
	if len(last) != maxHistoryTurns {
		t.Fatalf("история должна держаться на %d репликах, есть %d", maxHistoryTurns, len(last))
	}
	if last[0].Content == "сообщение 0" || last[0].Content == "сообщение 1" {
		t.Fatalf("старейшие обмены должны вытесняться, в начале %q", last[0].Content)
	}
	if last[0].Role != domain.ChatRoleUser {
		t.Fatal("вытеснение идёт парами, история должна начинаться с реплики пользователя")
	}
}

func TestSendModelFailureKeepsHistoryIntact(t *testing.T) {
	model := &fakeModel{}
	service := NewService(model, zerolog.Nop())

	if _, _, err := service.Send(context.Background(), "c1", "первое"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	model.err = errors.New("quota exceeded")
	if _, _, err := service.Send(context.Background(), "c1", "провальное"); err == nil {
		t.Fatal("ошибка модели должна подниматься вызывающему")
	}

	model.err = nil
	if _, _, err := service.Send(context.Background(), "c1", "третье"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	last := model.histories[len(model.histories)-1]
	for _, turn := range last {
		if strings.Contains(turn.Content, "провальное") {
			t.Fatal("неудавшийся обмен не должен попадать в историю")
		}
	}
	if len(last) != 2 {
		t.Fatalf("в истории должен остаться один успешный обмен, реплик %d", len(last))
	}
}

func TestClearForgetsConversation(t *testing.T) {
	model := &fakeModel{}
	service := NewService(model, zerolog.Nop())

	if _, _, err := service.Send(context.Background(), "c1", "первое"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	service.Clear("c1")
	service.Clear("ghost") // отсутствующий диалог безопасен

	if _, _, err := service.Send(context.Background(), "c1", "после очистки"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	last := model.histories[len(model.histories)-1]
	if len(last) != 0 {
		t.Fatalf("после Clear история должна быть пустой: %+v", last)
	}
}
