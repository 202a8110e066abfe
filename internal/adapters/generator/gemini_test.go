package generator

import (
	"strings"
	"testing"

	"chatai-backend/internal/domain"
)

func TestBuildPromptUsesIndonesianLabels(t *testing.T) {
	prompt := buildPrompt(domain.GenerationRequest{
		Topics:   []string{"technology", "sports", "unknown-topic"},
		Language: "id",
	})
	if !strings.Contains(prompt, "Teknologi, Olahraga, unknown-topic") {
		t.Fatalf("темы не переведены в метки: %s", prompt)
	}
	if !strings.Contains(prompt, "Tulis dalam Bahasa Indonesia") {
		t.Fatal("ожидали индонезийскую языковую инструкцию")
	}
}

func TestBuildPromptEnglishFallback(t *testing.T) {
	prompt := buildPrompt(domain.GenerationRequest{Topics: []string{"world"}, Language: "en"})
	if !strings.Contains(prompt, "Write in English.") {
		t.Fatal("ожидали английскую языковую инструкцию")
	}
}

func TestBuildPromptIncludesCustomInstruction(t *testing.T) {
	prompt := buildPrompt(domain.GenerationRequest{
		Topics:       []string{"business"},
		CustomPrompt: "  fokus pada startup  ",
	})
	if !strings.Contains(prompt, "INSTRUKSI KHUSUS DARI USER: fokus pada startup") {
		t.Fatal("пользовательская инструкция должна попасть в промпт без краевых пробелов")
	}
	if empty := buildPrompt(domain.GenerationRequest{Topics: []string{"business"}}); strings.Contains(empty, "INSTRUKSI KHUSUS") {
		t.Fatal("без customPrompt секция инструкции не добавляется")
	}
}
