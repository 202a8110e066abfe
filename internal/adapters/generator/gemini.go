package generator

import (
	"context"
	"fmt"
	"strings"

	"chatai-backend/internal/domain"
	"chatai-backend/internal/infra/genai"
)

// Gemini реализует domain.DigestGenerator поверх Gemini API с включённым
// веб-граундингом: модель сама ищет свежие новости и возвращает источники.
type Gemini struct {
	client *genai.Client
	model  string
}

var _ domain.DigestGenerator = (*Gemini)(nil)

// NewGemini создаёт генератор дайджестов.
func NewGemini(client *genai.Client, model string) *Gemini {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Gemini{client: client, model: model}
}

// Generate запрашивает у модели дайджест по темам пользователя. Одна
// попытка, без ретраев: повтор решает вызывающая сторона.
func (g *Gemini) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	resp, err := g.client.GenerateContent(ctx, g.model, genai.GenerateContentRequest{
		Contents: []genai.Content{{
			Parts: []genai.Part{{Text: buildPrompt(req)}},
		}},
		Tools: []genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return domain.GenerationResult{}, err
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return domain.GenerationResult{}, fmt.Errorf("generator: модель вернула пустой ответ")
	}

	var sources []domain.Source
	if len(resp.Candidates) > 0 && resp.Candidates[0].GroundingMetadata != nil {
		for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
			if chunk.Web == nil {
				continue
			}
			title := chunk.Web.Title
			if title == "" {
				title = "Unknown Source"
			}
			sources = append(sources, domain.Source{Title: title, URL: chunk.Web.URI})
		}
	}

	return domain.GenerationResult{Content: content, Sources: sources}, nil
}

func topicLabels(topics []string) string {
	known := make(map[string]string)
	for _, t := range domain.AvailableTopics() {
		known[t.ID] = t.Label
	}
	labels := make([]string, 0, len(topics))
	for _, id := range topics {
		if label, ok := known[id]; ok {
			labels = append(labels, label)
		} else {
			labels = append(labels, id)
		}
	}
	return strings.Join(labels, ", ")
}

func buildPrompt(req domain.GenerationRequest) string {
	languageInstruction := "Write in English."
	if req.Language == "id" || req.Language == "" {
		languageInstruction = "Tulis dalam Bahasa Indonesia yang baik dan benar."
	}

	custom := ""
	if strings.TrimSpace(req.CustomPrompt) != "" {
		custom = "INSTRUKSI KHUSUS DARI USER: " + strings.TrimSpace(req.CustomPrompt) + "\n"
	}

	return fmt.Sprintf(`Kamu adalah AI news curator yang bertugas membuat ringkasan berita harian.

TUGAS:
Cari dan rangkum berita terbaru hari ini tentang: %s

%s
FORMAT OUTPUT:
1. Mulai dengan greeting singkat dan tanggal hari ini
2. Untuk setiap topik, berikan 2-3 berita utama dengan:
   - Judul berita
   - Ringkasan singkat (2-3 kalimat)
   - Mengapa ini penting
3. Akhiri dengan insight atau kesimpulan singkat

PERATURAN:
- %s
- Fokus pada berita dari 24 jam terakhir
- Pastikan informasi akurat dan dari sumber terpercaya
- Gunakan emoji untuk membuat lebih menarik
- Jaga agar ringkasan tetap informatif tapi mudah dibaca
- Total panjang sekitar 500-800 kata
`, topicLabels(req.Topics), custom, languageInstruction)
}
