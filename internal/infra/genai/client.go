package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatai-backend/internal/infra/metrics"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client выполняет generateContent запросы к Gemini API.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient создаёт клиента Gemini.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout + 5*time.Second}
	return &Client{http: httpClient, baseURL: baseURL, apiKey: apiKey}
}

// GenerateContentRequest описывает тело запроса.
type GenerateContentRequest struct {
	Contents          []Content `json:"contents"`
	SystemInstruction *Content  `json:"systemInstruction,omitempty"`
	Tools             []Tool    `json:"tools,omitempty"`
}

// Content представляет реплику диалога.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part — фрагмент содержимого.
type Part struct {
	Text string `json:"text,omitempty"`
}

// Tool включает инструмент модели. Пустой googleSearch активирует
// веб-граундинг.
type Tool struct {
	GoogleSearch *GoogleSearch `json:"googleSearch,omitempty"`
}

// GoogleSearch — маркерный объект без полей.
type GoogleSearch struct{}

// GenerateContentResponse описывает ответ модели.
type GenerateContentResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// Candidate содержит сгенерированный текст и метаданные граундинга.
type Candidate struct {
	Content           Content            `json:"content"`
	GroundingMetadata *GroundingMetadata `json:"groundingMetadata,omitempty"`
}

// GroundingMetadata перечисляет веб-источники, на которые опиралась модель.
type GroundingMetadata struct {
	GroundingChunks []GroundingChunk `json:"groundingChunks"`
}

// GroundingChunk — один источник.
type GroundingChunk struct {
	Web *GroundingWeb `json:"web,omitempty"`
}

// GroundingWeb содержит адрес и заголовок страницы.
type GroundingWeb struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Text склеивает текстовые части первого кандидата.
func (r GenerateContentResponse) Text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// GenerateContent вызывает /models/{model}:generateContent.
func (c *Client) GenerateContent(ctx context.Context, model string, req GenerateContentRequest) (GenerateContentResponse, error) {
	if c.apiKey == "" {
		return GenerateContentResponse{}, fmt.Errorf("genai: api key is empty")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return GenerateContentResponse{}, fmt.Errorf("genai: marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return GenerateContentResponse{}, fmt.Errorf("genai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ObserveNetworkRequest("genai", "generate_content", model, start, err)
		return GenerateContentResponse{}, fmt.Errorf("genai: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("genai", "generate_content", model, start, err)
		return GenerateContentResponse{}, fmt.Errorf("genai: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiErrorResponse
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			err = fmt.Errorf("genai: %s", apiErr.Error.Message)
		} else {
			err = fmt.Errorf("genai: unexpected status %d", resp.StatusCode)
		}
		metrics.ObserveNetworkRequest("genai", "generate_content", model, start, err)
		return GenerateContentResponse{}, err
	}
	var generated GenerateContentResponse
	if err := json.Unmarshal(respBody, &generated); err != nil {
		metrics.ObserveNetworkRequest("genai", "generate_content", model, start, err)
		return GenerateContentResponse{}, fmt.Errorf("genai: decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("genai", "generate_content", model, start, nil)
	return generated, nil
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
