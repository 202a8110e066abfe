package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatai-backend/internal/domain"
	"chatai-backend/internal/infra/metrics"
)

const defaultPushURL = "https://exp.host/--/api/v2/push/send"

// Expo отправляет push-уведомления через Expo Push API и проверяет формат
// токенов до сетевого вызова.
type Expo struct {
	http    *http.Client
	pushURL string
}

var (
	_ domain.NotificationSender = (*Expo)(nil)
	_ domain.TokenValidator     = (*Expo)(nil)
)

// NewExpo создаёт клиента Expo Push API.
func NewExpo(pushURL string, timeout time.Duration) *Expo {
	if pushURL == "" {
		pushURL = defaultPushURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Expo{
		http:    &http.Client{Timeout: timeout},
		pushURL: pushURL,
	}
}

// Validate реализует domain.TokenValidator. Принимаются только токены вида
// ExponentPushToken[...] либо ExpoPushToken[...].
func (e *Expo) Validate(token string) error {
	if isExpoPushToken(token) {
		return nil
	}
	return fmt.Errorf("%w: %q", domain.ErrInvalidToken, token)
}

func isExpoPushToken(token string) bool {
	if !strings.HasSuffix(token, "]") {
		return false
	}
	return strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")
}

type pushMessage struct {
	To        string                  `json:"to"`
	Sound     string                  `json:"sound"`
	Title     string                  `json:"title"`
	Body      string                  `json:"body"`
	Data      domain.NotificationData `json:"data"`
	Priority  string                  `json:"priority"`
	ChannelID string                  `json:"channelId"`
}

type pushTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type pushResponse struct {
	Data []pushTicket `json:"data"`
}

// Send реализует domain.NotificationSender. Одна попытка; повторы остаются
// за вызывающей стороной.
func (e *Expo) Send(ctx context.Context, token string, n domain.Notification) error {
	if err := e.Validate(token); err != nil {
		return err
	}

	body, err := json.Marshal([]pushMessage{{
		To:        token,
		Sound:     "default",
		Title:     n.Title,
		Body:      n.Body,
		Data:      n.Data,
		Priority:  "high",
		ChannelID: "digest",
	}})
	if err != nil {
		return fmt.Errorf("expo: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.pushURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("expo: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("expo", "push_send", "exp.host", start, err)
		return fmt.Errorf("expo: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("expo", "push_send", "exp.host", start, err)
		return fmt.Errorf("expo: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		err = fmt.Errorf("expo: unexpected status %d", resp.StatusCode)
		metrics.ObserveNetworkRequest("expo", "push_send", "exp.host", start, err)
		return err
	}

	var parsed pushResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		metrics.ObserveNetworkRequest("expo", "push_send", "exp.host", start, err)
		return fmt.Errorf("expo: decode response: %w", err)
	}
	if len(parsed.Data) == 0 {
		err = fmt.Errorf("expo: пустой ответ без тикетов")
		metrics.ObserveNetworkRequest("expo", "push_send", "exp.host", start, err)
		return err
	}
	if ticket := parsed.Data[0]; ticket.Status == "error" {
		err = fmt.Errorf("expo: %s", ticket.Message)
		if ticket.Details.Error != "" {
			err = fmt.Errorf("expo: %s (%s)", ticket.Message, ticket.Details.Error)
		}
		metrics.ObserveNetworkRequest("expo", "push_send", "exp.host", start, err)
		return err
	}

	metrics.ObserveNetworkRequest("expo", "push_send", "exp.host", start, nil)
	return nil
}
