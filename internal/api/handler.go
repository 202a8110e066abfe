package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"chatai-backend/internal/domain"
	httpinfra "chatai-backend/internal/infra/http"
)

// DigestRunner — часть конвейера дайджеста, доступная из HTTP API.
type DigestRunner interface {
	TriggerManual(ctx context.Context, userID string) (domain.Digest, error)
	TestGeneration(ctx context.Context, topics []string, customPrompt, userID string) (domain.Digest, error)
}

// ChatAssistant — диалоговый сервис ассистента, доступный из HTTP API.
type ChatAssistant interface {
	Send(ctx context.Context, conversationID, message string) (reply, resolvedID string, err error)
	Clear(conversationID string)
}

// Handler обслуживает REST API ассистента, настроек и истории дайджестов.
type Handler struct {
	settings  domain.SettingsRepo
	digests   domain.DigestRepo
	validator domain.TokenValidator
	runner    DigestRunner
	chat      ChatAssistant
	log       zerolog.Logger
}

// NewHandler создаёт обработчик API.
func NewHandler(settings domain.SettingsRepo, digests domain.DigestRepo, validator domain.TokenValidator, runner DigestRunner, chat ChatAssistant, logger zerolog.Logger) *Handler {
	return &Handler{
		settings:  settings,
		digests:   digests,
		validator: validator,
		runner:    runner,
		chat:      chat,
		log:       logger,
	}
}

// Routes монтирует маршруты API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/api/health", h.health)
	r.Post("/api/chat", h.chatMessage)
	r.Delete("/api/chat/{conversationID}", h.clearChat)
	r.Get("/api/digest/topics", h.topics)
	r.Post("/api/digest/settings", h.saveSettings)
	r.Get("/api/digest/settings/{userID}", h.getSettings)
	r.Post("/api/push/register", h.registerPushToken)
	r.Get("/api/digest/history/{userID}", h.history)
	r.Get("/api/digest/{digestID}", h.getDigest)
	r.Delete("/api/digest/{digestID}", h.deleteDigest)
	r.Post("/api/test-digest", h.testDigest)
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) topics(w http.ResponseWriter, r *http.Request) {
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"topics":  domain.AvailableTopics(),
	})
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

func (h *Handler) chatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reply, conversationID, err := h.chat.Send(r.Context(), req.ConversationID, req.Message)
	if errors.Is(err, domain.ErrEmptyMessage) {
		httpinfra.WriteError(w, http.StatusBadRequest, "Message is required")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("conversation", req.ConversationID).Msg("api: ответ ассистента")
		httpinfra.WriteError(w, http.StatusInternalServerError, "Failed to get AI response. Please try again.")
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"response":       reply,
		"conversationId": conversationID,
	})
}

func (h *Handler) clearChat(w http.ResponseWriter, r *http.Request) {
	h.chat.Clear(chi.URLParam(r, "conversationID"))
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Conversation history cleared"})
}

type settingsRequest struct {
	UserID       string   `json:"userId"`
	DigestTime   string   `json:"digestTime"`
	Topics       []string `json:"topics"`
	CustomPrompt string   `json:"customPrompt"`
	Enabled      *bool    `json:"enabled"`
	Timezone     string   `json:"timezone"`
}

type settingsView struct {
	UserID       string   `json:"userId"`
	DigestTime   string   `json:"digestTime"`
	Topics       []string `json:"topics"`
	CustomPrompt string   `json:"customPrompt"`
	Enabled      bool     `json:"enabled"`
	PushToken    string   `json:"pushToken,omitempty"`
	Timezone     string   `json:"timezone"`
	UpdatedAt    string   `json:"updatedAt"`
}

func settingsToView(cfg domain.DigestSettings) settingsView {
	return settingsView{
		UserID:       cfg.UserID,
		DigestTime:   cfg.DeliveryTimeUTC,
		Topics:       cfg.Topics,
		CustomPrompt: cfg.CustomPrompt,
		Enabled:      cfg.Enabled,
		PushToken:    cfg.PushToken,
		Timezone:     cfg.Timezone,
		UpdatedAt:    cfg.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) saveSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		httpinfra.WriteError(w, http.StatusBadRequest, "userId is required")
		return
	}
	digestTime := req.DigestTime
	if digestTime == "" {
		digestTime = "07:00"
	}
	if _, err := time.Parse("15:04", digestTime); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "digestTime must be HH:MM")
		return
	}
	topics := req.Topics
	if len(topics) == 0 {
		topics = []string{"technology"}
	}
	if len(topics) > domain.MaxDigestTopics {
		httpinfra.WriteError(w, http.StatusBadRequest, "too many topics, max is "+strconv.Itoa(domain.MaxDigestTopics))
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	timezone := req.Timezone
	if timezone == "" {
		timezone = "Asia/Jakarta"
	}

	saved, err := h.settings.Upsert(r.Context(), domain.DigestSettings{
		UserID:          req.UserID,
		DeliveryTimeUTC: digestTime,
		Topics:          topics,
		CustomPrompt:    req.CustomPrompt,
		Enabled:         enabled,
		Timezone:        timezone,
	})
	if err != nil {
		h.log.Error().Err(err).Str("user", req.UserID).Msg("api: сохранение настроек")
		httpinfra.WriteError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "settings": settingsToView(saved)})
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	cfg, err := h.settings.Get(r.Context(), userID)
	if errors.Is(err, domain.ErrConfigNotFound) {
		httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"settings": nil,
			"message":  "No settings found for this user",
		})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("user", userID).Msg("api: выборка настроек")
		httpinfra.WriteError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "settings": settingsToView(cfg)})
}

type pushRegisterRequest struct {
	UserID    string `json:"userId"`
	PushToken string `json:"pushToken"`
}

func (h *Handler) registerPushToken(w http.ResponseWriter, r *http.Request) {
	var req pushRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.PushToken == "" {
		httpinfra.WriteError(w, http.StatusBadRequest, "userId and pushToken are required")
		return
	}
	if err := h.validator.Validate(req.PushToken); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "Invalid Expo push token format")
		return
	}
	if err := h.settings.SavePushToken(r.Context(), req.UserID, req.PushToken); err != nil {
		h.log.Error().Err(err).Str("user", req.UserID).Msg("api: регистрация push-токена")
		httpinfra.WriteError(w, http.StatusInternalServerError, "failed to register push token")
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Push token registered successfully"})
}

type digestView struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Content      string          `json:"content"`
	Sources      []domain.Source `json:"sources"`
	Topics       []string        `json:"topics"`
	CustomPrompt string          `json:"customPrompt,omitempty"`
	CreatedAt    string          `json:"createdAt"`
	Read         bool            `json:"read"`
	ReadAt       *string         `json:"readAt"`
}

func digestToView(d domain.Digest) digestView {
	view := digestView{
		ID:           d.ID,
		UserID:       d.UserID,
		Content:      d.Content,
		Sources:      d.Sources,
		Topics:       d.Topics,
		CustomPrompt: d.CustomPrompt,
		CreatedAt:    d.CreatedAt.UTC().Format(time.RFC3339),
		Read:         d.Read,
	}
	if view.Sources == nil {
		view.Sources = []domain.Source{}
	}
	if d.ReadAt != nil {
		readAt := d.ReadAt.UTC().Format(time.RFC3339)
		view.ReadAt = &readAt
	}
	return view
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	digests, err := h.digests.ListByUser(r.Context(), userID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("user", userID).Msg("api: выборка истории")
		httpinfra.WriteError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	views := make([]digestView, 0, len(digests))
	for _, d := range digests {
		views = append(views, digestToView(d))
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "digests": views})
}

// getDigest возвращает дайджест и помечает его прочитанным: открытие экрана
// деталей и есть факт прочтения.
func (h *Handler) getDigest(w http.ResponseWriter, r *http.Request) {
	digestID := chi.URLParam(r, "digestID")
	digest, err := h.digests.MarkRead(r.Context(), digestID)
	if errors.Is(err, domain.ErrDigestNotFound) {
		httpinfra.WriteError(w, http.StatusNotFound, "Digest not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("digest", digestID).Msg("api: выборка дайджеста")
		httpinfra.WriteError(w, http.StatusInternalServerError, "failed to load digest")
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "digest": digestToView(digest)})
}

func (h *Handler) deleteDigest(w http.ResponseWriter, r *http.Request) {
	digestID := chi.URLParam(r, "digestID")
	err := h.digests.Delete(r.Context(), digestID)
	if errors.Is(err, domain.ErrDigestNotFound) {
		httpinfra.WriteError(w, http.StatusNotFound, "Digest not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("digest", digestID).Msg("api: удаление дайджеста")
		httpinfra.WriteError(w, http.StatusInternalServerError, "failed to delete digest")
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Digest deleted"})
}

type testDigestRequest struct {
	Topic            string   `json:"topic"`
	Topics           []string `json:"topics"`
	CustomPrompt     string   `json:"customPrompt"`
	UserID           string   `json:"userId"`
	SendNotification bool     `json:"sendNotification"`
}

func (h *Handler) testDigest(w http.ResponseWriter, r *http.Request) {
	var req testDigestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Полный конвейер с уведомлением запускается только явно.
	if req.SendNotification && req.UserID != "" {
		digest, err := h.runner.TriggerManual(r.Context(), req.UserID)
		if errors.Is(err, domain.ErrConfigNotFound) {
			httpinfra.WriteError(w, http.StatusNotFound, "no digest settings for user")
			return
		}
		if err != nil {
			h.log.Error().Err(err).Str("user", req.UserID).Msg("api: ручной запуск дайджеста")
			httpinfra.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "digest": digestToView(digest)})
		return
	}

	topics := req.Topics
	if len(topics) == 0 && req.Topic != "" {
		topics = []string{req.Topic}
	}
	digest, err := h.runner.TestGeneration(r.Context(), topics, req.CustomPrompt, req.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("api: тестовая генерация")
		httpinfra.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "digest": digestToView(digest)})
}
