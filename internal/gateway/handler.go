package gateway

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatai-backend/internal/domain"
	"chatai-backend/internal/usecase/room"
)

// historyLimit — сколько последних сообщений комнаты отдаётся клиенту при
// подключении для сверки после разрыва.
const historyLimit = 50

// Handler поднимает WebSocket-подключения клиентов и привязывает их к
// подпискам комнат.
type Handler struct {
	channel  *room.Channel
	messages domain.MessageRepo
	profiles domain.ProfileRepo
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHandler создаёт WebSocket-обработчик.
func NewHandler(channel *room.Channel, messages domain.MessageRepo, profiles domain.ProfileRepo, logger zerolog.Logger) *Handler {
	return &Handler{
		channel:  channel,
		messages: messages,
		profiles: profiles,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Авторизация запросов — забота внешнего прокси.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger,
	}
}

// Routes монтирует маршруты шлюза.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/ws/rooms/{roomID}", h.ServeRoom)
	return r
}

// ServeRoom обслуживает подключение к комнате. Подписка живёт ровно столько,
// сколько живёт WebSocket.
func (h *Handler) ServeRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	userID := r.URL.Query().Get("user_id")
	username := r.URL.Query().Get("username")
	if roomID == "" || userID == "" {
		http.Error(w, "room_id и user_id обязательны", http.StatusBadRequest)
		return
	}
	if username == "" {
		if profile, err := h.profiles.GetProfile(r.Context(), userID); err == nil {
			username = profile.Username
		} else {
			username = userID
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Msg("gateway: upgrade")
		return
	}

	sub, err := h.channel.Subscribe(r.Context(), roomID, userID, username)
	if err != nil {
		h.log.Error().Err(err).Str("room", roomID).Str("user", userID).Msg("gateway: подписка на комнату")
		code := websocket.CloseInternalServerErr
		if errors.Is(err, domain.ErrChannelUnavailable) {
			code = websocket.CloseTryAgainLater
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, "subscribe failed"))
		_ = conn.Close()
		return
	}

	client := newClient(conn, sub, h.log)

	// История до запуска насосов: клиент сверяет хвост ленты, пропущенный за
	// время разрыва, до прихода первого живого события.
	if recent, err := h.messages.ListRecent(r.Context(), roomID, historyLimit); err != nil {
		h.log.Error().Err(err).Str("room", roomID).Msg("gateway: выборка истории")
	} else {
		client.writeFrame(historyFrame(recent))
	}

	client.run()
}
