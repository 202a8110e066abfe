package gateway

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatai-backend/internal/domain"
	"chatai-backend/internal/usecase/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// serverFrame — событие комнаты, отправляемое клиенту. Заполнено ровно одно
// поле, соответствующее Type.
type serverFrame struct {
	Type     string                 `json:"type"`
	Message  *messagePayload        `json:"message,omitempty"`
	Typing   *typingPayload         `json:"typing,omitempty"`
	Presence []domain.PresenceEntry `json:"presence,omitempty"`
	History  []messagePayload       `json:"history,omitempty"`
}

func historyFrame(recent []domain.Message) serverFrame {
	payload := make([]messagePayload, 0, len(recent))
	for _, msg := range recent {
		payload = append(payload, messagePayload{
			ID:        msg.ID,
			RoomID:    msg.RoomID,
			SenderID:  msg.SenderID,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})
	}
	return serverFrame{Type: "history", History: payload}
}

type messagePayload struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type typingPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// clientFrame — команда клиента. Сейчас поддерживается только "typing".
type clientFrame struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

type client struct {
	conn *websocket.Conn
	sub  *room.Subscription
	log  zerolog.Logger
}

func newClient(conn *websocket.Conn, sub *room.Subscription, logger zerolog.Logger) *client {
	return &client{
		conn: conn,
		sub:  sub,
		log:  logger.With().Str("room", sub.RoomID()).Str("user", sub.UserID()).Logger(),
	}
}

// run запускает насосы и блокируется до разрыва соединения.
func (c *client) run() {
	go c.writePump()
	c.readPump()
}

// readPump читает команды клиента. Выход из цикла закрывает подписку, что в
// свою очередь останавливает writePump через закрытие очередей.
func (c *client) readPump() {
	defer func() {
		c.sub.Close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame clientFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("gateway: чтение из сокета")
			}
			return
		}
		switch frame.Type {
		case "typing":
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			if err := c.sub.SendTyping(ctx, frame.IsTyping); err != nil {
				c.log.Warn().Err(err).Msg("gateway: публикация typing")
			}
			cancel()
		default:
			c.log.Debug().Str("type", frame.Type).Msg("gateway: неизвестная команда клиента")
		}
	}
}

// writePump переливает события подписки в сокет и поддерживает соединение
// пингами.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sub.Messages():
			if !ok {
				c.writeClose()
				return
			}
			c.writeFrame(serverFrame{Type: "message", Message: &messagePayload{
				ID:        msg.ID,
				RoomID:    msg.RoomID,
				SenderID:  msg.SenderID,
				Content:   msg.Content,
				CreatedAt: msg.CreatedAt,
			}})
		case ev, ok := <-c.sub.Typing():
			if !ok {
				c.writeClose()
				return
			}
			c.writeFrame(serverFrame{Type: "typing", Typing: &typingPayload{
				UserID:   ev.UserID,
				Username: ev.Username,
				IsTyping: ev.IsTyping,
			}})
		case entries, ok := <-c.sub.Presence():
			if !ok {
				c.writeClose()
				return
			}
			c.writeFrame(serverFrame{Type: "presence", Presence: entries})
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) writeFrame(frame serverFrame) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(frame); err != nil {
		c.log.Warn().Err(err).Msg("gateway: запись в сокет")
	}
}

func (c *client) writeClose() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
