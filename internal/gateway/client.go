package gateway

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hr-portal/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Кадры внутриполосного протокола подписок.
const (
	frameSubscribe   = "sub"
	frameUnsubscribe = "unsub"
	frameAck         = "ack"
	frameError       = "err"
	frameEvent       = "ev"
)

const (
	codeForbidden    = "FORBIDDEN"
	codeUnknownTopic = "UNKNOWN_TOPIC"
)

type clientFrame struct {
	T     string `json:"t"`
	Topic string `json:"topic"`
}

type serverFrame struct {
	T     string        `json:"t"`
	Topic string        `json:"topic,omitempty"`
	Code  string        `json:"code,omitempty"`
	Event *events.Event `json:"event,omitempty"`
}

// Client - одно websocket-соединение аутентифицированного пользователя.
type Client struct {
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	UserID  uint64
	IsAdmin bool

	// Подписки этого соединения; мутируются только под замком Hub.
	topics map[string]bool

	logger *zap.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uint64, isAdmin bool, sendBuffer int, logger *zap.Logger) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Client{
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		UserID:  userID,
		IsAdmin: isAdmin,
		topics:  make(map[string]bool),
		logger:  logger,
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { _ = c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket: неожиданное закрытие", zap.Error(err))
			}
			break
		}
		c.handleFrame(message)
	}
}

// handleFrame обрабатывает кадр подписки/отписки. Отказ по одному каналу
// не роняет соединение и не трогает остальные подписки.
func (c *Client) handleFrame(raw []byte) {
	var frame clientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.logger.Warn("WebSocket: нечитаемый кадр от клиента", zap.Error(err))
		return
	}

	switch frame.T {
	case frameSubscribe:
		if !events.KnownTopic(frame.Topic) {
			c.reply(serverFrame{T: frameError, Topic: frame.Topic, Code: codeUnknownTopic})
			return
		}
		if !c.entitled(frame.Topic) {
			c.logger.Warn("WebSocket: отказ в подписке на приватный канал",
				zap.Uint64("userID", c.UserID),
				zap.String("topic", frame.Topic),
			)
			c.reply(serverFrame{T: frameError, Topic: frame.Topic, Code: codeForbidden})
			return
		}
		c.Hub.Subscribe(c, frame.Topic)
		c.reply(serverFrame{T: frameAck, Topic: frame.Topic})
	case frameUnsubscribe:
		c.Hub.Unsubscribe(c, frame.Topic)
		c.reply(serverFrame{T: frameAck, Topic: frame.Topic})
	default:
		c.logger.Warn("WebSocket: неизвестный тип кадра", zap.String("t", frame.T))
	}
}

// entitled - серверная авторизация канала: приватный канал доступен только
// владельцу идентичности, зашитой в имя. Общие каналы открыты всем
// аутентифицированным.
func (c *Client) entitled(topic string) bool {
	owner, private := events.TopicOwner(topic)
	if !private {
		return true
	}
	return owner == c.UserID
}

func (c *Client) reply(frame serverFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
