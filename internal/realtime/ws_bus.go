package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hr-portal/internal/events"
	"hr-portal/pkg/apperrors"
)

const subscribeTimeout = 10 * time.Second

var (
	errNotConnected     = errors.New("нет соединения с шиной")
	errSubscribeTimeout = errors.New("шлюз не ответил на подписку")
)

// Кадры протокола шлюза. Продублированы на клиентской стороне намеренно:
// клиент разговаривает с шлюзом по проводу, а не через общие типы.
type outFrame struct {
	T     string `json:"t"`
	Topic string `json:"topic"`
}

type inFrame struct {
	T     string        `json:"t"`
	Topic string        `json:"topic,omitempty"`
	Code  string        `json:"code,omitempty"`
	Event *events.Event `json:"event,omitempty"`
}

// WSBus - клиент шины поверх websocket-шлюза.
type WSBus struct {
	gatewayURL string
	logger     *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	subs      map[string]*wsSubscription
	// Ожидающие ответа кадры подписки, по одному на topic.
	pendingAcks map[string]chan inFrame
}

func NewWSBus(gatewayURL string, logger *zap.Logger) *WSBus {
	return &WSBus{
		gatewayURL:  gatewayURL,
		logger:      logger,
		subs:        make(map[string]*wsSubscription),
		pendingAcks: make(map[string]chan inFrame),
	}
}

func (b *WSBus) Connect(ctx context.Context, credential string) error {
	u, err := url.Parse(b.gatewayURL)
	if err != nil {
		return apperrors.NewTransportError(err)
	}
	q := u.Query()
	q.Set("token", credential)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return apperrors.NewAuthenticationError("шлюз отклонил credential")
		}
		return apperrors.NewTransportError(err)
	}

	b.mu.Lock()
	b.conn = conn
	b.connected = true
	b.mu.Unlock()

	go b.readLoop(conn)
	return nil
}

// readLoop доставляет события в обработчики подписок. Обрыв соединения
// только логируется: шина замолкает, дальше работает опрос.
func (b *WSBus) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			b.mu.Lock()
			if b.conn == conn {
				b.connected = false
			}
			b.mu.Unlock()
			b.logger.Warn("Шина: транспорт оборван, события до переподключения будут теряться",
				zap.Error(apperrors.NewTransportError(err)),
			)
			return
		}

		var frame inFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			b.logger.Warn("Шина: нечитаемый кадр от шлюза", zap.Error(err))
			continue
		}

		switch frame.T {
		case "ev":
			if frame.Event != nil {
				frame.Event.ReceivedAt = time.Now()
				b.dispatch(*frame.Event)
			}
		case "ack", "err":
			b.mu.Lock()
			waiter := b.pendingAcks[frame.Topic]
			delete(b.pendingAcks, frame.Topic)
			b.mu.Unlock()
			if waiter != nil {
				waiter <- frame
			}
		}
	}
}

func (b *WSBus) dispatch(event events.Event) {
	b.mu.Lock()
	sub := b.subs[event.Topic]
	var handlers []Handler
	if sub != nil {
		handlers = append(handlers, sub.handlers[event.Kind]...)
	}
	b.mu.Unlock()

	// Обработчики зовём без замка: они ходят в трекер/ленты.
	for _, fn := range handlers {
		fn(event)
	}
}

func (b *WSBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	b.mu.Lock()
	if !b.connected || b.conn == nil {
		b.mu.Unlock()
		return nil, apperrors.NewTransportError(errNotConnected)
	}
	if existing, ok := b.subs[topic]; ok {
		b.mu.Unlock()
		return existing, nil
	}

	waiter := make(chan inFrame, 1)
	b.pendingAcks[topic] = waiter
	conn := b.conn
	b.mu.Unlock()

	if err := conn.WriteJSON(outFrame{T: "sub", Topic: topic}); err != nil {
		b.dropWaiter(topic)
		return nil, apperrors.NewTransportError(err)
	}

	select {
	case <-ctx.Done():
		b.dropWaiter(topic)
		return nil, apperrors.NewTransportError(ctx.Err())
	case <-time.After(subscribeTimeout):
		b.dropWaiter(topic)
		return nil, apperrors.NewTransportError(errSubscribeTimeout)
	case frame := <-waiter:
		if frame.T == "err" {
			return nil, apperrors.NewAuthorizationError(topic)
		}
	}

	sub := &wsSubscription{
		bus:      b,
		topic:    topic,
		handlers: make(map[events.Kind][]Handler),
	}
	b.mu.Lock()
	b.subs[topic] = sub
	b.mu.Unlock()
	return sub, nil
}

func (b *WSBus) dropWaiter(topic string) {
	b.mu.Lock()
	delete(b.pendingAcks, topic)
	b.mu.Unlock()
}

func (b *WSBus) Close() error {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.connected = false
	b.subs = make(map[string]*wsSubscription)
	b.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

type wsSubscription struct {
	bus      *WSBus
	topic    string
	handlers map[events.Kind][]Handler
	done     bool
}

func (s *wsSubscription) Topic() string { return s.topic }

func (s *wsSubscription) On(kind events.Kind, fn Handler) {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if s.done {
		return
	}
	s.handlers[kind] = append(s.handlers[kind], fn)
}

// Unsubscribe снимает подписку. Кадр отписки шлём best-effort: при уже
// оборванном транспорте просто чистим локальное состояние.
func (s *wsSubscription) Unsubscribe() {
	s.bus.mu.Lock()
	if s.done {
		s.bus.mu.Unlock()
		return
	}
	s.done = true
	delete(s.bus.subs, s.topic)
	conn := s.bus.conn
	connected := s.bus.connected
	s.bus.mu.Unlock()

	if connected && conn != nil {
		_ = conn.WriteJSON(outFrame{T: "unsub", Topic: s.topic})
	}
}
