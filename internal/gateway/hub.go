package gateway

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"hr-portal/internal/events"
)

// Hub управляет подключенными клиентами и рассылкой событий по каналам.
// Клиент получает событие ровно один раз на соединение, если подписан
// на его topic.
type Hub struct {
	clients map[*Client]bool
	// topic -> множество подписанных клиентов
	topics map[string]map[*Client]bool
	logger *zap.Logger
	mu     sync.RWMutex
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		topics:  make(map[string]map[*Client]bool),
		logger:  logger,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	h.logger.Info("Клиент подключен", zap.Uint64("userID", client.UserID))
}

// Unregister снимает клиента со всех его подписок и закрывает канал отправки.
// Повторный вызов безопасен.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(client)
}

func (h *Hub) unregisterLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for topic := range client.topics {
		h.removeFromTopicLocked(client, topic)
	}
	close(client.Send)
	h.logger.Info("Клиент отсоединен", zap.Uint64("userID", client.UserID))
}

// Subscribe добавляет клиента в канал. Проверка прав делается до вызова,
// на уровне протокола (client.go).
func (h *Hub) Subscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]bool)
	}
	h.topics[topic][client] = true
	client.topics[topic] = true
}

// Unsubscribe - идемпотентно: повторная отписка или отписка от чужого
// канала ничего не делает.
func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromTopicLocked(client, topic)
	delete(client.topics, topic)
}

func (h *Hub) removeFromTopicLocked(client *Client, topic string) {
	if set, ok := h.topics[topic]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Publish рассылает событие всем подписчикам его канала. Медленный клиент
// (забитый буфер отправки) отключается, а не тормозит рассылку.
func (h *Hub) Publish(event events.Event) {
	frame, err := json.Marshal(serverFrame{T: frameEvent, Event: &event})
	if err != nil {
		h.logger.Error("Ошибка сериализации события", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.topics[event.Topic] {
		select {
		case client.Send <- frame:
		default:
			h.unregisterLocked(client)
		}
	}
}

// TopicSubscribers - количество подписчиков канала (для тестов и метрик логов).
func (h *Hub) TopicSubscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
