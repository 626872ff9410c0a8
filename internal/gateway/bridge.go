package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"hr-portal/internal/events"
)

// Bridge связывает Redis pub/sub с локальным Hub. Каждый узел шлюза держит
// свою подписку, поэтому событие, опубликованное любым узлом, дойдёт до
// клиентов всех узлов. Повтора/replay нет: что ушло, пока клиент был
// отключен, восстановит опрос на его стороне.
type Bridge struct {
	rdb    *redis.Client
	prefix string
	hub    *Hub
	logger *zap.Logger

	pubsub *redis.PubSub
}

func NewBridge(rdb *redis.Client, channelPrefix string, hub *Hub, logger *zap.Logger) *Bridge {
	return &Bridge{
		rdb:    rdb,
		prefix: channelPrefix,
		hub:    hub,
		logger: logger,
	}
}

func (b *Bridge) channelPattern() string {
	return b.prefix + ".events.*"
}

func (b *Bridge) channelFor(topic string) string {
	return b.prefix + ".events." + topic
}

func (b *Bridge) topicFrom(channel string) string {
	return strings.TrimPrefix(channel, b.prefix+".events.")
}

// Run читает события из Redis до отмены контекста.
func (b *Bridge) Run(ctx context.Context) {
	b.pubsub = b.rdb.PSubscribe(ctx, b.channelPattern())
	b.logger.Info("Мост Redis запущен", zap.String("pattern", b.channelPattern()))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-b.pubsub.Channel():
			if !ok {
				return
			}
			var event events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Error("Мост Redis: нечитаемое событие",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			if event.Topic == "" {
				event.Topic = b.topicFrom(msg.Channel)
			}
			b.hub.Publish(event)
		}
	}
}

func (b *Bridge) Close() error {
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}

// Publish отправляет событие в фабрику каналов. Вызывается эндпоинтом
// приёма событий; до клиентов оно дойдёт через Run на каждом узле.
func (b *Bridge) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channelFor(event.Topic), string(data)).Err()
}
