package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hr-portal/internal/events"
)

func newTestClient(t *testing.T, hub *Hub, userID uint64, isAdmin bool, buffer int) *Client {
	t.Helper()
	client := NewClient(hub, nil, userID, isAdmin, buffer, zap.NewNop())
	hub.Register(client)
	return client
}

func readFrame(t *testing.T, client *Client) serverFrame {
	t.Helper()
	select {
	case raw := <-client.Send:
		var frame serverFrame
		require.NoError(t, json.Unmarshal(raw, &frame))
		return frame
	default:
		t.Fatal("ожидался кадр от сервера, но буфер пуст")
		return serverFrame{}
	}
}

func TestHub_PublishToSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop())
	subscribed := newTestClient(t, hub, 1, false, 8)
	other := newTestClient(t, hub, 2, false, 8)

	hub.Subscribe(subscribed, events.TopicNotifications)
	require.Equal(t, 1, hub.TopicSubscribers(events.TopicNotifications))

	hub.Publish(events.Event{ID: "ev-1", Topic: events.TopicNotifications, Kind: events.KindNewNotification})

	frame := readFrame(t, subscribed)
	assert.Equal(t, frameEvent, frame.T)
	require.NotNil(t, frame.Event)
	assert.Equal(t, "ev-1", frame.Event.ID)

	select {
	case <-other.Send:
		t.Fatal("неподписанный клиент не должен получать событие")
	default:
	}
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := NewHub(zap.NewNop())
	slow := newTestClient(t, hub, 1, false, 1)
	hub.Subscribe(slow, events.TopicNotifications)

	// Буфер на один кадр: второе событие не влезает, клиент отключается,
	// рассылка остальным не тормозит.
	hub.Publish(events.Event{ID: "ev-1", Topic: events.TopicNotifications})
	hub.Publish(events.Event{ID: "ev-2", Topic: events.TopicNotifications})

	assert.Equal(t, 0, hub.TopicSubscribers(events.TopicNotifications))
}

func TestHub_UnregisterIdempotent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := newTestClient(t, hub, 1, false, 8)
	hub.Subscribe(client, events.TopicNotifications)

	hub.Unregister(client)
	hub.Unregister(client)
	assert.Equal(t, 0, hub.TopicSubscribers(events.TopicNotifications))
}

func TestHub_UnsubscribeIdempotent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := newTestClient(t, hub, 1, false, 8)

	hub.Subscribe(client, events.TopicRequests)
	hub.Unsubscribe(client, events.TopicRequests)
	hub.Unsubscribe(client, events.TopicRequests)
	hub.Unsubscribe(client, "never-subscribed")
	assert.Equal(t, 0, hub.TopicSubscribers(events.TopicRequests))
}

func TestClient_SubscribeProtocol(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := newTestClient(t, hub, 42, false, 8)

	t.Run("свой приватный канал - ack", func(t *testing.T) {
		client.handleFrame([]byte(`{"t":"sub","topic":"chat.42"}`))
		frame := readFrame(t, client)
		assert.Equal(t, frameAck, frame.T)
		assert.Equal(t, "chat.42", frame.Topic)
		assert.Equal(t, 1, hub.TopicSubscribers("chat.42"))
	})

	t.Run("чужой приватный канал - отказ без разрыва", func(t *testing.T) {
		client.handleFrame([]byte(`{"t":"sub","topic":"chat.99"}`))
		frame := readFrame(t, client)
		assert.Equal(t, frameError, frame.T)
		assert.Equal(t, codeForbidden, frame.Code)
		assert.Equal(t, 0, hub.TopicSubscribers("chat.99"))
		// Прежняя подписка жива.
		assert.Equal(t, 1, hub.TopicSubscribers("chat.42"))
	})

	t.Run("неизвестный канал", func(t *testing.T) {
		client.handleFrame([]byte(`{"t":"sub","topic":"orders"}`))
		frame := readFrame(t, client)
		assert.Equal(t, frameError, frame.T)
		assert.Equal(t, codeUnknownTopic, frame.Code)
	})

	t.Run("отписка", func(t *testing.T) {
		client.handleFrame([]byte(`{"t":"unsub","topic":"chat.42"}`))
		frame := readFrame(t, client)
		assert.Equal(t, frameAck, frame.T)
		assert.Equal(t, 0, hub.TopicSubscribers("chat.42"))
	})

	t.Run("мусорный кадр игнорируется", func(t *testing.T) {
		client.handleFrame([]byte(`{{{`))
		client.handleFrame([]byte(`{"t":"dance"}`))
		select {
		case <-client.Send:
			t.Fatal("на мусор не должно быть ответа")
		default:
		}
	})
}

func TestClient_AdminSharedTopics(t *testing.T) {
	hub := NewHub(zap.NewNop())
	employee := newTestClient(t, hub, 7, false, 8)

	// Общие каналы открыты всем аутентифицированным: фильтрация админских
	// событий - забота backend, который их эмитит.
	employee.handleFrame([]byte(`{"t":"sub","topic":"notifications"}`))
	frame := readFrame(t, employee)
	assert.Equal(t, frameAck, frame.T)
}
