package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicOwner(t *testing.T) {
	id, ok := TopicOwner("chat.42")
	require.True(t, ok)
	assert.Equal(t, uint64(42), id)

	id, ok = TopicOwner("user.notifications.7")
	require.True(t, ok)
	assert.Equal(t, uint64(7), id)

	_, ok = TopicOwner(TopicNotifications)
	assert.False(t, ok, "общий канал не имеет владельца")

	_, ok = TopicOwner("chat.abc")
	assert.False(t, ok, "мусор вместо userId в имени канала")
}

func TestKnownTopic(t *testing.T) {
	assert.True(t, KnownTopic(TopicNotifications))
	assert.True(t, KnownTopic(TopicRequests))
	assert.True(t, KnownTopic(ChatTopic(15)))
	assert.True(t, KnownTopic(UserNotificationsTopic(15)))
	assert.False(t, KnownTopic("orders"))
	assert.False(t, KnownTopic("chat."))
}

func TestConversationKey_UnorderedPair(t *testing.T) {
	assert.Equal(t, ConversationKey(3, 9), ConversationKey(9, 3),
		"ключ переписки не зависит от направления сообщения")
	assert.Equal(t, "chat:3:9", ConversationKey(9, 3))
}

func TestDecodePayload(t *testing.T) {
	t.Run("сообщение чата", func(t *testing.T) {
		event := Event{
			Kind:    KindNewChatMessage,
			Payload: json.RawMessage(`{"id":10,"fromId":1,"toId":2,"body":"привет","createdAt":"2026-08-01T10:00:00Z"}`),
		}
		payload, err := event.DecodePayload()
		require.NoError(t, err)

		message, ok := payload.(ChatMessage)
		require.True(t, ok)
		assert.Equal(t, uint64(10), message.ID)
		assert.Equal(t, "привет", message.Body)
	})

	t.Run("уведомление с локализованным заголовком", func(t *testing.T) {
		event := Event{
			Kind:    KindNewUserNotification,
			Payload: json.RawMessage(`{"id":"n-1","title":{"ru":"Заявка одобрена","tg":"Дархост тасдиқ шуд"},"createdAt":"2026-08-01T10:00:00Z"}`),
		}
		payload, err := event.DecodePayload()
		require.NoError(t, err)

		record, ok := payload.(NotificationRecord)
		require.True(t, ok)
		assert.Equal(t, "Заявка одобрена", record.Title.Ru)
		assert.Equal(t, "Дархост тасдиқ шуд", record.Title.Tg)
	})

	t.Run("неизвестный kind - ошибка, а не пропуск", func(t *testing.T) {
		event := Event{Kind: "SOMETHING_ELSE", Payload: json.RawMessage(`{}`)}
		_, err := event.DecodePayload()
		require.Error(t, err)
	})

	t.Run("битый payload", func(t *testing.T) {
		event := Event{Kind: KindNewRequest, Payload: json.RawMessage(`{"requestId":"not-a-number"}`)}
		_, err := event.DecodePayload()
		require.Error(t, err)
	})
}

func TestEvent_RoundTrip(t *testing.T) {
	event := Event{
		ID:        "ev-1",
		Topic:     ChatTopic(5),
		Kind:      KindNewChatMessage,
		Payload:   json.RawMessage(`{"id":1,"fromId":5,"toId":6,"createdAt":"2026-08-01T10:00:00Z"}`),
		EmittedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "receivedAt", "локальная метка приёма не сериализуется")

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, event.Kind, decoded.Kind)
}
