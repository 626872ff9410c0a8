package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind - дискриминант события. Набор закрытый: разбор payload делается
// исчерпывающим switch, а не выуживанием полей из map.
type Kind string

const (
	KindNewChatMessage       Kind = "NEW_CHAT_MESSAGE"
	KindNewNotification      Kind = "NEW_NOTIFICATION"
	KindNewUserNotification  Kind = "NEW_USER_NOTIFICATION"
	KindNewRequest           Kind = "NEW_REQUEST"
	KindRequestStatusUpdated Kind = "REQUEST_STATUS_UPDATED"
)

// Общие каналы портала.
const (
	TopicNotifications = "notifications"
	TopicRequests      = "requests"
)

const (
	chatTopicPrefix     = "chat."
	userNotifTopicPrefix = "user.notifications."
)

// ChatTopic - приватный канал чата сотрудника.
func ChatTopic(userID uint64) string {
	return chatTopicPrefix + strconv.FormatUint(userID, 10)
}

// UserNotificationsTopic - приватный канал персональных уведомлений.
func UserNotificationsTopic(userID uint64) string {
	return userNotifTopicPrefix + strconv.FormatUint(userID, 10)
}

// IsPrivateTopic - несёт ли канал идентичность конкретного пользователя.
func IsPrivateTopic(topic string) bool {
	return strings.HasPrefix(topic, chatTopicPrefix) || strings.HasPrefix(topic, userNotifTopicPrefix)
}

// TopicOwner извлекает userId, зашитый в имя приватного канала.
// Для общих каналов возвращает ok=false.
func TopicOwner(topic string) (uint64, bool) {
	var raw string
	switch {
	case strings.HasPrefix(topic, chatTopicPrefix):
		raw = strings.TrimPrefix(topic, chatTopicPrefix)
	case strings.HasPrefix(topic, userNotifTopicPrefix):
		raw = strings.TrimPrefix(topic, userNotifTopicPrefix)
	default:
		return 0, false
	}

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// KnownTopic - валидное ли это имя канала вообще (общий или приватный
// с корректным userId в имени).
func KnownTopic(topic string) bool {
	if topic == TopicNotifications || topic == TopicRequests {
		return true
	}
	_, ok := TopicOwner(topic)
	return ok
}

// Event - событие, доставляемое через шину. Неизменяемо после доставки,
// идентичность - ID в рамках topic/kind.
type Event struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	Kind       Kind            `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EmittedAt  time.Time       `json:"emittedAt"`
	ReceivedAt time.Time       `json:"-"`
}

// LocalizedText - пара "основной/второй язык" для заголовков и текста.
type LocalizedText struct {
	Ru string `json:"ru"`
	Tg string `json:"tg"`
}

type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

type Attachment struct {
	Kind     AttachmentKind `json:"kind"`
	FileName string         `json:"fileName"`
	URL      string         `json:"url"`
}

// ChatMessage - сообщение чата. Принадлежит неупорядоченной паре
// {fromId, toId}; порядок внутри переписки - createdAt, затем id.
type ChatMessage struct {
	ID         uint64      `json:"id"`
	FromID     uint64      `json:"fromId"`
	ToID       uint64      `json:"toId"`
	Body       string      `json:"body,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	IsUrgent   bool        `json:"isUrgent"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// NotificationRecord - запись ленты уведомлений (админской или персональной).
type NotificationRecord struct {
	ID             string          `json:"id"`
	Title          LocalizedText   `json:"title"`
	Body           LocalizedText   `json:"body"`
	CreatedAt      time.Time       `json:"createdAt"`
	IsRead         bool            `json:"isRead"`
	Classification json.RawMessage `json:"classificationData,omitempty"`
}

// NewRequestPayload - сводка только что созданной заявки сотрудника
// (отпуск, справка с места работы, командировочное и т.д.).
type NewRequestPayload struct {
	RequestID   uint64        `json:"requestId"`
	EmployeeID  uint64        `json:"employeeId"`
	RequestType string        `json:"requestType"`
	Title       LocalizedText `json:"title"`
	CreatedAt   time.Time     `json:"createdAt"`
}

type RequestStatusPayload struct {
	RequestID uint64 `json:"requestId"`
	NewStatus string `json:"newStatus"`
}

// DecodePayload разбирает payload согласно дискриминанту.
// Неизвестный kind - ошибка, а не молчаливый пропуск.
func (e *Event) DecodePayload() (interface{}, error) {
	switch e.Kind {
	case KindNewChatMessage:
		var p ChatMessage
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("payload %s: %w", e.Kind, err)
		}
		return p, nil
	case KindNewNotification, KindNewUserNotification:
		var p NotificationRecord
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("payload %s: %w", e.Kind, err)
		}
		return p, nil
	case KindNewRequest:
		var p NewRequestPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("payload %s: %w", e.Kind, err)
		}
		return p, nil
	case KindRequestStatusUpdated:
		var p RequestStatusPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("payload %s: %w", e.Kind, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("неизвестный kind события: %q", e.Kind)
	}
}

// ConversationKey - ключ переписки для неупорядоченной пары участников.
func ConversationKey(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return "chat:" + strconv.FormatUint(a, 10) + ":" + strconv.FormatUint(b, 10)
}
