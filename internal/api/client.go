package api

import (
	"context"

	"hr-portal/internal/dto"
	"hr-portal/internal/events"
	"hr-portal/internal/unread"
)

// UnreadCounts - серверные счётчики непрочитанного по классам.
type UnreadCounts struct {
	AdminNotifications int `json:"adminNotifications"`
	UserNotifications  int `json:"userNotifications"`
}

// Client - REST-опрос backend-портала. Опрос - источник истины: всё, что
// шина потеряла на оборванном сокете, восстанавливается отсюда.
type Client interface {
	UnreadCounts(ctx context.Context) (*UnreadCounts, error)
	Notifications(ctx context.Context, class unread.Class) ([]events.NotificationRecord, error)
	MarkRead(ctx context.Context, class unread.Class, notificationID string) error
	MarkAllRead(ctx context.Context, class unread.Class) error
	ConversationMessages(ctx context.Context, peerID uint64) ([]events.ChatMessage, error)
	SendMessage(ctx context.Context, message dto.SendMessageDTO) (*events.ChatMessage, error)
}
