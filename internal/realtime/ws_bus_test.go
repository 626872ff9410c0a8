package realtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hr-portal/internal/events"
	"hr-portal/internal/gateway"
	"hr-portal/pkg/apperrors"
	"hr-portal/pkg/service"
)

func newTestGateway(t *testing.T) (*WSBus, *gateway.Hub, string) {
	t.Helper()
	logger := zap.NewNop()
	jwtSvc := service.NewJWTService("test-secret", time.Hour)
	hub := gateway.NewHub(logger)
	ctrl := gateway.NewController(hub, nil, jwtSvc, "", 8, logger)

	e := echo.New()
	e.GET("/ws", ctrl.ServeWs)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	token, err := jwtSvc.GenerateToken(42, false)
	require.NoError(t, err)

	bus := NewWSBus("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", logger)
	t.Cleanup(func() { _ = bus.Close() })
	return bus, hub, token
}

func TestWSBus_ConnectBadCredential(t *testing.T) {
	bus, _, _ := newTestGateway(t)

	err := bus.Connect(context.Background(), "garbage")
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthentication(err), "401 на handshake - это AuthenticationError")
}

func TestWSBus_SubscribeBeforeConnect(t *testing.T) {
	bus, _, _ := newTestGateway(t)

	_, err := bus.Subscribe(context.Background(), "notifications")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransport(err))
}

func TestWSBus_SubscribeForbiddenTopic(t *testing.T) {
	bus, _, token := newTestGateway(t)
	require.NoError(t, bus.Connect(context.Background(), token))

	// Токен выдан на userId=42, чужой приватный канал шлюз не подтвердит.
	_, err := bus.Subscribe(context.Background(), events.ChatTopic(99))
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthorization(err))
}

func TestWSBus_EndToEndDelivery(t *testing.T) {
	bus, hub, token := newTestGateway(t)
	require.NoError(t, bus.Connect(context.Background(), token))

	sub, err := bus.Subscribe(context.Background(), events.ChatTopic(42))
	require.NoError(t, err)
	assert.Equal(t, events.ChatTopic(42), sub.Topic())

	received := make(chan events.Event, 1)
	sub.On(events.KindNewChatMessage, func(event events.Event) {
		received <- event
	})

	hub.Publish(events.Event{
		ID:        "ev-1",
		Topic:     events.ChatTopic(42),
		Kind:      events.KindNewChatMessage,
		EmittedAt: time.Now().UTC(),
	})

	select {
	case event := <-received:
		assert.Equal(t, "ev-1", event.ID)
		assert.False(t, event.ReceivedAt.IsZero(), "момент приёма проставляется локально")
	case <-time.After(2 * time.Second):
		t.Fatal("событие не дошло до обработчика")
	}
}

func TestWSBus_SubscribeIsIdempotent(t *testing.T) {
	bus, _, token := newTestGateway(t)
	require.NoError(t, bus.Connect(context.Background(), token))

	first, err := bus.Subscribe(context.Background(), events.UserNotificationsTopic(42))
	require.NoError(t, err)
	second, err := bus.Subscribe(context.Background(), events.UserNotificationsTopic(42))
	require.NoError(t, err)
	assert.Same(t, first, second, "повторная подписка возвращает существующую")
}

func TestWSBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus, hub, token := newTestGateway(t)
	require.NoError(t, bus.Connect(context.Background(), token))

	sub, err := bus.Subscribe(context.Background(), events.ChatTopic(42))
	require.NoError(t, err)

	received := make(chan events.Event, 1)
	sub.On(events.KindNewChatMessage, func(event events.Event) {
		received <- event
	})

	sub.Unsubscribe()
	sub.Unsubscribe() // идемпотентно

	// Шлюзу нужно время обработать кадр отписки.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hub.TopicSubscribers(events.ChatTopic(42)) != 0 {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 0, hub.TopicSubscribers(events.ChatTopic(42)))

	hub.Publish(events.Event{ID: "ev-late", Topic: events.ChatTopic(42), Kind: events.KindNewChatMessage})
	select {
	case <-received:
		t.Fatal("после отписки события не должны доставляться")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFakeBus_BehavesLikeRealOne(t *testing.T) {
	bus := NewFakeBus()
	bus.Forbidden["notifications"] = true

	_, err := bus.Subscribe(context.Background(), "requests")
	require.Error(t, err, "до Connect подписки невозможны")

	require.NoError(t, bus.Connect(context.Background(), "token"))

	_, err = bus.Subscribe(context.Background(), "notifications")
	assert.True(t, apperrors.IsAuthorization(err))

	sub, err := bus.Subscribe(context.Background(), "requests")
	require.NoError(t, err)

	var got []string
	sub.On(events.KindNewRequest, func(event events.Event) {
		got = append(got, event.ID)
	})
	bus.Emit(events.Event{ID: "r-1", Topic: "requests", Kind: events.KindNewRequest})
	bus.Emit(events.Event{ID: "r-2", Topic: "requests", Kind: events.KindRequestStatusUpdated})
	assert.Equal(t, []string{"r-1"}, got, "доставка только по подписанному kind")

	sub.Unsubscribe()
	assert.Empty(t, bus.ActiveTopics())
}
