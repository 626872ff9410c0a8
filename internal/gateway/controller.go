package gateway

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"hr-portal/internal/dto"
	"hr-portal/internal/events"
	"hr-portal/pkg/service"
	"hr-portal/pkg/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Controller struct {
	hub          *Hub
	bridge       *Bridge
	jwtService   service.JWTService
	ingressToken string
	sendBuffer   int
	logger       *zap.Logger
}

func NewController(hub *Hub, bridge *Bridge, jwtService service.JWTService, ingressToken string, sendBuffer int, logger *zap.Logger) *Controller {
	return &Controller{
		hub:          hub,
		bridge:       bridge,
		jwtService:   jwtService,
		ingressToken: ingressToken,
		sendBuffer:   sendBuffer,
		logger:       logger,
	}
}

// ServeWs - точка входа websocket-клиентов. Токен проверяем до upgrade:
// невалидный credential - это 401, а не молчаливо мёртвое соединение.
func (c *Controller) ServeWs(ctx echo.Context) error {
	tokenString := ctx.QueryParam("token")
	if tokenString == "" {
		return ctx.String(http.StatusUnauthorized, "Missing token")
	}

	claims, err := c.jwtService.ValidateToken(tokenString)
	if err != nil {
		return ctx.String(http.StatusUnauthorized, "Invalid token")
	}

	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		c.logger.Error("WebSocket: не удалось улучшить соединение", zap.Error(err))
		return err
	}

	client := NewClient(c.hub, conn, claims.UserID, claims.IsAdmin, c.sendBuffer, c.logger)
	c.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	c.logger.Info("WebSocket: клиент успешно подключен", zap.Uint64("userID", claims.UserID))
	return nil
}

// PublishEvent - служебный эндпоинт для backend-сервисов портала.
// Здесь событие получает id и время эмиссии и уходит в Redis.
func (c *Controller) PublishEvent(ctx echo.Context) error {
	token := ctx.Request().Header.Get("X-Ingress-Token")
	if c.ingressToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(c.ingressToken)) != 1 {
		return ctx.String(http.StatusUnauthorized, "Invalid ingress token")
	}

	var payload dto.PublishEventDTO
	if err := ctx.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := ctx.Validate(&payload); err != nil {
		return err
	}
	if !events.KnownTopic(payload.Topic) {
		return echo.NewHTTPError(http.StatusBadRequest, "неизвестный канал: "+payload.Topic)
	}

	event := events.Event{
		ID:        uuid.New().String(),
		Topic:     payload.Topic,
		Kind:      events.Kind(payload.Kind),
		Payload:   payload.Payload,
		EmittedAt: time.Now().UTC(),
	}

	if err := c.bridge.Publish(ctx.Request().Context(), event); err != nil {
		c.logger.Error("Не удалось опубликовать событие в Redis",
			zap.String("topic", event.Topic),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusBadGateway, "publish failed")
	}

	return utils.SuccessResponse(ctx, map[string]string{"eventId": event.ID}, "Событие опубликовано", http.StatusAccepted)
}
