package routes

import (
	"github.com/labstack/echo/v4"

	"hr-portal/internal/gateway"
)

func InitRouter(e *echo.Echo, ws *gateway.Controller) {
	e.GET("/ws", ws.ServeWs)
	e.POST("/internal/events", ws.PublishEvent)
}
