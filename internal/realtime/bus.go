package realtime

import (
	"context"

	"hr-portal/internal/events"
)

// Handler вызывается один раз на каждое доставленное событие своего kind.
type Handler func(event events.Event)

// Subscription - явная ручка подписки с детерминированным teardown.
type Subscription interface {
	Topic() string
	// On регистрирует обработчик события. Несколько обработчиков одного
	// kind вызываются все (fan-out внутри клиента).
	On(kind events.Kind, fn Handler)
	// Unsubscribe останавливает доставку. Идемпотентна и безопасна даже
	// после обрыва транспорта.
	Unsubscribe()
}

// Bus - клиент шины событий. Обрывы транспорта не фатальны: шина молча
// перестаёт доставлять, пропуски закрывает опрос.
type Bus interface {
	// Connect устанавливает транспортную сессию. AuthenticationError -
	// credential невалиден, повторять с тем же токеном нельзя.
	Connect(ctx context.Context, credential string) error
	// Subscribe оформляет подписку. AuthorizationError - шлюз отказал
	// в приватном канале; остальные подписки не затрагиваются.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}
