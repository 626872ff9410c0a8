package dto

import "encoding/json"

// PublishEventDTO - тело запроса служебного эндпоинта приёма событий.
// Backend-сервисы портала (CRUD заявок, чат) отдают сюда событие,
// id и время эмиссии проставляет шлюз.
type PublishEventDTO struct {
	Topic   string          `json:"topic" validate:"required"`
	Kind    string          `json:"kind" validate:"required,event_kind"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}
