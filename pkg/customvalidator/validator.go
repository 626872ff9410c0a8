package customvalidator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"hr-portal/internal/events"
)

// RegisterCustomValidations "собирает" все наши кастомные правила валидации
// и регистрирует их в переданном экземпляре валидатора.
func RegisterCustomValidations(v *validator.Validate) error {
	if err := v.RegisterValidation("event_kind", isKnownEventKind); err != nil {
		return err
	}
	if err := v.RegisterValidation("message_content", hasMessageContent); err != nil {
		return err
	}
	return nil
}

func isKnownEventKind(fl validator.FieldLevel) bool {
	switch events.Kind(fl.Field().String()) {
	case events.KindNewChatMessage,
		events.KindNewNotification,
		events.KindNewUserNotification,
		events.KindNewRequest,
		events.KindRequestStatusUpdated:
		return true
	}
	return false
}

// hasMessageContent - сообщение чата валидно, если есть текст или хотя бы
// одно вложение в соседних полях структуры.
func hasMessageContent(fl validator.FieldLevel) bool {
	if strings.TrimSpace(fl.Field().String()) != "" {
		return true
	}

	parent := fl.Parent()
	if parent.Kind() == reflect.Ptr {
		parent = parent.Elem()
	}
	for _, fieldName := range []string{"Image", "File"} {
		field := parent.FieldByName(fieldName)
		if field.IsValid() && field.Kind() == reflect.Ptr && !field.IsNil() {
			return true
		}
	}

	return false
}
