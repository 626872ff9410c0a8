package apperrors

import (
	"errors"
	"fmt"
)

var (
	// JWT и токены
	ErrInvalidSigningMethod = fmt.Errorf("неверный метод подписи токена")
	ErrInvalidToken         = fmt.Errorf("недопустимый токен")
	ErrTokenExpired         = fmt.Errorf("срок действия токена истёк")
	ErrTokenNotYetValid     = fmt.Errorf("токен ещё не активен")
)

// Таксономия ошибок realtime-ядра. Категории различаются политикой
// восстановления: что-то лечится следующим тиком опроса, что-то требует
// повторного входа пользователя.

// AuthenticationError - невалидный или истёкший credential. Фатальна для
// соединения с шиной, повторять с тем же токеном нельзя.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("ошибка аутентификации: %s", e.Reason)
}

func NewAuthenticationError(format string, args ...interface{}) error {
	return &AuthenticationError{Reason: fmt.Sprintf(format, args...)}
}

// AuthorizationError - подписка на канал не разрешена. Затрагивает только
// один topic, остальные подписки продолжают работать.
type AuthorizationError struct {
	Topic string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("нет доступа к каналу %q", e.Topic)
}

func NewAuthorizationError(topic string) error {
	return &AuthorizationError{Topic: topic}
}

// TransportError - временный сбой сети/сокета. Не показывается пользователю,
// пропущенные события восстановит опрос.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("сбой транспорта: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func NewTransportError(err error) error {
	return &TransportError{Err: err}
}

// ValidationError - неверные входные данные (например, пустое сообщение).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// FetchError - неудачный запрос опроса. Повтор - следующий плановый тик,
// отдельного backoff не требуется.
type FetchError struct {
	Endpoint string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("ошибка запроса %s: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func NewFetchError(endpoint string, err error) error {
	return &FetchError{Endpoint: endpoint, Err: err}
}

func IsAuthentication(err error) bool {
	var target *AuthenticationError
	return errors.As(err, &target)
}

func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsFetch(err error) bool {
	var target *FetchError
	return errors.As(err, &target)
}
